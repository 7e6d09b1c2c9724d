package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/qingyi232/QuizMate1-sub002/internal/app"
	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	envAdminUsername = "QM_DEFAULT_ADMIN_USERNAME"
	envAdminPassword = "QM_DEFAULT_ADMIN_PASSWORD"
)

func main() {
	mode := flag.String("mode", app.ModeAll, "启动模式: all | api | worker")
	flag.Parse()

	printBanner(*mode)

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	release := cfg.Server.Mode == "release"
	if release {
		gin.SetMode(gin.ReleaseMode)
	}

	checkSecrets(stdLog, cfg, release)

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode == "debug"); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	ensureDefaultAdmin(stdLog, release)

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    *mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

// checkSecrets release 模式下弱密钥直接退出
func checkSecrets(stdLog *log.Logger, cfg *config.Config, release bool) {
	secrets := []struct {
		name  string
		value string
	}{
		{name: "jwt", value: cfg.JWT.SecretKey},
		{name: "user_jwt", value: cfg.UserJWT.SecretKey},
	}
	for _, s := range secrets {
		if !isWeakSecret(s.value) {
			continue
		}
		if release {
			stdLog.Fatalf("%s secret 过弱或仍为默认值，请配置至少 32 位的随机密钥", s.name)
		}
		stdLog.Printf("警告: %s secret 过弱或仍为默认值", s.name)
	}
}

// ensureDefaultAdmin 管理员表为空时用环境变量创建第一个超级管理员
func ensureDefaultAdmin(stdLog *log.Logger, release bool) {
	username := os.Getenv(envAdminUsername)
	password := os.Getenv(envAdminPassword)
	if release && password == "" {
		stdLog.Printf("警告: 未设置 %s，跳过默认管理员初始化", envAdminPassword)
		return
	}
	admin, err := models.InitDefaultAdmin(username, password)
	if err != nil {
		stdLog.Printf("警告: 初始化默认管理员失败: %v", err)
		return
	}
	if admin != nil {
		logger.Infow("default_admin_created", "username", admin.Username)
	}
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	lower := strings.ToLower(secret)
	for _, marker := range []string{"change-me", "change-in-production", "your-secret-key"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func printBanner(mode string) {
	const (
		bold  = "\033[1m"
		cyan  = "\033[36m"
		dim   = "\033[2m"
		reset = "\033[0m"
	)
	fmt.Println(bold + cyan + "QuizMate payments" + reset + dim + " (mode=" + mode + ")" + reset)
	fmt.Println(dim + "callbacks: /api/v1/payments/callback/{alipay,wechat}  webhooks: /api/v1/payments/webhook/{paypal,stripe}" + reset)
}
