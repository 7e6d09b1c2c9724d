package router

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/authz"
	"github.com/qingyi232/QuizMate1-sub002/internal/cache"
	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	adminhandlers "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/admin"
	publichandlers "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/public"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/provider"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	redisClient := cache.Client()
	adminLoginRule := RuleFromConfig(redisPrefix+":rate:admin_login", cfg.Security.LoginRateLimit)
	orderCreateRule := RuleFromConfig(redisPrefix+":rate:order_create", cfg.Security.OrderRateLimit)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 支付回调：不鉴权，由验签保证来源
	r.GET(service.AlipayNotifyPath, publicHandler.AlipayCallback)
	r.POST(service.AlipayNotifyPath, publicHandler.AlipayCallback)
	r.POST(service.WechatNotifyPath, publicHandler.WechatCallback)
	r.POST(service.PaypalWebhookPath, publicHandler.PaypalWebhook)
	r.POST(service.StripeWebhookPath, publicHandler.StripeWebhook)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/plans", publicHandler.GetPlans)

		// 用户接口
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(c.AuthService))
		{
			user.POST("/orders", RateLimitMiddleware(redisClient, orderCreateRule, KeyByUserID), publicHandler.CreateOrder)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.POST("/orders/:id/capture", publicHandler.CaptureOrder)
			user.GET("/subscription", publicHandler.GetSubscription)
		}

		// 运营后台
		admin := apiV1.Group("/admin")
		{
			admin.GET("/captcha", adminHandler.GetCaptcha)
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(c.AuthService))
			{
				// 登录态相关接口不做 RBAC 校验
				authorized.POST("/logout", adminHandler.AdminLogout)
				authorized.GET("/authz/me", adminHandler.GetAuthzMe)

				guarded := authorized.Group("")
				guarded.Use(AdminRBACMiddleware(c.AuthzService))
				{
					guarded.GET("/orders", adminHandler.AdminListOrders)
					guarded.GET("/orders/:id", adminHandler.AdminGetOrder)
					guarded.POST("/orders/:id/cancel", adminHandler.AdminCancelOrder)

					guarded.GET("/reconcile-issues", adminHandler.ListReconcileIssues)
					guarded.POST("/reconcile-issues/:id/retry", adminHandler.RetryReconcileIssue)
					guarded.POST("/reconcile-issues/:id/resolve", adminHandler.ResolveReconcileIssue)

					guarded.GET("/users/:user_id/profile", adminHandler.GetUserProfile)

					guarded.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
						response.Success(ctx, buildAdminPermissionCatalog(r))
					})
				}
			}
		}
	}

	r.GET("/health", healthCheck)

	return r
}

// permissionEntry 后台可授权接口，供角色配置页面展示
type permissionEntry struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// 只需登录、不参与 RBAC 的后台接口
var rbacExemptPaths = map[string]bool{
	"/api/v1/admin/login":    true,
	"/api/v1/admin/captcha":  true,
	"/api/v1/admin/logout":   true,
	"/api/v1/admin/authz/me": true,
}

func buildAdminPermissionCatalog(engine *gin.Engine) []permissionEntry {
	entries := []permissionEntry{}
	if engine == nil {
		return entries
	}
	seen := map[string]bool{}
	for _, route := range engine.Routes() {
		if route.Method == "OPTIONS" || route.Method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(route.Path, "/api/v1/admin/") || rbacExemptPaths[route.Path] {
			continue
		}
		object := authz.NormalizeObject(route.Path)
		permission := route.Method + ":" + object
		if seen[permission] {
			continue
		}
		seen[permission] = true
		entries = append(entries, permissionEntry{
			Module:     permissionModule(object),
			Method:     route.Method,
			Object:     object,
			Permission: permission,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Object != b.Object {
			return a.Object < b.Object
		}
		return a.Method < b.Method
	})
	return entries
}

// permissionModule 取 /admin/ 后的第一段，例如 /admin/reconcile-issues/:id/retry -> reconcile-issues
func permissionModule(object string) string {
	segments := strings.Split(strings.Trim(object, "/"), "/")
	if len(segments) >= 2 && segments[0] == "admin" {
		return segments[1]
	}
	return segments[0]
}

// healthCheck 数据库不可达时返回 503，便于负载均衡摘除实例
func healthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "redis": cache.Enabled()}
	if err := pingDB(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	c.JSON(status, body)
}

func pingDB(ctx context.Context) error {
	if models.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
