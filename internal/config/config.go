package config

import (
	"fmt"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	UserJWT   JWTConfig       `mapstructure:"user_jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	Order     OrderConfig     `mapstructure:"order"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name          string `mapstructure:"name"`
	PublicBaseURL string `mapstructure:"public_base_url"` // 对外访问地址，用于拼接回调地址
	FrontendURL   string `mapstructure:"frontend_url"`    // 支付完成后的默认跳转地址
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// OrderConfig 订单配置
type OrderConfig struct {
	PaymentExpireMinutes int    `mapstructure:"payment_expire_minutes"`
	ReusePending         bool   `mapstructure:"reuse_pending"`          // 复用同用户同套餐同支付方式的未过期待支付订单
	DefaultPaymentMethod string `mapstructure:"default_payment_method"` // 请求未指定支付方式时使用，为空取第一个已启用的方式
}

// PricingConfig 价格表配置
type PricingConfig struct {
	Plans map[string]PlanPriceConfig `mapstructure:"plans"`
}

// PlanPriceConfig 单个套餐定价
type PlanPriceConfig struct {
	Name       string           `mapstructure:"name"`
	PeriodDays int              `mapstructure:"period_days"`
	Prices     map[string]int64 `mapstructure:"prices"` // 币种 -> 最小货币单位金额
}

// PaymentConfig 支付服务商配置
type PaymentConfig struct {
	Alipay ProviderConfig `mapstructure:"alipay"`
	Paypal ProviderConfig `mapstructure:"paypal"`
	Wechat ProviderConfig `mapstructure:"wechat"`
	Stripe ProviderConfig `mapstructure:"stripe"`
	Phone  ProviderConfig `mapstructure:"phone"`
}

// ProviderConfig 单个支付服务商配置
type ProviderConfig struct {
	Enabled  bool                   `mapstructure:"enabled"`
	Currency string                 `mapstructure:"currency"`
	Options  map[string]interface{} `mapstructure:"options"` // 服务商凭据，由各支付包的 ParseConfig 解析
}

// CaptchaConfig 验证码配置
type CaptchaConfig struct {
	Provider string             `mapstructure:"provider"`
	Image    CaptchaImageConfig `mapstructure:"image"`
}

// CaptchaImageConfig 图片验证码配置
type CaptchaImageConfig struct {
	Length        int `mapstructure:"length"`
	Width         int `mapstructure:"width"`
	Height        int `mapstructure:"height"`
	NoiseCount    int `mapstructure:"noise_count"`
	ShowLine      int `mapstructure:"show_line"`
	ExpireSeconds int `mapstructure:"expire_seconds"`
	MaxStore      int `mapstructure:"max_store"`
}

// ReconcileConfig 对账补偿配置
type ReconcileConfig struct {
	CallbackLockSeconds int    `mapstructure:"callback_lock_seconds"`
	RetryMax            int    `mapstructure:"retry_max"`
	SweepSpec           string `mapstructure:"sweep_spec"` // cron 表达式
	SweepBatchSize      int    `mapstructure:"sweep_batch_size"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit RateLimitConfig `mapstructure:"login_rate_limit"`
	OrderRateLimit RateLimitConfig `mapstructure:"order_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults()

	// 环境变量支持（server.port -> SERVER_PORT）
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("app.name", "QuizMate")
	viper.SetDefault("app.public_base_url", "http://127.0.0.1:8080")
	viper.SetDefault("app.frontend_url", "http://127.0.0.1:3000")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "quizmate.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/quizmate.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 12)
	viper.SetDefault("user_jwt.secret", "user-change-me-in-production")
	viper.SetDefault("user_jwt.expire_hours", 168)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "qm")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.login_rate_limit.window_seconds", 300)
	viper.SetDefault("security.login_rate_limit.max_attempts", 5)
	viper.SetDefault("security.login_rate_limit.block_seconds", 900)
	viper.SetDefault("security.order_rate_limit.window_seconds", 60)
	viper.SetDefault("security.order_rate_limit.max_attempts", 10)
	viper.SetDefault("security.order_rate_limit.block_seconds", 120)
	viper.SetDefault("order.payment_expire_minutes", 30)
	viper.SetDefault("order.reuse_pending", true)
	viper.SetDefault("order.default_payment_method", "")
	viper.SetDefault("pricing.plans", map[string]interface{}{
		"pro_monthly": map[string]interface{}{
			"name":        "Pro Monthly",
			"period_days": 30,
			"prices":      map[string]int64{"CNY": 2999, "USD": 499},
		},
		"pro_yearly": map[string]interface{}{
			"name":        "Pro Yearly",
			"period_days": 365,
			"prices":      map[string]int64{"CNY": 29900, "USD": 4999},
		},
	})
	viper.SetDefault("payment.alipay.enabled", false)
	viper.SetDefault("payment.alipay.currency", "CNY")
	viper.SetDefault("payment.wechat.enabled", false)
	viper.SetDefault("payment.wechat.currency", "CNY")
	viper.SetDefault("payment.paypal.enabled", false)
	viper.SetDefault("payment.paypal.currency", "USD")
	viper.SetDefault("payment.stripe.enabled", false)
	viper.SetDefault("payment.stripe.currency", "USD")
	viper.SetDefault("payment.phone.enabled", false)
	viper.SetDefault("payment.phone.currency", "CNY")
	viper.SetDefault("captcha.provider", "image")
	viper.SetDefault("captcha.image.length", 5)
	viper.SetDefault("captcha.image.width", 240)
	viper.SetDefault("captcha.image.height", 80)
	viper.SetDefault("captcha.image.noise_count", 2)
	viper.SetDefault("captcha.image.show_line", 2)
	viper.SetDefault("captcha.image.expire_seconds", 300)
	viper.SetDefault("captcha.image.max_store", 10240)
	viper.SetDefault("reconcile.callback_lock_seconds", 30)
	viper.SetDefault("reconcile.retry_max", 5)
	viper.SetDefault("reconcile.sweep_spec", "@every 5m")
	viper.SetDefault("reconcile.sweep_batch_size", 100)
}
