package router

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

// RuleFromConfig 由配置构造限流规则
func RuleFromConfig(prefix string, cfg config.RateLimitConfig) RateLimitRule {
	window := cfg.WindowSeconds
	if cfg.BlockSeconds > window {
		window = cfg.BlockSeconds
	}
	return RateLimitRule{
		Prefix:        prefix,
		WindowSeconds: window,
		MaxRequests:   cfg.MaxAttempts,
	}
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RateLimitMiddleware 固定窗口计数，超限返回 429 并带 Retry-After
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}
		key := rule.key(c, keyFunc)

		// Redis 故障时放行
		values, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Int64Slice()
		if err != nil || len(values) < 2 {
			logger.Warnw("rate_limit_unavailable", "prefix", rule.Prefix, "error", err)
			c.Next()
			return
		}
		if values[0] <= int64(rule.MaxRequests) {
			c.Next()
			return
		}

		wait := retryAfter(values[1], rule.WindowSeconds)
		logger.Infow("rate_limit_blocked", "prefix", rule.Prefix, "key", key, "retry_after", wait)
		c.Header("Retry-After", strconv.Itoa(wait))
		response.ErrorWithData(c, response.CodeTooManyRequests, response.ErrorCodeRateLimited, gin.H{"retry_after": wait})
		c.Abort()
	}
}

func (r RateLimitRule) key(c *gin.Context, keyFunc RateLimitKeyFunc) string {
	key := ""
	if keyFunc != nil {
		key = strings.TrimSpace(keyFunc(c))
	}
	if key == "" {
		key = c.ClientIP()
	}
	if r.Prefix == "" {
		return key
	}
	return r.Prefix + ":" + key
}

// retryAfter 优先使用 key 剩余 TTL，TTL 异常时按整个窗口计算
func retryAfter(ttl int64, window int) int {
	if ttl >= 1 {
		return int(ttl)
	}
	if window >= 1 {
		return window
	}
	return 1
}

// KeyByIP 按客户端 IP 限流
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByUserID 已登录用户按用户 ID 限流，未登录时退化为 IP
func KeyByUserID(c *gin.Context) string {
	if userID := strings.TrimSpace(c.GetString("user_id")); userID != "" {
		return "user:" + userID
	}
	return c.ClientIP()
}

// KeyByIPAndJSONField 按 JSON 请求体中的字段 + IP 限流，例如登录用户名
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(peekJSONField(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

// peekJSONField 读取请求体中的字符串字段，读完后恢复 Body 供 handler 绑定
func peekJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
