package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/redis/go-redis/v9"
)

// 进程级 Redis 客户端，未启用时所有读写都是空操作
var (
	redisClient *redis.Client
	redisPrefix = constants.RedisPrefixDefault
)

// InitRedis 按配置创建客户端，disabled 时清空已有客户端
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		redisClient = nil
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	if prefix := strings.TrimSpace(cfg.Prefix); prefix != "" {
		redisPrefix = prefix
	}
	redisClient = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return nil
}

// Enabled Redis 是否可用
func Enabled() bool {
	return redisClient != nil
}

// Client 原始客户端，供限流等需要直接执行命令的场景使用
func Client() *redis.Client {
	return redisClient
}

func getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := redisClient.Get(ctx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dest)
}

func setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return redisClient.Set(ctx, buildKey(key), raw, ttl).Err()
}

func del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Del(ctx, buildKey(key)).Err()
}

func buildKey(key string) string {
	if key = strings.TrimSpace(key); key == "" {
		return redisPrefix
	}
	return redisPrefix + ":" + key
}
