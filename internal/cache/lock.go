package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其它请求持有
var ErrLockHeld = errors.New("lock is held by another holder")

const defaultLockTTL = 30 * time.Second

// 仅当值匹配时删除，避免误删过期后被他人重新获取的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 基于 SET NX 的分布式锁
type Lock struct {
	key   string
	token string
	held  bool
}

// Unlock 释放锁，未持有或 Redis 未启用时为空操作
func (l *Lock) Unlock(ctx context.Context) error {
	if l == nil || !l.held || !Enabled() {
		return nil
	}
	l.held = false
	return unlockScript.Run(ctx, redisClient, []string{l.key}, l.token).Err()
}

// Held 是否实际持有 Redis 锁
func (l *Lock) Held() bool {
	return l != nil && l.held
}

// TryLock 尝试获取锁
// Redis 未启用时返回未持有的空锁，调用方依赖存储层的条件更新保证幂等
func TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if !Enabled() {
		return &Lock{}, nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}
	key := buildKey("lock:" + name)
	ok, err := redisClient.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{key: key, token: token, held: true}, nil
}

// CallbackLockName 支付回调锁名称
func CallbackLockName(orderID string) string {
	return fmt.Sprintf("callback:%s", strings.TrimSpace(orderID))
}

func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
