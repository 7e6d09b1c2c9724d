package queue

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 超时取消、支付通知
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 对账补偿，优先消费
	CriticalQueue = constants.QueueCritical

	defaultConcurrency = 10
)

// Client 任务投递端，未启用时所有投递都是空操作
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(redisOpt(cfg))}, nil
}

// Enabled 是否会真正投递
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderPaid 订单支付成功通知，同一订单只投递一次
func (c *Client) EnqueueOrderPaid(payload OrderPaidPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderPaidTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, asynq.Queue(DefaultQueue), asynq.TaskID("paid:"+payload.OrderID))
}

// EnqueueReconcileRetry 对账补偿，delay 后执行，maxRetry<=0 时使用 asynq 默认重试次数
func (c *Client) EnqueueReconcileRetry(payload ReconcileRetryPayload, delay time.Duration, maxRetry int) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewReconcileRetryTask(payload)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(CriticalQueue), asynq.ProcessIn(nonNegative(delay))}
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}
	return c.enqueue(task, opts...)
}

// EnqueueOrderTimeoutCancel 到期后关闭未支付订单，同一订单只保留一个任务
func (c *Client) EnqueueOrderTimeoutCancel(payload OrderTimeoutCancelPayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderTimeoutCancelTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(DefaultQueue),
		asynq.ProcessIn(nonNegative(delay)),
		asynq.TaskID("timeout:"+payload.OrderID),
	)
}

func (c *Client) enqueue(task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.client.Enqueue(task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// BuildServerConfig 消费端连接与并发配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency: defaultConcurrency,
		Queues:      map[string]int{CriticalQueue: 2, DefaultQueue: 1},
	}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			serverCfg.Concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			serverCfg.Queues = cfg.Queues
		}
	}
	return redisOpt(cfg), serverCfg
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
