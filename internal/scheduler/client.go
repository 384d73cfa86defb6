package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// maxRetry bounds how long a failed write keeps retrying with asynq's
// default backoff.
const maxRetry = 10

// Client enqueues persistence retries. It implements ports.RetryQueue.
type Client struct {
	client *asynq.Client
	queue  string
}

var _ ports.RetryQueue = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueuePersist(ctx context.Context, deal domain.Deal) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewDealPersistTask(DealPersistPayload{Deal: deal})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(maxRetry))
	return err
}

func (c *Client) EnqueueDelete(ctx context.Context, id string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewDealDeleteTask(DealDeletePayload{DealID: id})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(maxRetry))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
