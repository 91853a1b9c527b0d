package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// SnapshotKey is the hash holding the latest snapshot JSON per view.
	SnapshotKey = "site:snapshots"
	// SnapshotChannelPrefix + view is published on every new snapshot.
	SnapshotChannelPrefix = "site:snapshot:"
	// ContactStream receives accepted contact form submissions.
	ContactStream = "contact:messages"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32 // 0: closed, 1: open, 2: half-open
}

// New constructs a Client from a redis:// URL.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// checkCircuitBreaker checks if circuit breaker should be opened/closed
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil {
		failures := atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

		// A failed trial call reopens at once
		if atomic.CompareAndSwapInt32(&c.state, 2, 1) {
			logger.Log.Warn("circuit breaker reopened", zap.String("operation", "redis"))
			return
		}
		// Open circuit breaker after 5 consecutive failures
		if failures >= 5 && atomic.CompareAndSwapInt32(&c.state, 0, 1) {
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
		}
		return
	}

	atomic.StoreInt64(&c.failureCount, 0)
	if atomic.SwapInt32(&c.state, 0) != 0 {
		logger.Log.Info("circuit breaker closed", zap.String("operation", "redis"))
	}
}

// open reports whether calls should be refused. An open breaker lets a trial call
// through once 30s have passed since the last failure.
func (c *Client) open() bool {
	if atomic.LoadInt32(&c.state) != 1 {
		return false
	}
	if time.Now().Unix()-atomic.LoadInt64(&c.lastFailure) >= 30 {
		atomic.CompareAndSwapInt32(&c.state, 1, 2)
		return false
	}
	return true
}

// retry runs op with exponential backoff, giving up early once the breaker
// opens.
func (c *Client) retry(op func() error) error {
	return backoff.Retry(func() error {
		if c.open() {
			return backoff.Permanent(ErrCircuitBreakerOpen)
		}
		return op()
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
}

// AddToStream appends into a Redis Stream with retry/backoff
func (c *Client) AddToStream(ctx context.Context, stream string, values map[string]interface{}) error {
	return c.withMetrics("xadd", func() error {
		return c.retry(func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			_, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
				Stream: stream,
				Values: values,
			}).Result()
			c.checkCircuitBreaker(err)
			return err
		})
	})
}

// Publish wraps rdb.Publish with a short timeout and retry/backoff
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	return c.withMetrics("publish", func() error {
		return c.retry(func() error {
			ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			err := c.rdb.Publish(ctx, channel, msg).Err()
			c.checkCircuitBreaker(err)
			return err
		})
	})
}

// HSet sets hash fields with retry
func (c *Client) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return c.withMetrics("hset", func() error {
		return c.retry(func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.HSet(ctx, key, values).Err()
			c.checkCircuitBreaker(err)
			return err
		})
	})
}

// CacheSnapshot stores the latest snapshot of view and announces it to
// subscribers of SnapshotChannelPrefix+view.
func (c *Client) CacheSnapshot(ctx context.Context, view string, payload []byte) error {
	if err := c.HSet(ctx, SnapshotKey, map[string]interface{}{view: payload}); err != nil {
		return fmt.Errorf("cache snapshot %s: %w", view, err)
	}
	if err := c.Publish(ctx, SnapshotChannelPrefix+view, payload); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", view, err)
	}
	return nil
}

// CachedSnapshot returns the last cached snapshot of view, or redis.Nil.
func (c *Client) CachedSnapshot(ctx context.Context, view string) ([]byte, error) {
	var out []byte
	err := c.withMetrics("hget", func() error {
		b, err := c.rdb.HGet(ctx, SnapshotKey, view).Bytes()
		out = b
		return err
	})
	return out, err
}

// EnqueueContact appends an accepted contact message to ContactStream.
func (c *Client) EnqueueContact(ctx context.Context, payload []byte) error {
	return c.AddToStream(ctx, ContactStream, map[string]interface{}{
		"payload": payload,
	})
}

// ReadContacts returns up to count messages appended to ContactStream after
// lastID, waiting up to block for the first one. An empty wait yields no
// messages and no error.
func (c *Client) ReadContacts(ctx context.Context, lastID string, count int64, block time.Duration) ([]redis.XMessage, error) {
	var out []redis.XMessage
	err := c.withMetrics("xread", func() error {
		res, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{ContactStream, lastID},
			Count:   count,
			Block:   block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(res) > 0 {
			out = res[0].Messages
		}
		return nil
	})
	return out, err
}

// LastContactID returns the ID of the newest message on ContactStream, or
// "0-0" when the stream is empty.
func (c *Client) LastContactID(ctx context.Context) (string, error) {
	id := "0-0"
	err := c.withMetrics("xrevrange", func() error {
		msgs, err := c.rdb.XRevRangeN(ctx, ContactStream, "+", "-", 1).Result()
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			id = msgs[0].ID
		}
		return nil
	})
	return id, err
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
