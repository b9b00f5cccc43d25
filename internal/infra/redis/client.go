package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the rescan queue and notification dedup.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. An empty URL disables Redis.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func queueKey(network string) string {
	return fmt.Sprintf("planbridge:rescan:%s", network)
}

func lockKey(network string, start, end uint64) string {
	return fmt.Sprintf("planbridge:rescan_lock:%s:%d-%d", network, start, end)
}

func notifiedKey(key string) string {
	return "planbridge:notified:" + key
}

func windowMember(start, end uint64) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// PushWindow queues a failed scan window, scored by its start height.
func (c *Client) PushWindow(ctx context.Context, network string, start, end uint64) error {
	if err := c.rdb.ZAdd(ctx, queueKey(network), redis.Z{Score: float64(start), Member: windowMember(start, end)}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PopWindow removes and returns the lowest queued window.
func (c *Client) PopWindow(ctx context.Context, network string) (start, end uint64, found bool, err error) {
	results, err := c.rdb.ZPopMin(ctx, queueKey(network), 1).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("zpopmin failed: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}

	member, ok := results[0].Member.(string)
	if !ok {
		return 0, 0, false, fmt.Errorf("unexpected queue member %v", results[0].Member)
	}
	start, end, err = ParseWindowString(member)
	if err != nil {
		return 0, 0, false, err
	}
	return start, end, true, nil
}

// QueueDepth returns the number of queued windows.
func (c *Client) QueueDepth(ctx context.Context, network string) (int64, error) {
	return c.rdb.ZCard(ctx, queueKey(network)).Result()
}

const compactAttempts = 5

// CompactWindows rewrites the queue with the result of compact. The queue key
// is watched, so a window pushed between the read and the rewrite aborts the
// transaction and the compaction is retried on fresh contents.
func (c *Client) CompactWindows(ctx context.Context, network string, compact func(raw []string) ([][2]uint64, bool, error)) error {
	key := queueKey(network)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		windows, changed, err := compact(raw)
		if err != nil || !changed {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			for _, w := range windows {
				pipe.ZAdd(ctx, key, redis.Z{Score: float64(w[0]), Member: windowMember(w[0], w[1])})
			}
			return nil
		})
		return err
	}

	for range compactAttempts {
		err := c.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("compact windows: %w", err)
		}
		return nil
	}
	return fmt.Errorf("compact windows: queue changed on each of %d attempts", compactAttempts)
}

// AcquireLock attempts to take the processing lock for a window.
func (c *Client) AcquireLock(ctx context.Context, network string, start, end uint64, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(network, start, end), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (c *Client) ReleaseLock(ctx context.Context, network string, start, end uint64) error {
	return c.rdb.Del(ctx, lockKey(network, start, end)).Err()
}

// MarkNotified records an event key. It returns false if the key was already
// recorded within ttl.
func (c *Client) MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, notifiedKey(key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ForgetNotified drops an event key so a failed delivery can be retried.
func (c *Client) ForgetNotified(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, notifiedKey(key)).Err()
}

// ParseWindowString parses "12000-12249" format.
func ParseWindowString(s string) (start, end uint64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window format: %s", s)
	}
	start, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}
	end, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("start > end: %d > %d", start, end)
	}
	return start, end, nil
}
