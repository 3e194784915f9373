package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/logger"
)

// RedisLedger appends events to a Redis list. RPUSH is atomic, so
// concurrent appends from several gateways never interleave a record.
type RedisLedger struct {
	client *redis.Client
	key    string
	logger *logger.Logger
}

// NewRedisLedger connects to cfg.RedisURL and verifies the connection.
func NewRedisLedger(cfg config.RedisConfig, log *logger.Logger) (*RedisLedger, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if log == nil {
		log = logger.Nop()
	}

	key := cfg.Key
	if key == "" {
		key = "pii-gateway:audit"
	}

	l := &RedisLedger{
		client: redis.NewClient(opts),
		key:    key,
		logger: log.WithComponent("audit-redis"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	l.logger.Info("Redis audit ledger initialized",
		zap.String("redis_url", maskURL(cfg.RedisURL)),
		zap.String("key", key))

	return l, nil
}

func (l *RedisLedger) Backend() string { return "redis" }

// Append pushes ev onto the tail of the list.
func (l *RedisLedger) Append(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if err := l.client.RPush(ctx, l.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push audit event: %w", err)
	}
	return nil
}

// Events returns the whole list. An entry that does not decode is skipped
// and logged.
func (l *RedisLedger) Events(ctx context.Context) ([]Event, error) {
	raw, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for i, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			l.logger.Error("Skipping undecodable audit entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the Redis connection.
func (l *RedisLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
