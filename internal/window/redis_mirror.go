package window

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKey     = "flowlabel:window"
	defaultChannel = "flowlabel:window:updates"
	redisTimeout   = 2 * time.Second
)

// redisClient is the part of *redis.Client the mirror uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisMirror stores the latest window under a key and publishes every update.
// It implements model.WindowObserver.
type RedisMirror struct {
	client  redisClient
	closer  func() error
	key     string
	channel string
}

// NewRedisMirror connects to redis and checks the connection.
func NewRedisMirror(cfg config.WindowMirrorConfig) (*RedisMirror, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.SchedLog.Infof("Connected to Redis: %s", cfg.RedisURL)

	m := newMirror(client, cfg.Key, cfg.Channel)
	m.closer = client.Close
	return m, nil
}

func newMirror(client redisClient, key, channel string) *RedisMirror {
	if key == "" {
		key = defaultKey
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisMirror{client: client, key: key, channel: channel}
}

// ObserveWindow mirrors one window. Failures are logged; they never hold up the scheduler.
func (m *RedisMirror) ObserveWindow(ctx context.Context, w model.AttackWindow) {
	data, err := json.Marshal(ViewOf(w))
	if err != nil {
		logger.SchedLog.Warnf("Failed to encode window: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := m.client.Set(ctx, m.key, data, 0).Err(); err != nil {
		logger.SchedLog.Warnf("Failed to store window in redis: %v", err)
		return
	}
	if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
		logger.SchedLog.Warnf("Failed to publish window to redis: %v", err)
	}
}

// Close closes the redis client.
func (m *RedisMirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
