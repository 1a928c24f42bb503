package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatbook/internal/config"
	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

const (
	draftKeyPrefix     = "draft:"
	rateLimitKeyPrefix = "rate_limit:"
)

func draftKey(botID, conversationID string) string {
	return draftKeyPrefix + botID + ":" + conversationID
}

// NewRedisClient создает клиент Redis по конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisDraftRepository keeps one JSON document per conversation with a TTL
// that restarts on every write.
type RedisDraftRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.DraftRepository = (*RedisDraftRepository)(nil)

func NewRedisDraftRepository(client *redis.Client, ttl time.Duration) *RedisDraftRepository {
	return &RedisDraftRepository{client: client, ttl: ttl}
}

// GetDraft returns nil, nil when the conversation has no draft.
func (r *RedisDraftRepository) GetDraft(ctx context.Context, botID, conversationID string) (*models.Draft, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	raw, err := r.client.Get(ctx, draftKey(botID, conversationID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get draft: %w", err)
	}

	draft := &models.Draft{}
	if err := json.Unmarshal(raw, draft); err != nil {
		return nil, fmt.Errorf("decode draft %s/%s: %w", botID, conversationID, err)
	}
	return draft, nil
}

func (r *RedisDraftRepository) SetDraft(ctx context.Context, draft *models.Draft) error {
	if r.client == nil {
		return errNilClient
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKey(draft.BotID, draft.ConversationID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

func (r *RedisDraftRepository) ClearDraft(ctx context.Context, botID, conversationID string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, draftKey(botID, conversationID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed-window counter. The window starts with the first
// hit; a counter that somehow lost its expiry gets one again.
func (r *RedisDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	rlKey := rateLimitKeyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, rlKey)
		ttl = p.TTL(ctx, rlKey)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}

	// TTL reports -1 for a key without expiry.
	if incr.Val() == 1 || ttl.Val() < 0 {
		if err := r.client.Expire(ctx, rlKey, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit window %s: %w", key, err)
		}
	}
	return incr.Val() <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
