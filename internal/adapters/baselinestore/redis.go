package baselinestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisMaxRetries = 5

// RedisStore is a Redis implementation of the BaselineStore interface.
// Updates use optimistic locking (WATCH/MULTI) and retry on contention.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a new Redis baseline store
func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if prefix == "" {
		prefix = "mailsentry:baseline"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (s *RedisStore) key(tenantID, senderEmail string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, tenantID, senderEmail)
}

// Get retrieves the baseline for a sender within a tenant
func (s *RedisStore) Get(ctx context.Context, tenantID, senderEmail string) (*core.UserBaseline, error) {
	raw, err := s.client.Get(ctx, s.key(tenantID, senderEmail)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrBaselineNotFound
		}
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}

	var baseline core.UserBaseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	return &baseline, nil
}

// Update applies merge to the stored baseline under a WATCH so that a
// concurrent writer forces a retry instead of a lost update
func (s *RedisStore) Update(ctx context.Context, tenantID, senderEmail string, seed *core.UserBaseline, merge core.MergeFunc) error {
	key := s.key(tenantID, senderEmail)

	txn := func(tx *redis.Tx) error {
		working := seed.Clone()
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return fmt.Errorf("failed to query baseline: %w", err)
		default:
			working = &core.UserBaseline{}
			if err := json.Unmarshal(raw, working); err != nil {
				return fmt.Errorf("failed to decode baseline: %w", err)
			}
		}

		merge(working)

		encoded, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to encode baseline: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < redisMaxRetries; i++ {
		err = s.client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
		s.logger.Debug("Baseline update contention, retrying",
			zap.String("tenant_id", tenantID),
			zap.String("sender", senderEmail))
	}
	return fmt.Errorf("failed to update baseline after %d retries: %w", redisMaxRetries, err)
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
