package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
)

// keyPrefix namespaces report blobs in a shared Redis instance.
const keyPrefix = "report_files:"

// RedisStore keeps generated report files in Redis with a TTL. Expired
// files must be regenerated from history.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and returns a blob store.
// Returns nil (no store) if Redis is not configured.
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := time.Duration(cfg.FileTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	return &RedisStore{client: client, ttl: ttl, logger: logger.Named("blobstore")}, nil
}

// Put stores the file bytes under a timestamped key.
func (s *RedisStore) Put(ctx context.Context, data []byte, suggestedName string) (*PutResult, error) {
	path := fmt.Sprintf("%s%d/%s", keyPrefix, time.Now().UnixNano(), suggestedName)

	if err := s.client.Set(ctx, path, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store blob %q: %w: %w", suggestedName, apperrors.ErrBlobStoreUnavailable, err)
	}

	s.logger.Debug("stored report file",
		zap.String("path", path),
		zap.Int("size", len(data)))

	return &PutResult{Path: path, Size: int64(len(data))}, nil
}

// Get returns the bytes stored at path.
func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch blob %q: %w: %w", path, apperrors.ErrBlobStoreUnavailable, err)
	}
	return data, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
