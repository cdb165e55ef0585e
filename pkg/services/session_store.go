package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/config"
)

// sessionHistoryTTL bounds how long a mirrored history outlives its
// last write.
const sessionHistoryTTL = 24 * time.Hour

// SessionStore mirrors session history to an external store so a
// restarted engine can rehydrate conversational context. The mirror is
// best-effort; the in-memory window stays authoritative.
type SessionStore interface {
	// SaveTurn appends one turn to the stored history.
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error

	// LoadHistory returns up to limit most recent turns, oldest first.
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Close releases the underlying connection.
	Close() error
}

// RedisStore keeps each session's history in a Redis list, trimmed to
// the history window and expired after sessionHistoryTTL of silence.
type RedisStore struct {
	client *redis.Client
	limit  int
	logger *zap.Logger
}

// NewRedisStore connects to Redis per cfg. When no Redis host is
// configured it returns (nil, nil) and sessions stay memory-only.
func NewRedisStore(cfg *config.RedisConfig, historyLimit int, logger *zap.Logger) (SessionStore, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	if historyLimit < 1 {
		historyLimit = defaultHistoryLimit
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, limit: historyLimit, logger: logger.Named("session-store")}, nil
}

func historyKey(sessionID string) string {
	return "sqlmend:session:" + sessionID + ":history"
}

func (s *RedisStore) SaveTurn(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -int64(s.limit), -1)
	pipe.Expire(ctx, key, sessionHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist turn for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit < 1 {
		limit = s.limit
	}
	raw, err := s.client.LRange(ctx, historyKey(sessionID), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			s.logger.Warn("skipping malformed stored turn", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ SessionStore = (*RedisStore)(nil)
