// internal/session/store.go
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/config"
	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
)

const keyPrefix = "session:history:"

// Store keeps one append-only conversation log per session id in a Redis
// list. The design assumes at most one in-flight request per session id;
// concurrent appends for the same id may interleave, which is accepted
// rather than serialized.
type Store struct {
	client *redis.Client
	log    logger.Logger
	window int
	ttl    time.Duration
}

func NewStore(client *redis.Client, cfg config.HistoryConfig, log logger.Logger) *Store {
	return &Store{
		client: client,
		log:    log,
		window: cfg.WindowTurns,
		ttl:    time.Duration(cfg.TTL) * time.Second,
	}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// Append pushes turns onto the session log and refreshes its expiry.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return apperrors.NewHistoryUnavailableError(err)
		}
		values = append(values, raw)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key(sessionID), values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewHistoryUnavailableError(err)
	}
	return nil
}

// Window returns the most recent turns of the session, capped at the
// configured window (two messages per turn). A missing session yields an
// empty slice.
func (s *Store) Window(ctx context.Context, sessionID string) ([]models.Turn, error) {
	count := int64(s.window) * 2
	if count <= 0 {
		return nil, nil
	}

	raw, err := s.client.LRange(ctx, key(sessionID), -count, -1).Result()
	if err != nil {
		return nil, apperrors.NewHistoryUnavailableError(err)
	}

	turns := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			// A corrupt entry is skipped, not fatal: losing one turn of
			// context beats losing the whole session.
			s.log.Warn("skipping corrupt history entry", map[string]interface{}{
				"sessionId": sessionID,
			})
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Reset drops the session log, used when the user starts a new topic.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return apperrors.NewHistoryUnavailableError(err)
	}
	return nil
}
