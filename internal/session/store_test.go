// internal/session/store_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/config"
	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
)

func setupStore(t *testing.T, cfg config.HistoryConfig) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, cfg, logger.NewTestLogger(t)), mr
}

func TestAppendAndWindowRoundTrip(t *testing.T) {
	store, _ := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 3600})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1",
		models.Turn{Role: models.RoleUser, Content: "cheap coffee in D1"},
		models.Turn{Role: models.RoleAssistant, Content: "Try The Still."},
	))

	turns, err := store.Window(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "cheap coffee in D1", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
}

func TestWindowCapsAtConfiguredTurns(t *testing.T) {
	store, _ := setupStore(t, config.HistoryConfig{WindowTurns: 2, TTL: 3600})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "s1",
			models.Turn{Role: models.RoleUser, Content: "q"},
			models.Turn{Role: models.RoleAssistant, Content: "a"},
		))
	}

	turns, err := store.Window(ctx, "s1")
	require.NoError(t, err)
	// 2 turns of window means at most 4 messages.
	assert.Len(t, turns, 4)
}

func TestWindowMissingSessionIsEmpty(t *testing.T) {
	store, _ := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 3600})

	turns, err := store.Window(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendSetsTTL(t *testing.T) {
	store, mr := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 60})

	require.NoError(t, store.Append(context.Background(), "s1",
		models.Turn{Role: models.RoleUser, Content: "q"}))

	ttl := mr.TTL(keyPrefix + "s1")
	assert.Equal(t, 60*time.Second, ttl)
}

func TestResetDropsSession(t *testing.T) {
	store, _ := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 3600})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "q"}))
	require.NoError(t, store.Reset(ctx, "s1"))

	turns, err := store.Window(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestWindowSkipsCorruptEntries(t *testing.T) {
	store, mr := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 3600})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "good"}))
	_, err := mr.Push(keyPrefix+"s1", "{not json")
	require.NoError(t, err)

	turns, err := store.Window(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good", turns[0].Content)
}

func TestStoreFailureSurfacesHistoryError(t *testing.T) {
	store, mr := setupStore(t, config.HistoryConfig{WindowTurns: 3, TTL: 3600})
	mr.Close()

	err := store.Append(context.Background(), "s1", models.Turn{Role: models.RoleUser, Content: "q"})
	require.Error(t, err)
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeHistoryUnavailable, stdErr.Code)
}
