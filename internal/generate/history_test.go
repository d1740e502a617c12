package generate

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/llm"
)

func setupHistory(t *testing.T) (*History, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewHistory(client), mr
}

func TestHistory_AppendAndRecent(t *testing.T) {
	h, _ := setupHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "user", Content: "cards about Go"}))
	require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "assistant", Content: "Front: ..."}))

	msgs, err := h.Recent(ctx, userID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "cards about Go", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestHistory_TrimsToWindow(t *testing.T) {
	h, _ := setupHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < historyMaxTurns+5; i++ {
		require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)}))
	}

	msgs, err := h.Recent(ctx, userID)
	require.NoError(t, err)
	require.Len(t, msgs, historyMaxTurns)
	// oldest retained turn is the first after the trim window
	assert.Equal(t, "turn 5", msgs[0].Content)
}

func TestHistory_UsersIsolated(t *testing.T) {
	h, _ := setupHistory(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, h.Append(ctx, alice, llm.Message{Role: "user", Content: "alice"}))

	msgs, err := h.Recent(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistory_Clear(t *testing.T) {
	h, _ := setupHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "user", Content: "hi"}))
	require.NoError(t, h.Clear(ctx, userID))

	msgs, err := h.Recent(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistory_SkipsMalformedEntries(t *testing.T) {
	h, mr := setupHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "user", Content: "good"}))
	_, err := mr.Lpush(historyKey(userID), "{not json")
	require.NoError(t, err)

	msgs, err := h.Recent(ctx, userID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "good", msgs[0].Content)
}

func TestHistory_SetsTTL(t *testing.T) {
	h, mr := setupHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, h.Append(ctx, userID, llm.Message{Role: "user", Content: "hi"}))
	assert.Equal(t, historyTTL, mr.TTL(historyKey(userID)))
}
