package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/recallbox/recallbox/internal/llm"
)

const (
	// historyMaxTurns bounds the conversation context sent to the model.
	historyMaxTurns = 20
	historyTTL      = 24 * time.Hour
)

// History manages per-user conversation context in Redis lists. Losing it is
// harmless; the next generation simply starts a fresh conversation.
type History struct {
	client *redis.Client
}

// NewHistory creates a Redis-backed conversation History.
func NewHistory(client *redis.Client) *History {
	return &History{client: client}
}

func historyKey(userID uuid.UUID) string {
	return fmt.Sprintf("genhist:%s", userID.String())
}

// Recent returns the user's most recent conversation turns, oldest first.
func (h *History) Recent(ctx context.Context, userID uuid.UUID) ([]llm.Message, error) {
	key := historyKey(userID)

	vals, err := h.client.LRange(ctx, key, int64(-historyMaxTurns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	msgs := make([]llm.Message, 0, len(vals))
	for _, v := range vals {
		var msg llm.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			continue // skip malformed entries
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Append records a conversation turn and trims the list to the retained window.
func (h *History) Append(ctx context.Context, userID uuid.UUID, msg llm.Message) error {
	key := historyKey(userID)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling turn: %w", err)
	}

	pipe := h.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-historyMaxTurns), -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Clear deletes the user's conversation history.
func (h *History) Clear(ctx context.Context, userID uuid.UUID) error {
	return h.client.Del(ctx, historyKey(userID)).Err()
}
