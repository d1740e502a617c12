package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/retry"
)

func TestRESTClient_FetchSubscriptions(t *testing.T) {
	userID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.Equal(t, "eq."+userID.String(), r.URL.Query().Get("user_id"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"id":"sub_1","user_id":%q,"status":"active","price_id":"price_1","cancel_at_period_end":false,"created_at":"2026-01-10T00:00:00Z","current_period_end":"2026-12-01T00:00:00Z"}]`, userID)
	}))
	defer srv.Close()

	c := NewRESTClient(config.DataAPIConfig{BaseURL: srv.URL, APIKey: "test-key", Timeout: time.Second})
	require.True(t, c.Enabled())

	subs, err := c.FetchSubscriptions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].ID)
	assert.Equal(t, StatusActive, subs[0].Status)
}

func TestRESTClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRESTClient(config.DataAPIConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.FetchSubscriptions(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, retry.Transient(err))
}

func TestRESTClient_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewRESTClient(config.DataAPIConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.FetchSubscriptions(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, retry.Transient(err))
}
