package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/retry"
)

// RESTClient fetches subscription rows over the data service's HTTP surface.
// It shares nothing with the pgx client, so it stays usable when the pooled
// connection path is degraded.
type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRESTClient creates a RESTClient from config.
func NewRESTClient(cfg config.DataAPIConfig) *RESTClient {
	return &RESTClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a REST endpoint is configured at all.
func (c *RESTClient) Enabled() bool {
	return c.baseURL != ""
}

// FetchSubscriptions issues a filtered row fetch, newest first.
func (c *RESTClient) FetchSubscriptions(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID.String())
	q.Set("order", "created_at.desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/subscriptions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building subscription fetch: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching subscriptions: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		// Server-side trouble is worth a retry; client errors are not.
		return nil, retry.MarkTransient(fmt.Errorf("subscription fetch returned %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("subscription fetch returned %d", resp.StatusCode)
	}

	var subs []Subscription
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		return nil, fmt.Errorf("decoding subscription rows: %w", err)
	}
	return subs, nil
}
