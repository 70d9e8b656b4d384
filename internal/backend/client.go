package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plazenbot/pkg/logx"
)

type Config struct {
	// URL is the Supabase project URL, e.g. https://xyz.supabase.co.
	URL string
	// ServiceKey is the service-role key. The bot acts on behalf of arbitrary
	// chat users, so it must bypass row-level security.
	ServiceKey string

	RequestTimeout time.Duration
}

// Client talks to the hosted Supabase store through its PostgREST endpoint.
// It is read-only: every call is a filtered GET.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("supabase url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("supabase url: %w", err)
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, errors.New("supabase service key is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: base,
		key:     strings.TrimSpace(cfg.ServiceKey),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

// get runs one PostgREST read against table and decodes the JSON array reply
// into out. Transport errors and non-2xx replies come back wrapped as
// ErrBackendUnavailable.
func (c *Client) get(ctx context.Context, table string, query url.Values, out any) error {
	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading reply: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode/100 != 2 {
		c.log.Warn("postgrest query failed",
			logx.String("table", table),
			logx.Int("status", resp.StatusCode),
			logx.Duration("dur", time.Since(start)),
			logx.String("body", truncate(string(body), 300)),
		)
		return fmt.Errorf("%w: %s returned http %d", ErrBackendUnavailable, table, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s reply: %v", ErrBackendUnavailable, table, err)
	}

	c.log.Debug("postgrest query ok",
		logx.String("table", table),
		logx.Duration("dur", time.Since(start)),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
