package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/telemetry"
)

const (
	defaultTimeout  = 3 * time.Second
	defaultRetries  = 2
	fallbackPolicy  = "heuristic"
	prewarmLimit    = 12
	prewarmPolicy   = "dkt"
	sharedSecretKey = "X-AI-Token"
)

type Config struct {
	BaseURL      string
	SharedSecret string
	Timeout      time.Duration
	Retries      int

	// Cache is optional. Without one every Get goes to the upstream and
	// stale-on-error is unavailable.
	Cache *Cache
}

// Client proxies the external AI recommendation service. Every call is
// best-effort: bounded timeout, a bounded number of attempts, a policy
// fallback, and a TTL cache in front. Nothing here is required for
// correctness of the rest of the system.
type Client struct {
	baseURL string
	secret  string
	retries int
	cache   *Cache
	sf      singleflight.Group
	http    *http.Client
}

func NewClient(c Config) *Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := c.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	return &Client{
		baseURL: c.BaseURL,
		secret:  c.SharedSecret,
		retries: retries,
		cache:   c.Cache,
		http:    &http.Client{Timeout: timeout},
	}
}

type Query struct {
	UserID   string
	Limit    int
	Policy   string
	MixRatio string
}

// Response is the upstream payload, passed through opaquely.
type Response struct {
	Success bool              `json:"success"`
	Items   []json.RawMessage `json:"items"`
	Stale   bool              `json:"stale,omitempty"`
}

// Get returns recommendations for a user, served from cache when fresh.
// When the upstream fails, the last known (stale) cached answer is returned
// if one exists; otherwise Unavailable.
func (c *Client) Get(ctx context.Context, q Query) (*Response, error) {
	if q.UserID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user_id is required"))
	}

	key := cacheKey("/recommendations", q)

	var (
		cached json.RawMessage
		fresh  bool
	)
	if c.cache != nil {
		var err error
		cached, fresh, err = c.cache.Get(ctx, key)
		if err != nil {
			slog.ErrorContext(ctx, "recommend: cache read failed", "error", err)
		}
		if fresh {
			return decode(cached, false)
		}
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		body, err := c.fetchWithFallback(ctx, q)
		if err != nil {
			return nil, err
		}

		if c.cache != nil {
			if err := c.cache.Set(ctx, key, body); err != nil {
				slog.ErrorContext(ctx, "recommend: cache write failed", "error", err)
			}
		}

		return body, nil
	})
	if err != nil {
		if cached != nil {
			return decode(cached, true)
		}
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("recommendation service unreachable"),
			errors.WithCause(err))
	}

	return decode(v.(json.RawMessage), false)
}

// Prewarm fills the cache for a user in the background. All failures are
// logged and discarded; the caller is never blocked or failed.
func (c *Client) Prewarm(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout+time.Second)
		defer cancel()

		_, err := c.Get(ctx, Query{
			UserID: userID,
			Limit:  prewarmLimit,
			Policy: prewarmPolicy,
		})
		if err != nil {
			telemetry.PrewarmFailures.Inc()
			slog.WarnContext(ctx, "recommend: prewarm failed", "user", userID, "error", err)
		}
	}()
}

// fetchWithFallback tries the requested policy, then retries on the
// heuristic policy when a different one was asked for.
func (c *Client) fetchWithFallback(ctx context.Context, q Query) (json.RawMessage, error) {
	body, err := c.fetchWithRetry(ctx, q)
	if err == nil {
		return body, nil
	}

	if q.Policy != "" && q.Policy != fallbackPolicy {
		fq := q
		fq.Policy = fallbackPolicy
		if body, ferr := c.fetchWithRetry(ctx, fq); ferr == nil {
			return body, nil
		}
	}

	return nil, err
}

func (c *Client) fetchWithRetry(ctx context.Context, q Query) (body json.RawMessage, err error) {
	for i := 0; i < c.retries; i++ {
		body, err = c.fetch(ctx, q)
		if err == nil {
			return body, nil
		}
	}
	return nil, err
}

func (c *Client) fetch(ctx context.Context, q Query) (json.RawMessage, error) {
	u, err := url.Parse(c.baseURL + "/recommendations")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	params := url.Values{}
	params.Set("user_id", q.UserID)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Policy != "" {
		params.Set("policy", q.Policy)
	}
	if q.MixRatio != "" {
		params.Set("mix_ratio", q.MixRatio)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.secret != "" {
		req.Header.Set(sharedSecretKey, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call recommendation service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recommendation service returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return raw, nil
}

func decode(raw json.RawMessage, stale bool) (*Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("bad recommendation response shape"),
			errors.WithCause(err))
	}

	r.Stale = stale
	return &r, nil
}
