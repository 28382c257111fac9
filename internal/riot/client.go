// Package riot is a rate-limit aware client for the Riot Games API: account
// resolution, match-id listing, match details, and ranked lookups.
package riot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibetom/boystats/internal/metrics"
)

const (
	defaultRegionURL   = "https://americas.api.riotgames.com"
	defaultPlatformURL = "https://na1.api.riotgames.com"
	defaultTimeout     = 10 * time.Second

	// PageSize is the maximum ids returned by one match-id listing call.
	PageSize = 100
)

// Client calls the Riot API with the X-Riot-Token header and retries
// throttled requests according to its RetryPolicy.
type Client struct {
	apiKey      string
	regionURL   string
	platformURL string
	httpClient  *http.Client
	retry       RetryPolicy
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithRegionURL sets the regional host (account-v1, match-v5).
func WithRegionURL(u string) Option {
	return func(c *Client) { c.regionURL = strings.TrimRight(u, "/") }
}

// WithPlatformURL sets the platform host (summoner-v4, league-v4).
func WithPlatformURL(u string) Option {
	return func(c *Client) { c.platformURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the 429 retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleep replaces the backoff sleeper (useful for testing).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a client. It fails with ErrMissingCredentials when
// apiKey is empty so no request is ever sent unauthenticated.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}
	c := &Client{
		apiKey:      apiKey,
		regionURL:   defaultRegionURL,
		platformURL: defaultPlatformURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: DefaultRetryPolicy(),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetJSON fetches rawURL and decodes the JSON body into out. HTTP 429 is
// retried per the policy; any other non-2xx fails immediately with an
// *UpstreamError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	endpoint := endpointLabel(rawURL)

	for attempt := 1; ; attempt++ {
		status, header, body, err := c.do(ctx, endpoint, rawURL)
		if err != nil {
			return err
		}

		if status == http.StatusTooManyRequests {
			wait, ok := c.retry.Backoff(attempt, header.Get("Retry-After"))
			if !ok {
				return &UpstreamError{Status: status, Body: string(body), URL: rawURL, Err: ErrRateLimitExceeded}
			}
			metrics.RateLimitRetries.Inc()
			slog.Warn("riot rate limited, backing off",
				"endpoint", endpoint,
				"attempt", attempt,
				"wait_ms", wait.Milliseconds(),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("riot: backoff interrupted: %w", err)
			}
			continue
		}

		if status < 200 || status > 299 {
			return &UpstreamError{Status: status, Body: string(body), URL: rawURL}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("riot: decode %s response: %w", endpoint, err)
		}
		return nil
	}
}

func (c *Client) do(ctx context.Context, endpoint, rawURL string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("riot: build request: %w", err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return 0, nil, nil, fmt.Errorf("riot: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("riot: read %s body: %w", endpoint, err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// --- Endpoints ---

// AccountByRiotID resolves "gameName#tagLine" to an account.
func (c *Client) AccountByRiotID(ctx context.Context, gameName, tagLine string) (*AccountResponse, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionURL, url.PathEscape(gameName), url.PathEscape(tagLine))

	var acc AccountResponse
	if err := c.GetJSON(ctx, u, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// MatchIDsQuery selects one page of a player's match history.
type MatchIDsQuery struct {
	Start     int
	Count     int   // defaults to PageSize
	Queue     int   // 0 = all queues
	StartTime int64 // epoch seconds, 0 = unbounded
}

// MatchIDs lists match ids for puuid, newest first.
func (c *Client) MatchIDs(ctx context.Context, puuid string, q MatchIDsQuery) ([]string, error) {
	if q.Count <= 0 || q.Count > PageSize {
		q.Count = PageSize
	}
	params := url.Values{}
	params.Set("start", strconv.Itoa(q.Start))
	params.Set("count", strconv.Itoa(q.Count))
	if q.Queue > 0 {
		params.Set("queue", strconv.Itoa(q.Queue))
	}
	if q.StartTime > 0 {
		params.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	}
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?%s",
		c.regionURL, url.PathEscape(puuid), params.Encode())

	var ids []string
	if err := c.GetJSON(ctx, u, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Match fetches full match details.
func (c *Client) Match(ctx context.Context, matchID string) (*MatchResponse, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionURL, url.PathEscape(matchID))

	var m MatchResponse
	if err := c.GetJSON(ctx, u, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SummonerByPUUID fetches summoner data from the platform host.
func (c *Client) SummonerByPUUID(ctx context.Context, puuid string) (*SummonerResponse, error) {
	u := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s", c.platformURL, url.PathEscape(puuid))

	var s SummonerResponse
	if err := c.GetJSON(ctx, u, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LeagueEntries returns ranked entries for a summoner id.
func (c *Client) LeagueEntries(ctx context.Context, summonerID string) ([]LeagueEntry, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-summoner/%s", c.platformURL, url.PathEscape(summonerID))

	var entries []LeagueEntry
	if err := c.GetJSON(ctx, u, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func endpointLabel(rawURL string) string {
	switch {
	case strings.Contains(rawURL, "/riot/account/"):
		return "account"
	case strings.Contains(rawURL, "/ids"):
		return "match_ids"
	case strings.Contains(rawURL, "/lol/match/"):
		return "match"
	case strings.Contains(rawURL, "/summoner/"):
		return "summoner"
	case strings.Contains(rawURL, "/league/"):
		return "league"
	}
	return "other"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
