// Package ask answers free-form questions about the roster's match history
// with a Gemini generateContent call.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/stats"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultMatchWindow = 300

	temperature     = 0.5
	maxOutputTokens = 8192
)

// DefaultModels is the fallback order.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-flash-latest"}

var (
	ErrMissingCredentials = errors.New("ask: gemini api key not configured")
	ErrEmptyQuestion      = errors.New("ask: question is required")
)

// Status classifies how generation ended.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusTruncated Status = "truncated"
	StatusFiltered  Status = "filtered"
)

// Answer is the model's reply.
type Answer struct {
	Text         string `json:"answer"`
	FinishReason string `json:"finishReason,omitempty"`
	Model        string `json:"model"`
	blocked      bool
}

func (a Answer) Status() Status {
	switch {
	case a.blocked, a.FinishReason == "SAFETY", a.FinishReason == "PROHIBITED_CONTENT", a.FinishReason == "BLOCKLIST":
		return StatusFiltered
	case a.FinishReason == "MAX_TOKENS":
		return StatusTruncated
	default:
		return StatusComplete
	}
}

// Client talks to the Gemini API.
type Client struct {
	apiKey      string
	baseURL     string
	models      []string
	roster      []string
	matchWindow int
	httpClient  *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModels overrides the fallback order. An empty list keeps the default.
func WithModels(models []string) Option {
	return func(c *Client) {
		if len(models) > 0 {
			c.models = models
		}
	}
}

// WithMatchWindow bounds how many match records go into the prompt.
func WithMatchWindow(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.matchWindow = n
		}
	}
}

func NewClient(apiKey string, roster []string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredentials
	}
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		models:      DefaultModels,
		roster:      roster,
		matchWindow: defaultMatchWindow,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Ask sends the question with the roster context. Models are tried in order
// until one returns 2xx; the last failure is returned if none do.
func (c *Client) Ask(ctx context.Context, question string, summary *stats.Summary, matches []model.MatchRecord) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	prompt, err := c.Prompt(question, summary, matches)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: temperature, MaxOutputTokens: maxOutputTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for _, m := range c.models {
		resp, err := c.generate(ctx, m, body)
		if err != nil {
			slog.Warn("gemini model failed", "model", m, "err", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		ans := toAnswer(resp, m)
		if ans.FinishReason != "" && ans.FinishReason != "STOP" {
			slog.Info("gemini finish reason", "model", m, "reason", ans.FinishReason)
		}
		return ans, nil
	}
	return nil, fmt.Errorf("gemini api error: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, name string, body []byte) (*generateResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", name, err)
	}
	return &out, nil
}

func toAnswer(resp *generateResponse, name string) *Answer {
	ans := &Answer{Model: name}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		ans.FinishReason = cand.FinishReason
		if len(cand.Content.Parts) > 0 {
			ans.Text = cand.Content.Parts[0].Text
		}
	}
	switch {
	case ans.Text != "":
	case resp.PromptFeedback.BlockReason != "":
		ans.Text = "Response blocked: " + resp.PromptFeedback.BlockReason
		ans.blocked = true
	default:
		ans.Text = "No response generated"
	}
	return ans
}
