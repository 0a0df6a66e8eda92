package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single scoring request. Inference is not
	// retried; a timeout is terminal for that message.
	DefaultTimeout = 5 * time.Second

	scorePath  = "/score"
	healthPath = "/healthz"
)

// ClientConfig holds connection settings for the scoring sidecar.
type ClientConfig struct {
	BaseURL string        // e.g. http://localhost:9000
	Model   string        // model variant, e.g. "original" or "unbiased-small"
	Timeout time.Duration // per-request timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:9000",
		Model:   "original",
		Timeout: DefaultTimeout,
	}
}

// Client scores message text against a pretrained toxicity model served
// over HTTP. The client is stateless per call and safe for concurrent
// use; scores are not cached.
type Client struct {
	config ClientConfig
	http   *http.Client
	ready  bool
}

// scoreRequest is the wire format sent to the sidecar.
type scoreRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// NewClient connects to the scoring sidecar and probes its readiness.
// If the model is not reachable or not loaded, the returned client is
// still usable but every Score call fails with ErrModelUnavailable, so
// the pipeline can observe the degraded state without crashing.
func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}

	if err := c.probe(ctx); err != nil {
		return c, fmt.Errorf("classify: model init: %w", err)
	}
	c.ready = true
	return c, nil
}

// Ready reports whether the model initialized at construction time.
func (c *Client) Ready() bool { return c.ready }

// probe checks the sidecar's health endpoint once.
func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}

// Score sends text to the model and returns its per-category
// probabilities. It fails with ErrModelUnavailable when the model never
// initialized, and with a *ScoringError when inference fails for this
// input. Neither failure is retried.
func (c *Client) Score(ctx context.Context, text string) (Scores, error) {
	if !c.ready {
		return nil, ErrModelUnavailable
	}

	body, err := json.Marshal(scoreRequest{Text: text, Model: c.config.Model})
	if err != nil {
		return nil, &ScoringError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+scorePath, bytes.NewReader(body))
	if err != nil {
		return nil, &ScoringError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ScoringError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ScoringError{Cause: fmt.Errorf("model returned %s: %s", resp.Status, bytes.TrimSpace(payload))}
	}

	var scores Scores
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, &ScoringError{Cause: fmt.Errorf("decode scores: %w", err)}
	}
	return scores, nil
}
