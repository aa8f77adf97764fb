// Package httpjudge implements benchmark.Judge over HTTP+JSON, for wiring a
// real external judge service without requiring any RPC code generation
// (the judge itself is explicitly out of scope per spec §1 — this is a
// reference transport, not a judge implementation).
package httpjudge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/provider"
)

// Client calls an external judge endpoint that accepts {"prompt": "..."}
// and returns a JSON object matching benchmark.JudgeResponse.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

// New constructs a Client with sane request-timeout defaults.
func New(endpoint, apiKey string) *Client {
	return &Client{
		Endpoint: endpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

type request struct {
	Prompt string `json:"prompt"`
}

// Judge implements benchmark.Judge. Parse failures and empty bodies are
// returned as errors so the evaluation protocol can promote the case to
// status=error with judge_error=1 (§4.B, §7 taxonomy item 6).
func (c *Client) Judge(ctx context.Context, prompt string) (benchmark.JudgeResponse, error) {
	body, err := json.Marshal(request{Prompt: prompt})
	if err != nil {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return benchmark.JudgeResponse{}, &provider.StatusError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("httpjudge: judge returned status %d: %s", resp.StatusCode, string(raw)),
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: empty response body")
	}

	var out benchmark.JudgeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return benchmark.JudgeResponse{}, fmt.Errorf("httpjudge: parsing response: %w", err)
	}
	return out, nil
}
