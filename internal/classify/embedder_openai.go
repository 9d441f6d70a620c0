package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"aida/common/redact"
	"aida/common/retry"
)

const (
	defaultEmbeddingBase    = "https://api.openai.com/v1"
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultEmbeddingTimeout = 30 * time.Second
)

// OpenAIEmbedderConfig configures the OpenAI-compatible embedding backend.
type OpenAIEmbedderConfig struct {
	// APIKey is the bearer token for authentication.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to https://api.openai.com/v1
	// when empty. Useful for Azure OpenAI, local proxies, or compatible
	// endpoints (Ollama, llama.cpp server).
	BaseURL string

	// Model is the embedding model to use.
	// Defaults to text-embedding-3-small.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API (or
// any endpoint speaking the same wire format). Safe for concurrent use.
type OpenAIEmbedder struct {
	cfg    OpenAIEmbedderConfig
	client *http.Client
}

// NewOpenAIEmbedder creates an Embedder backed by an OpenAI-compatible
// embeddings endpoint.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEmbeddingBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultEmbeddingTimeout
	}
	return &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI embeddings wire types ---

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// retryable reports whether an HTTP status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// statusError marks a response status as transient so the retry layer knows
// to try again.
type statusError struct {
	status    int
	transient bool
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.status)
}

// Embed produces a vector embedding for the given text. Transient backend
// failures (connection errors, 429, 5xx) are retried with backoff; a final
// error is the classifier's signal to switch to keyword fallback mode for
// the remainder of the process.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	var vec []float32
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		ShouldRetry: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.transient
			}
			return true
		},
	}, func() error {
		var attemptErr error
		vec, attemptErr = e.embedOnce(ctx, text)
		return attemptErr
	})
	if err != nil {
		// The bearer token must never leak through wrapped transport errors.
		return nil, fmt.Errorf("embedder openai: %s", redact.String(err.Error(), e.cfg.APIKey))
	}
	return vec, nil
}

// embedOnce performs one embeddings API round trip.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{
		Input: text,
		Model: e.cfg.Model,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/embeddings",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if retryable(resp.StatusCode) {
			return nil, &statusError{status: resp.StatusCode, transient: true}
		}
		var embResp embeddingResponse
		if json.Unmarshal(respBody, &embResp) == nil && embResp.Error != nil {
			return nil, fmt.Errorf("API error (%s): %s", embResp.Error.Type, embResp.Error.Message)
		}
		return nil, &statusError{status: resp.StatusCode}
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	return embResp.Data[0].Embedding, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
