// Package embedding provides the text embedders used to build the vector
// index and to embed queries.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

// Provider names.
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderHash        = "hash"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIToken   string
	Dimensions int
	Timeout    time.Duration
}

// New builds the embedder named by cfg.Provider. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (kb.Embedder, error) {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	switch cfg.Provider {
	case ProviderHuggingFace:
		return NewHuggingFace(cfg, httpClient)
	case ProviderOpenAI:
		return NewOpenAI(cfg, httpClient)
	case ProviderHash:
		return NewHash(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// postJSON sends body to url and decodes a 200 response into out. Transport
// failures and non-200 responses wrap kb.ErrEmbeddingUnavailable.
func postJSON(ctx context.Context, client *http.Client, url, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: call %s: %w", kb.ErrEmbeddingUnavailable, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %s: %s",
			kb.ErrEmbeddingUnavailable, url, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", kb.ErrEmbeddingUnavailable, err)
	}
	return nil
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", kb.ErrEmbeddingUnavailable, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", kb.ErrEmbeddingUnavailable, i)
		}
	}
	return nil
}
