// Package llm rewrites retrieved passages into a single answer through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 8 * time.Second
)

const systemPrompt = "You answer questions about the university using only the provided passages. " +
	"If the passages do not contain the answer, say you could not find it. " +
	"Keep email addresses, phone numbers, and room numbers exactly as written."

// Config holds the chat endpoint settings.
type Config struct {
	BaseURL     string
	Model       string
	APIToken    string
	Temperature float64
	Timeout     time.Duration
}

// Synthesizer implements kb.Synthesizer.
type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ kb.Synthesizer = (*Synthesizer)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New builds a Synthesizer. client and logger may be nil.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Synthesizer, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("llm: api token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, client: client, logger: logger.Named("llm")}, nil
}

// Synthesize asks the model to answer question from passages.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := s.complete(ctx, question, passages)
	if err != nil {
		s.logger.Warn("chat completion failed",
			zap.String("model", s.cfg.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	s.logger.Debug("chat completion done",
		zap.String("model", s.cfg.Model),
		zap.Int("passages", len(passages)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

func (s *Synthesizer) complete(ctx context.Context, question string, passages []string) (string, error) {
	var user strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&user, "Passage %d:\n%s\n\n", i+1, p)
	}
	user.WriteString("Question: ")
	user.WriteString(question)

	body, err := json.Marshal(chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user.String()},
		},
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm: api error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
