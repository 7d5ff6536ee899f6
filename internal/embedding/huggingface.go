package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/campus-kb/internal/kb"
)

// HuggingFace calls the Inference API feature-extraction pipeline.
type HuggingFace struct {
	cfg    Config
	client *http.Client
}

// NewHuggingFace builds a HuggingFace embedder.
func NewHuggingFace(cfg Config, client *http.Client) (*HuggingFace, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HuggingFace{cfg: cfg, client: client}, nil
}

type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Model returns the configured model identity.
func (h *HuggingFace) Model() string {
	return ProviderHuggingFace + ":" + h.cfg.Model
}

// Embed returns one vector per text. Token-level outputs are mean-pooled.
func (h *HuggingFace) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	url := h.cfg.BaseURL + "/pipeline/feature-extraction/" + h.cfg.Model
	var raw json.RawMessage
	req := hfRequest{Inputs: texts, Options: hfOptions{WaitForModel: true}}
	if err := postJSON(ctx, h.client, url, h.cfg.APIToken, req, &raw); err != nil {
		return nil, err
	}
	vectors, err := decodeFeatures(raw)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// decodeFeatures accepts pooled [][]float32 or token-level [][][]float32.
func decodeFeatures(raw json.RawMessage) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(raw, &pooled); err == nil {
		return pooled, nil
	}
	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("%w: unexpected feature-extraction shape: %w", kb.ErrEmbeddingUnavailable, err)
	}
	out := make([][]float32, len(tokens))
	for i, seq := range tokens {
		out[i] = meanPool(seq)
	}
	return out, nil
}

func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	sum := make([]float32, len(seq[0]))
	for _, tok := range seq {
		for j := range sum {
			if j < len(tok) {
				sum[j] += tok[j]
			}
		}
	}
	n := float32(len(seq))
	for j := range sum {
		sum[j] /= n
	}
	return sum
}
