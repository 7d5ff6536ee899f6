package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI builds an OpenAI-compatible embedder.
func NewOpenAI(cfg Config, client *http.Client) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg, client: client}, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Model returns the configured model identity.
func (o *OpenAI) Model() string {
	return ProviderOpenAI + ":" + o.cfg.Model
}

// Embed returns one vector per text, in input order.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := embeddingRequest{Model: o.cfg.Model, Input: texts, Dimensions: o.cfg.Dimensions}
	var resp embeddingResponse
	if err := postJSON(ctx, o.client, o.cfg.BaseURL+"/embeddings", o.cfg.APIToken, req, &resp); err != nil {
		return nil, err
	}
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}
