package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// OpenAIProvider 使用 OpenAI 兼容的 /v1/embeddings 端点。
// HuggingFace text-embeddings-inference 暴露同样的端点，本地句向量模型也走这里。
type OpenAIProvider struct {
	*BaseProvider
	apiKey     string
	dimensions int
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIProvider 创建 OpenAI 兼容嵌入提供者
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:     "openai-embedding",
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			MaxBatch: cfg.MaxBatch,
			Timeout:  cfg.Timeout,
			Logger:   cfg.Logger,
		}),
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
	}
}

func (p *OpenAIProvider) embed(ctx context.Context, inputs []string) ([][]float64, error) {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	body, err := p.DoRequest(ctx, http.MethodPost, "/v1/embeddings", openAIEmbedRequest{
		Input:      inputs,
		Model:      p.model,
		Dimensions: p.dimensions,
	}, headers)
	if err != nil {
		return nil, err
	}

	var resp openAIEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedQuery 实现 Provider
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return firstVector(vecs, p.name)
}

// EmbedDocuments 实现 Provider
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return [][]float64{}, nil
	}
	return p.EmbedBatched(ctx, documents, p.embed)
}
