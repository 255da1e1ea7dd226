package embedding

import (
	"context"

	"github.com/BaSui01/recipeflow/llm/providers"
	"github.com/BaSui01/recipeflow/llm/providers/gemini"
	"google.golang.org/genai"
)

const (
	geminiTaskRetrievalQuery    = "RETRIEVAL_QUERY"
	geminiTaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	geminiMaxBatch              = 100
)

// GeminiProvider 通过 genai SDK 的 Models.EmbedContent 生成嵌入
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// NewGeminiProvider 创建 Gemini 嵌入提供者，构造过程不发起网络请求
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := gemini.NewClient(ctx, providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, model: cfg.Model, dimensions: int32(cfg.Dimensions)}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini-embedding" }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) embed(ctx context.Context, inputs []string, taskType string) ([][]float64, error) {
	contents := make([]*genai.Content, len(inputs))
	for i, text := range inputs {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(p.dimensions)
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, gemini.MapError(err)
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery 实现 Provider
func (p *GeminiProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{query}, geminiTaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return firstVector(vecs, p.Name())
}

// EmbedDocuments 实现 Provider
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return [][]float64{}, nil
	}
	return embedBatched(ctx, documents, geminiMaxBatch, p.Name(), func(ctx context.Context, batch []string) ([][]float64, error) {
		return p.embed(ctx, batch, geminiTaskRetrievalDocument)
	})
}
