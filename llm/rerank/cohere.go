package rerank

import (
	"context"

	"github.com/BaSui01/recipeflow/rag"
)

// CohereScorer 调用 Cohere /v2/rerank，分数为 0-1 的 relevance_score
type CohereScorer struct {
	http  *httpClient
	model string
}

// NewCohereScorer 创建 Cohere 打分器
func NewCohereScorer(cfg Config) *CohereScorer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com"
	}
	if cfg.Model == "" || cfg.Model == DefaultConfig().Model {
		cfg.Model = "rerank-v3.5"
	}
	return &CohereScorer{
		http:  newHTTPClient("cohere-rerank", cfg, map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		model: cfg.Model,
	}
}

type cohereRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score 实现 rag.CrossEncoderScorer
func (s *CohereScorer) Score(ctx context.Context, pairs []rag.QueryDocPair) ([]float64, error) {
	return scoreByQuery(ctx, pairs, func(ctx context.Context, query string, docs []string) ([]float64, error) {
		var resp cohereResponse
		err := s.http.post(ctx, "/v2/rerank", cohereRequest{
			Model:     s.model,
			Query:     query,
			Documents: docs,
			TopN:      len(docs), // 需要每个文档的分数
		}, &resp)
		if err != nil {
			return nil, err
		}

		indexes := make([]int, len(resp.Results))
		values := make([]float64, len(resp.Results))
		for i, r := range resp.Results {
			indexes[i], values[i] = r.Index, r.RelevanceScore
		}
		return fillByIndex(len(docs), indexes, values)
	})
}
