package rerank

import (
	"context"

	"github.com/BaSui01/recipeflow/rag"
)

// TEIScorer 调用 text-embeddings-inference 的 /rerank 端点，
// 返回交叉编码器的原始 logit 分数
type TEIScorer struct {
	http *httpClient
}

// NewTEIScorer 创建 TEI 打分器
func NewTEIScorer(cfg Config) *TEIScorer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &TEIScorer{http: newHTTPClient("tei-rerank", cfg, headers)}
}

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score 实现 rag.CrossEncoderScorer
func (s *TEIScorer) Score(ctx context.Context, pairs []rag.QueryDocPair) ([]float64, error) {
	return scoreByQuery(ctx, pairs, func(ctx context.Context, query string, docs []string) ([]float64, error) {
		var results []teiResult
		err := s.http.post(ctx, "/rerank", teiRequest{
			Query:     query,
			Texts:     docs,
			RawScores: true,
			Truncate:  true,
		}, &results)
		if err != nil {
			return nil, err
		}

		indexes := make([]int, len(results))
		values := make([]float64, len(results))
		for i, r := range results {
			indexes[i], values[i] = r.Index, r.Score
		}
		return fillByIndex(len(docs), indexes, values)
	})
}
