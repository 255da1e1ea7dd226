package types

import (
	"fmt"
	"strings"
)

// RetrieverKind selects the retrieval pipeline shape.
type RetrieverKind string

const (
	RetrieverCoarse         RetrieverKind = "coarse"
	RetrieverReranker       RetrieverKind = "reranker"
	RetrieverSelfQueryChain RetrieverKind = "self_query_chain"
)

// SearchType selects the coarse search mode.
type SearchType string

const (
	SearchSimilarity SearchType = "similarity"
	SearchMMR        SearchType = "mmr"
)

// SelfQueryAPI selects the backend of the auxiliary filter-construction LLM.
type SelfQueryAPI string

const (
	SelfQueryOpenAI SelfQueryAPI = "OpenAI"
	SelfQueryAzure  SelfQueryAPI = "Azure"
	SelfQueryGemini SelfQueryAPI = "Gemini"
)

// RetrievalConfig is the per-request configuration snapshot. It is passed by
// value and never mutated after construction.
type RetrievalConfig struct {
	Retriever      RetrieverKind `json:"retriever" yaml:"retriever" env:"RETRIEVER"`
	SearchType     SearchType    `json:"coarse_search_type" yaml:"coarse_search_type" env:"SEARCH_TYPE"`
	TopK           int           `json:"coarse_top_k" yaml:"coarse_top_k" env:"TOP_K"`
	Lambda         float64       `json:"coarse_lambda" yaml:"coarse_lambda" env:"LAMBDA"`
	FetchK         int           `json:"coarse_fetch_k" yaml:"coarse_fetch_k" env:"FETCH_K"`
	RerankTopN     int           `json:"reranker_top_n" yaml:"reranker_top_n" env:"RERANK_TOP_N"`
	SelfQueryAPI   SelfQueryAPI  `json:"self_query_api" yaml:"self_query_api" env:"SELF_QUERY_API"`
	SelfQueryModel string        `json:"self_query_model" yaml:"self_query_model" env:"SELF_QUERY_MODEL"`

	// 生成参数
	Temperature  float64 `json:"temperature" yaml:"temperature" env:"TEMPERATURE"`
	TopP         float64 `json:"top_p" yaml:"top_p" env:"TOP_P"`
	GenTopK      int     `json:"top_k" yaml:"top_k" env:"GEN_TOP_K"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt" env:"SYSTEM_PROMPT"`
}

// DefaultRetrievalConfig returns the documented request defaults. An empty
// SystemPrompt means the built-in recipe assistant prompt.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Retriever:      RetrieverCoarse,
		SearchType:     SearchSimilarity,
		TopK:           5,
		Lambda:         0.5,
		FetchK:         100,
		RerankTopN:     1,
		SelfQueryAPI:   SelfQueryOpenAI,
		SelfQueryModel: "gpt-4o-mini",
		Temperature:    0.5,
		TopP:           0.9,
		GenTopK:        2,
		MaxTokens:      3000,
	}
}

// ParseRetrieverKind parses a retriever name.
func ParseRetrieverKind(s string) (RetrieverKind, error) {
	switch k := RetrieverKind(strings.TrimSpace(s)); k {
	case RetrieverCoarse, RetrieverReranker, RetrieverSelfQueryChain:
		return k, nil
	default:
		return "", NewError(ErrConfigInvalid, fmt.Sprintf("invalid retriever %q", s))
	}
}

// Validate checks the snapshot before any network or model call is made.
func (c RetrievalConfig) Validate() error {
	var errs []string

	if _, err := ParseRetrieverKind(string(c.Retriever)); err != nil {
		errs = append(errs, fmt.Sprintf("retriever must be one of coarse, reranker, self_query_chain (got %q)", c.Retriever))
	}
	switch c.SearchType {
	case SearchSimilarity, SearchMMR:
	default:
		errs = append(errs, fmt.Sprintf("coarse_search_type must be similarity or mmr (got %q)", c.SearchType))
	}
	if c.TopK <= 0 {
		errs = append(errs, "coarse_top_k must be positive")
	}
	if c.SearchType == SearchMMR {
		if c.FetchK < c.TopK {
			errs = append(errs, "coarse_fetch_k must be >= coarse_top_k")
		}
		if c.Lambda < 0 || c.Lambda > 1 {
			errs = append(errs, "coarse_lambda must be within [0, 1]")
		}
	}
	if c.Retriever != RetrieverCoarse && c.RerankTopN <= 0 {
		errs = append(errs, "reranker_top_n must be positive")
	}
	if c.Retriever == RetrieverSelfQueryChain {
		switch c.SelfQueryAPI {
		case SelfQueryOpenAI, SelfQueryAzure, SelfQueryGemini:
		default:
			errs = append(errs, fmt.Sprintf("self_query_api must be OpenAI, Azure or Gemini (got %q)", c.SelfQueryAPI))
		}
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, "max_tokens must be positive")
	}
	if c.Temperature < 0 || c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, "temperature must be >= 0 and top_p within [0, 1]")
	}

	if len(errs) > 0 {
		return NewError(ErrConfigInvalid, "invalid retrieval config: "+strings.Join(errs, "; "))
	}
	return nil
}
