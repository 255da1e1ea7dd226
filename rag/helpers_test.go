package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// fakeEmbedder returns fixed vectors for known texts and a hash-derived
// vector otherwise.
type fakeEmbedder struct {
	vectors    map[string][]float64
	queryErr   error
	docErr     error
	queryCalls atomic.Int64
	docCalls   atomic.Int64
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	e.queryCalls.Add(1)
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	e.docCalls.Add(1)
	if e.docErr != nil {
		return nil, e.docErr
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) vector(text string) []float64 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum64()
	return []float64{float64(sum%97) + 1, float64(sum%89) + 1, float64(sum%83) + 1}
}

// fakeScorer scores pairs from a lookup table keyed by document content.
type fakeScorer struct {
	scores map[string]float64
	err    error
	calls  atomic.Int64
	mu     sync.Mutex
	seen   [][]QueryDocPair
}

func (s *fakeScorer) Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.seen = append(s.seen, pairs)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = s.scores[p.Document]
	}
	return out, nil
}

// fakeConstructor returns queued responses in order; the last one repeats.
type fakeConstructor struct {
	responses []constructResponse
	calls     atomic.Int64
	schemas   [][]AttributeInfo
	mu        sync.Mutex
}

type constructResponse struct {
	query *StructuredQuery
	err   error
}

func (c *fakeConstructor) Construct(ctx context.Context, query, description string, schema []AttributeInfo) (*StructuredQuery, error) {
	n := int(c.calls.Add(1)) - 1
	c.mu.Lock()
	c.schemas = append(c.schemas, schema)
	c.mu.Unlock()
	if len(c.responses) == 0 {
		return &StructuredQuery{Query: query}, nil
	}
	if n >= len(c.responses) {
		n = len(c.responses) - 1
	}
	r := c.responses[n]
	return r.query, r.err
}

// failingStore always fails to search.
type failingStore struct{}

func (failingStore) Search(context.Context, []float64, int, SearchOptions) ([]VectorSearchResult, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Count(context.Context) (int, error) { return 0, errors.New("connection refused") }

func recipe(id, content string, meta map[string]any, vec ...float64) Document {
	return Document{ID: id, Content: content, Metadata: meta, Vector: vec}
}

func newStore(docs ...Document) *InMemoryVectorStore {
	s := NewInMemoryVectorStore(nil)
	if err := s.AddDocuments(context.Background(), docs); err != nil {
		panic(err)
	}
	return s
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
