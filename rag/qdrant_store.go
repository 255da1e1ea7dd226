package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant VectorStore implementation.
//
// Notes:
//   - Qdrant point IDs are UUIDs; a stable UUID is derived from Document.ID.
//   - The payload layout defaults to the one written by the recipe ingestion
//     job: {"page_content": ..., "metadata": {...}}.
type QdrantConfig struct {
	Host       string        `json:"host" yaml:"host" env:"HOST"`
	Port       int           `json:"port" yaml:"port" env:"PORT"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key" env:"API_KEY"`
	Collection string        `json:"collection" yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout" env:"TIMEOUT"`

	AutoCreateCollection bool   `json:"auto_create_collection,omitempty" yaml:"auto_create_collection" env:"AUTO_CREATE_COLLECTION"`
	Distance             string `json:"distance,omitempty" yaml:"distance" env:"DISTANCE"`                 // Cosine (default), Dot, Euclid
	PayloadContentField  string `json:"payload_content_field" yaml:"payload_content_field" env:"-"`   // default "page_content"
	PayloadMetadataField string `json:"payload_metadata_field" yaml:"payload_metadata_field" env:"-"` // default "metadata"
	PayloadIDField       string `json:"payload_id_field" yaml:"payload_id_field" env:"-"`             // default "doc_id"
}

// QdrantStore implements VectorStore using Qdrant's REST API.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a Qdrant-backed VectorStore. A nil client gets a
// plain client with cfg.Timeout.
func NewQdrantStore(cfg QdrantConfig, client *http.Client, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.PayloadContentField == "" {
		cfg.PayloadContentField = "page_content"
	}
	if cfg.PayloadMetadataField == "" {
		cfg.PayloadMetadataField = "metadata"
	}
	if cfg.PayloadIDField == "" {
		cfg.PayloadIDField = "doc_id"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  client,
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

func qdrantPointID(docID string) string {
	// Stable UUID derived from document ID (supports any string input).
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}
		path := fmt.Sprintf("/collections/%s", url.PathEscape(s.cfg.Collection))
		err := s.doJSON(ctx, http.MethodPut, path, body, nil)
		// Qdrant returns 409 if collection exists.
		if err != nil && !strings.Contains(err.Error(), "status=409") {
			s.ensureErr = err
		}
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AddDocuments upserts documents; used by the seed command.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	vectorSize := 0
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if len(doc.Vector) == 0 {
			return fmt.Errorf("document[%d] has no embedding", i)
		}
		if vectorSize == 0 {
			vectorSize = len(doc.Vector)
		}
		if len(doc.Vector) != vectorSize {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(doc.Vector), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		points = append(points, point{
			ID:     qdrantPointID(doc.ID),
			Vector: doc.Vector,
			Payload: map[string]any{
				s.cfg.PayloadIDField:       doc.ID,
				s.cfg.PayloadContentField:  doc.Content,
				s.cfg.PayloadMetadataField: doc.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(docs)))
	return nil
}

// Search runs a nearest-neighbour query. Metadata filters are translated to
// Qdrant's must/should/must_not conditions over the metadata payload field.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float64, topK int, opts SearchOptions) ([]VectorSearchResult, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if topK <= 0 {
		return []VectorSearchResult{}, nil
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	req := map[string]any{
		"vector":       queryEmbedding,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  opts.WithVectors,
	}
	if opts.Filter != nil {
		filter, err := s.translateFilter(*opts.Filter)
		if err != nil {
			return nil, err
		}
		req["filter"] = filter
	}

	type qdrantResult struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
		Vector  []float64      `json:"vector"`
	}
	var resp struct {
		Result []qdrantResult `json:"result"`
		Status string         `json:"status"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]VectorSearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc := Document{Vector: r.Vector}

		if r.Payload != nil {
			if v, ok := r.Payload[s.cfg.PayloadIDField].(string); ok {
				doc.ID = v
			}
			if v, ok := r.Payload[s.cfg.PayloadContentField].(string); ok {
				doc.Content = v
			}
			if m, ok := r.Payload[s.cfg.PayloadMetadataField].(map[string]any); ok {
				doc.Metadata = m
			}
		}
		if doc.ID == "" {
			// Fallback to point ID if payload does not include doc_id.
			doc.ID = fmt.Sprint(r.ID)
		}

		out = append(out, VectorSearchResult{
			Document: doc,
			Score:    r.Score,
			Distance: 1.0 - r.Score,
		})
	}

	return out, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, fmt.Errorf("qdrant collection is required")
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// ====== 过滤条件转换 ======

func (s *QdrantStore) translateFilter(f Filter) (map[string]any, error) {
	if f.IsOperation() {
		conds := make([]any, 0, len(f.Arguments))
		for _, arg := range f.Arguments {
			c, err := s.translateFilter(arg)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		switch f.Operator {
		case OperatorAnd:
			return map[string]any{"must": conds}, nil
		case OperatorOr:
			return map[string]any{"should": conds}, nil
		case OperatorNot:
			return map[string]any{"must_not": conds}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Operator)
		}
	}

	key := s.cfg.PayloadMetadataField + "." + f.Attribute
	switch f.Comparator {
	case CompareEq:
		return map[string]any{"must": []any{matchValue(key, f.Value)}}, nil
	case CompareNe:
		return map[string]any{"must_not": []any{matchValue(key, f.Value)}}, nil
	case CompareGt, CompareGte, CompareLt, CompareLte:
		n, ok := metadataNumber(f.Value)
		if !ok {
			return nil, fmt.Errorf("range comparator %q needs a number", f.Comparator)
		}
		return map[string]any{"must": []any{map[string]any{
			"key":   key,
			"range": map[string]any{string(f.Comparator): n},
		}}}, nil
	case CompareContain, CompareLike:
		text := strings.Trim(metadataString(f.Value), "%")
		return map[string]any{"must": []any{map[string]any{
			"key":   key,
			"match": map[string]any{"text": text},
		}}}, nil
	case CompareIn:
		return map[string]any{"must": []any{map[string]any{
			"key":   key,
			"match": map[string]any{"any": f.Value},
		}}}, nil
	case CompareNin:
		return map[string]any{"must": []any{map[string]any{
			"key":   key,
			"match": map[string]any{"except": f.Value},
		}}}, nil
	default:
		return nil, fmt.Errorf("unsupported comparator %q", f.Comparator)
	}
}

func matchValue(key string, v any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": v}}
}
