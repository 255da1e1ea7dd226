package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/BaSui01/recipeflow/internal/cache"
	"go.uber.org/zap"
)

const cacheType = "embedding"

// CachedProvider 在 Redis 中缓存嵌入结果，键由提供者、模型与文本哈希组成。
// 缓存读写失败只记日志，不影响嵌入本身。
type CachedProvider struct {
	inner    Provider
	cache    *cache.Manager
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedProvider 创建带缓存的嵌入提供者，observer 可为 nil
func NewCachedProvider(inner Provider, c *cache.Manager, ttl time.Duration, observer CacheObserver, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:    inner,
		cache:    c,
		ttl:      ttl,
		observer: observer,
		logger:   logger.With(zap.String("component", "embedding_cache")),
	}
}

func (p *CachedProvider) Name() string  { return p.inner.Name() }
func (p *CachedProvider) Model() string { return p.inner.Model() }

func (p *CachedProvider) cacheKey(kind InputType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + p.inner.Name() + ":" + p.inner.Model() + ":" + string(kind) + ":" + hex.EncodeToString(sum[:])
}

// lookup 批量读取缓存；读取失败按全部未命中处理
func (p *CachedProvider) lookup(ctx context.Context, keys []string) [][]float64 {
	vecs, err := p.cache.GetVectors(ctx, keys)
	if err != nil {
		p.logger.Warn("embedding cache read failed", zap.Error(err))
		vecs = make([][]float64, len(keys))
	}
	for _, v := range vecs {
		p.record(len(v) > 0)
	}
	return vecs
}

func (p *CachedProvider) store(ctx context.Context, keys []string, vecs [][]float64) {
	if err := p.cache.SetVectors(ctx, keys, vecs, p.ttl); err != nil {
		p.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

func (p *CachedProvider) record(hit bool) {
	if p.observer == nil {
		return
	}
	if hit {
		p.observer.RecordCacheHit(cacheType)
	} else {
		p.observer.RecordCacheMiss(cacheType)
	}
}

// EmbedQuery 实现 Provider
func (p *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	keys := []string{p.cacheKey(InputTypeQuery, query)}
	if cached := p.lookup(ctx, keys); len(cached[0]) > 0 {
		return cached[0], nil
	}
	vec, err := p.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	p.store(ctx, keys, [][]float64{vec})
	return vec, nil
}

// EmbedDocuments 实现 Provider。只有未命中的文档会发送给底层提供者，
// 缓存读写各只有一次往返。
func (p *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	keys := make([]string, len(documents))
	for i, doc := range documents {
		keys[i] = p.cacheKey(InputTypeDocument, doc)
	}
	out := p.lookup(ctx, keys)

	var missing []int
	for i, v := range out {
		if len(v) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = documents[i]
	}
	vecs, err := p.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	newKeys := make([]string, 0, len(missing))
	newVecs := make([][]float64, 0, len(missing))
	for j, i := range missing {
		if j >= len(vecs) {
			break
		}
		out[i] = vecs[j]
		newKeys = append(newKeys, keys[i])
		newVecs = append(newVecs, vecs[j])
	}
	p.store(ctx, newKeys, newVecs)
	return out, nil
}
