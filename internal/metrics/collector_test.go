package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.retrievalStageTotal)
	assert.NotNil(t, collector.toolCallsTotal)
	assert.NotNil(t, collector.turnsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/api/v1/chat", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/chat", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/chat", 502, 50*time.Millisecond, 512, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "5xx")))
}

func TestCollector_ObserveLLMCall(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveLLMCall("anthropic", "claude-3-5-sonnet", 500*time.Millisecond,
		types.TokenUsage{InputTokens: 100, OutputTokens: 50}, nil)
	collector.ObserveLLMCall("anthropic", "", time.Second, types.TokenUsage{}, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("anthropic", "claude-3-5-sonnet", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("anthropic", "default", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("anthropic", "claude-3-5-sonnet", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("anthropic", "claude-3-5-sonnet", "completion")))
}

func TestCollector_ObserveRetrievalStage(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveRetrievalStage("coarse", 20*time.Millisecond, 5, nil)
	collector.ObserveRetrievalStage("rerank", 20*time.Millisecond, 0, errors.New("scorer down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.retrievalStageTotal.WithLabelValues("coarse", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.retrievalStageTotal.WithLabelValues("rerank", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.retrievalStageDocuments), "failed stages report no document count")
}

func TestCollector_ObserveToolCall(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveToolCall("google_web_search", time.Second, nil)
	collector.ObserveToolCall("google_web_search", time.Second, errors.New("quota"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.toolCallsTotal.WithLabelValues("google_web_search", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.toolCallsTotal.WithLabelValues("google_web_search", "error")))
}

func TestCollector_RecordTurn(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTurn("sync", types.RetrieverCoarse, time.Second, nil)
	collector.RecordTurn("stream", types.RetrieverReranker, time.Second, types.NewError(types.ErrMaxToolRounds, "too many"))
	collector.RecordTurn("stream", types.RetrieverReranker, time.Second, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("sync", "coarse", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("stream", "reranker", "MAX_TOOL_ROUNDS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("stream", "reranker", "error")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("embedding")
	collector.RecordCacheMiss("embedding")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("embedding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("embedding")))
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("sqlite", "insert", 20*time.Millisecond)
	collector.RecordDBConnections("sqlite", 10, 5)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.dbQueryDuration))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 0)
			collector.ObserveToolCall("query_food_recipe_vector_db", time.Millisecond, nil)
			collector.RecordCacheHit("embedding")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.toolCallsTotal.WithLabelValues("query_food_recipe_vector_db", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("embedding")))
}
