package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("cache manager is closed")

// Manager 缓存管理器
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// Config 缓存配置
type Config struct {
	Enabled             bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Addr                string        `yaml:"addr" json:"addr" env:"ADDR"`
	Password            string        `yaml:"password" json:"-" env:"PASSWORD"`
	DB                  int           `yaml:"db" json:"db" env:"DB"`
	KeyPrefix           string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	DefaultTTL          time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	PoolSize            int           `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns        int           `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		Addr:                "localhost:6379",
		KeyPrefix:           "recipeflow:",
		DefaultTTL:          24 * time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建缓存管理器并立即 Ping 一次，连不上直接返回错误
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// ====== 向量读写 ======

func (m *Manager) key(k string) string { return m.config.KeyPrefix + k }

// GetVectors 用一次 MGET 读取多个向量，结果与 keys 一一对应，未命中或无法解码的位置为 nil
func (m *Manager) GetVectors(ctx context.Context, keys []string) ([][]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make([][]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = m.key(k)
	}
	vals, err := m.redis.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache mget failed: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := decodeVector(raw)
		if err != nil {
			m.logger.Warn("dropping corrupt cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// SetVectors 用一次 pipeline 写入多个向量，ttl 为 0 时使用 DefaultTTL
func (m *Manager) SetVectors(ctx context.Context, keys []string, vecs [][]float64, ttl time.Duration) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache set: %d keys for %d vectors", len(keys), len(vecs))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	pipe := m.redis.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, m.key(k), encodeVector(vecs[i]), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// encodeVector 以小端 float64 序列存储，比 JSON 紧凑且无精度损失
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(raw string) ([]float64, error) {
	if len(raw) == 0 || len(raw)%8 != 0 {
		return nil, fmt.Errorf("invalid vector encoding of %d bytes", len(raw))
	}
	vec := make([]float64, len(raw)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64([]byte(raw[8*i : 8*i+8])))
	}
	return vec, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.stop)
	m.logger.Info("closing cache manager")

	return m.redis.Close()
}

// healthCheckLoop 定时 Ping，失败只记日志
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Error("cache health check failed", zap.Error(err))
		}
		cancel()
	}
}
