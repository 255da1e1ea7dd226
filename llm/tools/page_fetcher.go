package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/internal/tlsutil"
	"github.com/BaSui01/recipeflow/llm/tokenizer"
	"github.com/BaSui01/recipeflow/types"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// PageFetcherConfig 配置网页正文抓取
type PageFetcherConfig struct {
	Timeout   time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`          // 单页抓取超时
	MaxBytes  int64         `json:"max_bytes" yaml:"max_bytes" env:"MAX_BYTES"`    // 读取的最大响应体
	MaxTokens int           `json:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS"` // 正文 token 上限，0 表示不截断
	UserAgent string        `json:"user_agent" yaml:"user_agent" env:"USER_AGENT"`
}

// DefaultPageFetcherConfig returns sensible defaults.
func DefaultPageFetcherConfig() PageFetcherConfig {
	return PageFetcherConfig{
		Timeout:   5 * time.Second,
		MaxBytes:  2 << 20,
		MaxTokens: 2000,
		UserAgent: "recipeflow/1.0 (+page-fetcher)",
	}
}

// PageFetcher downloads a page and extracts its visible text.
type PageFetcher struct {
	config    PageFetcherConfig
	client    *http.Client
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewPageFetcher 创建网页抓取器，tok 为 nil 时不做 token 截断
func NewPageFetcher(config PageFetcherConfig, tok tokenizer.Tokenizer, logger *zap.Logger) *PageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultPageFetcherConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	return &PageFetcher{
		config: config,
		// 超时由每次请求的 context 控制，单站点连接数受限
		client:    tlsutil.PageClient(4),
		tokenizer: tok,
		logger:    logger.With(zap.String("component", "page_fetcher")),
	}
}

// Fetch returns the page text, or "" when the page cannot be fetched within
// the configured timeout. It never fails the caller.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) string {
	text, err := f.FetchText(ctx, pageURL)
	if err != nil {
		if types.HasCode(err, types.ErrExternalFetchTimeout) {
			f.logger.Warn("page fetch timed out", zap.String("url", pageURL), zap.Duration("timeout", f.config.Timeout))
		} else {
			f.logger.Warn("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		}
		return ""
	}
	return text
}

// FetchText fetches pageURL under the per-fetch timeout. A timeout is
// reported as EXTERNAL_FETCH_TIMEOUT.
func (f *PageFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	text, err := f.fetch(fetchCtx, pageURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return "", types.NewError(types.ErrExternalFetchTimeout, "fetch "+pageURL).WithCause(err)
		}
		return "", err
	}

	if f.config.MaxTokens > 0 && f.tokenizer != nil {
		truncated, err := f.tokenizer.Truncate(text, f.config.MaxTokens)
		if err != nil {
			f.logger.Debug("truncate page text failed", zap.Error(err))
			return text, nil
		}
		text = truncated
	}
	return text, nil
}

func (f *PageFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return ExtractText(io.LimitReader(resp.Body, f.config.MaxBytes))
}

// skippedElements hold no reader-visible text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
}

// ExtractText returns the visible text of an HTML document, one text node
// per line, with whitespace runs collapsed and blank lines dropped.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		lines []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("parse html: %w", err)
			}
			return strings.Join(lines, "\n"), nil

		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				skip++
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] && skip > 0 {
				skip--
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			if line := strings.Join(strings.Fields(string(z.Text())), " "); line != "" {
				lines = append(lines, line)
			}
		}
	}
}
