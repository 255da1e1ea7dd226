package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/recipeflow/config"
	"github.com/BaSui01/recipeflow/llm/embedding"
	"github.com/BaSui01/recipeflow/rag"
	"github.com/BaSui01/recipeflow/rag/loader"
	"go.uber.org/zap"
)

// =============================================================================
// 📥 ingest 命令：导入菜谱数据集到向量库
// =============================================================================

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "Recipe dataset (.csv, .json, .jsonl)")
	batch := fs.Int("batch", 64, "Documents embedded per request")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "ingest: --file is required")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := ingest(ctx, cfg, *file, *batch, logger)
	if err != nil {
		logger.Error("ingest failed", zap.String("file", *file), zap.Int("written", n), zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("Ingested %d recipes into %q\n", n, cfg.Qdrant.Collection)
}

// ingest 读取数据集、分批嵌入并写入 Qdrant，返回已写入的文档数
func ingest(ctx context.Context, cfg *config.Config, file string, batch int, logger *zap.Logger) (int, error) {
	docs, err := loader.NewLoaderRegistry().Load(ctx, file)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("no recipes found in %s", file)
	}

	embedCfg := cfg.Embedding
	embedCfg.Logger = logger
	embedder, err := embedding.New(ctx, embedCfg, nil, nil)
	if err != nil {
		return 0, err
	}

	qcfg := cfg.Qdrant
	qcfg.AutoCreateCollection = true
	store := rag.NewQdrantStore(qcfg, nil, logger)

	return writeBatches(ctx, embedder, store, docs, batch, logger)
}

// writeBatches 按批嵌入并写入；某批失败时返回此前已写入的数量
func writeBatches(ctx context.Context, embedder rag.Embedder, store rag.DocumentWriter, docs []rag.Document, batch int, logger *zap.Logger) (int, error) {
	if batch <= 0 {
		batch = 64
	}
	written := 0
	for start := 0; start < len(docs); start += batch {
		end := min(start+batch, len(docs))
		chunk := docs[start:end]

		texts := make([]string, len(chunk))
		for i, d := range chunk {
			texts[i] = d.Content
		}
		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(chunk) {
			return written, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(chunk))
		}
		for i := range chunk {
			chunk[i].Vector = vectors[i]
		}
		if err := store.AddDocuments(ctx, chunk); err != nil {
			return written, fmt.Errorf("write documents %d-%d: %w", start, end, err)
		}
		written += len(chunk)
		logger.Info("batch ingested", zap.Int("written", written), zap.Int("total", len(docs)))
	}
	return written, nil
}
