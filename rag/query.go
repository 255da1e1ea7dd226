package rag

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// QueryAll retrieves documents for every query concurrently, at most limit at
// a time (unbounded when limit <= 0). Results keep the order of queries. The
// first failure cancels the remaining queries and is returned.
func QueryAll(ctx context.Context, retriever Retriever, queries []string, limit int) ([]QueryResult, error) {
	results := make([]QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, q := range queries {
		g.Go(func() error {
			docs, err := retriever.Retrieve(gctx, q)
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []Document{}
			}
			results[i] = QueryResult{Query: q, Documents: docs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
