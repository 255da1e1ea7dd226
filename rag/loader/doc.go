// Package loader reads recipe dataset exports into rag.Document values for
// the seed command.
//
// Each row becomes one document: Combined_Features is the content and the
// remaining columns become the recipe metadata attributes. Rows without a
// rating, a review count or content are dropped. Empty text columns are
// stored as "No Data Available".
//
// Use LoaderRegistry to route loading by file extension:
//
//	registry := loader.NewLoaderRegistry()
//	docs, err := registry.Load(ctx, "/data/recipes.csv")
package loader
