package retry

import "context"

// DoWithResultTyped is a type-safe wrapper around Retryer.DoWithResult.
//
//	vecs, err := retry.DoWithResultTyped[[][]float64](r, ctx, func() ([][]float64, error) {
//	    return client.embed(ctx, texts)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
