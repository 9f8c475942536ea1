package provider

import (
	"context"
	"log"
)

// AttemptFn performs one request against a single backend.
type AttemptFn[T any] func(ctx context.Context, providerID string) (T, error)

// RunFallback tries each backend in queue order until one produces a usable
// result. Each backend is attempted at most once per call; a transport
// failure or an unusable reply moves on to the next entry. The winning
// provider id is returned alongside the result. A canceled context stops the
// walk immediately.
func RunFallback[T any](ctx context.Context, queue []string, usable func(T) bool, try AttemptFn[T]) (T, string, error) {
	var zero T
	var lastErr error

	for _, id := range queue {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		result, err := try(ctx, id)
		if err != nil {
			log.Printf("provider %s attempt failed: %v", id, err)
			lastErr = err
			continue
		}
		if usable != nil && !usable(result) {
			lastErr = &MalformedResponseError{Provider: id}
			log.Printf("provider %s returned unusable result", id)
			continue
		}
		return result, id, nil
	}

	return zero, "", &ExhaustedError{Attempts: len(queue), LastErr: lastErr}
}
