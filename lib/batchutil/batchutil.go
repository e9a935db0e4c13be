package batchutil

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("lib/batchutil")

// BatchFn processes one fixed-size slice of items. `idx` is the batch
// index within the whole run.
type BatchFn[T, R any] func(ctx context.Context, idx int, items []T) ([]R, error)

type BatchResult[T, R any] struct {
	Idx     int
	Items   []T
	Results []R
	Err     error
}

func Split[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// RunBatches splits `items` into batches of `batchSize` and runs at most
// `concurrency` of them at a time, waiting for each wave to finish before
// starting the next. a failing batch contributes an error entry instead of
// aborting the run, so callers always get results for the whole input.
func RunBatches[T, R any](
	ctx context.Context,
	items []T,
	batchSize int,
	concurrency int,
	fn BatchFn[T, R],
) []BatchResult[T, R] {
	ctx, span := tracer.Start(ctx, "RunBatches")
	defer span.End()

	batches := Split(items, batchSize)
	span.SetAttributes(
		attribute.Int("items", len(items)),
		attribute.Int("batches", len(batches)),
		attribute.Int("concurrency", concurrency),
	)

	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([]BatchResult[T, R], len(batches))
	for wave := 0; wave < len(batches); wave += concurrency {
		end := wave + concurrency
		if end > len(batches) {
			end = len(batches)
		}

		wg := sync.WaitGroup{}
		for idx := wave; idx < end; idx++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				results, err := fn(ctx, idx, batches[idx])
				if err != nil {
					slog.WarnContext(
						ctx, "batch failed",
						"batch", idx,
						"size", len(batches[idx]),
						"err", err,
					)
				}
				out[idx] = BatchResult[T, R]{
					Idx:     idx,
					Items:   batches[idx],
					Results: results,
					Err:     err,
				}
			}(idx)
		}
		wg.Wait()
	}

	return out
}
