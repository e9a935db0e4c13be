package batchutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	items := make([]int, 230)
	batches := Split(items, 50)
	require.Len(t, batches, 5)
	require.Len(t, batches[0], 50)
	require.Len(t, batches[4], 30)

	require.Len(t, Split([]int{}, 50), 0)
	require.Len(t, Split([]int{1, 2}, 0), 1)
}

func TestRunBatches(t *testing.T) {
	items := make([]string, 230)
	for i := range items {
		items[i] = strconv.Itoa(i)
	}

	var inflight, peak int64
	mu := sync.Mutex{}

	results := RunBatches(
		context.Background(), items, 50, 5,
		func(ctx context.Context, idx int, batch []string) ([]string, error) {
			current := atomic.AddInt64(&inflight, 1)
			defer atomic.AddInt64(&inflight, -1)

			mu.Lock()
			if current > peak {
				peak = current
			}
			mu.Unlock()

			if idx == 2 {
				return nil, fmt.Errorf("simulated batch failure")
			}
			return batch, nil
		},
	)

	require.Len(t, results, 5)
	require.LessOrEqual(t, peak, int64(5))

	total := 0
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			require.Equal(t, 2, r.Idx)
			require.Len(t, r.Items, 50)
			continue
		}
		total += len(r.Results)
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 180, total)
}
