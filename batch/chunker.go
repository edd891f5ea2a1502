package batch

import (
	"context"
	"fmt"
	"time"
)

// Chunker splits a list of query terms into upstream-sized requests.
// The places endpoint accepts one keyword per request, so it uses MaxItems 1.
type Chunker struct {
	MaxItems  int           // items per chunk
	MaxLength int           // total characters per chunk, 0 disables the limit
	Delay     time.Duration // pause between chunks
}

// Split groups items into chunks honouring both limits.
// A single item longer than MaxLength still forms its own chunk.
func (c Chunker) Split(items []string) [][]string {
	if len(items) == 0 || c.MaxItems <= 0 {
		return nil
	}

	var chunks [][]string
	for start := 0; start < len(items); {
		end := start
		length := 0
		for end < len(items) && end-start < c.MaxItems {
			if c.MaxLength > 0 && length+len(items[end]) > c.MaxLength {
				break
			}
			length += len(items[end])
			end++
		}
		if end == start {
			end = start + 1
		}
		chunks = append(chunks, items[start:end])
		start = end
	}
	return chunks
}

func run[T any](ctx context.Context, c Chunker, items []string, fetch func(context.Context, []string) (T, error)) ([]T, error) {
	chunks := c.Split(items)
	results := make([]T, 0, len(chunks))

	for i, chunk := range chunks {
		if i > 0 && c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}

		result, err := fetch(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chunk %d/%d: %w", i+1, len(chunks), err)
		}
		results = append(results, result)
	}

	return results, nil
}

// FetchMap runs fetch per chunk and merges the maps; later chunks win on key clashes
func FetchMap[T any](ctx context.Context, c Chunker, items []string, fetch func(context.Context, []string) (map[string]T, error)) (map[string]T, error) {
	parts, err := run(ctx, c, items, fetch)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]T)
	for _, part := range parts {
		for k, v := range part {
			merged[k] = v
		}
	}
	return merged, nil
}

// FetchSlice runs fetch per chunk and concatenates the results in chunk order
func FetchSlice[T any](ctx context.Context, c Chunker, items []string, fetch func(context.Context, []string) ([]T, error)) ([]T, error) {
	parts, err := run(ctx, c, items, fetch)
	if err != nil {
		return nil, err
	}

	var merged []T
	for _, part := range parts {
		merged = append(merged, part...)
	}
	return merged, nil
}
