package multi

import (
	"context"
	"errors"

	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/cache/l1"
	"github.com/oneyeking31/local-explorer/cache/l2"
	"github.com/oneyeking31/local-explorer/cache/noop"
)

// Stack is a MultiCache together with the resources it owns
type Stack struct {
	*MultiCache
	closers []func() error
}

// Close releases every level
func (s *Stack) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// Build assembles the configured levels. An unreachable L2 is logged and
// skipped so the backend still starts with only the in-process cache.
func Build(ctx context.Context, cfg *cache.Config, logger cache.Logger, metrics cache.MetricsRecorder) (*Stack, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = cache.NoopLogger{}
	}
	if metrics == nil {
		metrics = cache.NoopMetrics{}
	}

	stack := &Stack{}
	var levels []cache.Cache

	if cfg.L1.Enabled {
		bc, err := l1.NewBigCache(&cfg.L1, l1.WithLogger(logger), l1.WithMetrics(metrics))
		if err != nil {
			return nil, err
		}
		levels = append(levels, bc)
		stack.closers = append(stack.closers, bc.Close)
	}

	if cfg.L2.Enabled {
		client, err := l2.NewRedisKeyDbClient(ctx, &cfg.L2, l2.WithClientLogger(logger))
		if err != nil {
			logger.Warn("L2 cache unavailable, continuing without it", "error", err)
		} else {
			kc := l2.NewKeyDBCache(&cfg.L2, client, l2.WithLogger(logger), l2.WithMetrics(metrics))
			levels = append(levels, kc)
			stack.closers = append(stack.closers, kc.Close)
		}
	}

	if len(levels) == 0 {
		levels = append(levels, noop.NewNoOpCache())
	}

	stack.MultiCache = NewMultiCache(levels, cfg.Multi.EnablePropagation, WithLogger(logger))
	return stack, nil
}
