package apikeys

import (
	"context"
	"errors"
	"fmt"

	slogctx "github.com/veqryn/slog-context"
)

// ErrNoKeys is returned by TryWithKeys when there is nothing to try
var ErrNoKeys = errors.New("no api keys configured")

// RequestExecutor attempts a request with one key. It reports success
// separately from err so that an executor can give up on a key without an error.
type RequestExecutor[T any] func(ctx context.Context, apiKey APIKey) (T, bool, error)

// OnFailedCallback represents a function that is called when an API key fails
type OnFailedCallback func(apiKey APIKey)

// CreateFailCallback creates a callback that marks keys as failed
func CreateFailCallback(keyManager IAPIKeyManager) OnFailedCallback {
	return func(apiKey APIKey) {
		if apiKey.Key != "" {
			keyManager.MarkKeyAsFailed(apiKey.Key)
		}
	}
}

// TryWithKeys runs executor with each key in turn until one succeeds.
// Failures are logged through the logger carried by ctx.
func TryWithKeys[T any](ctx context.Context, availableKeys []APIKey, logPrefix string, executor RequestExecutor[T], onFailed OnFailedCallback) (T, error) {
	var zero T
	if len(availableKeys) == 0 {
		return zero, ErrNoKeys
	}

	var lastError error
	for _, apiKey := range availableKeys {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, success, err := executor(ctx, apiKey)
		if success {
			return result, nil
		}

		if err != nil {
			slogctx.FromCtx(ctx).Warn("request failed with api key",
				"upstream", logPrefix,
				"key_type", apiKey.Type.String(),
				"key", Redact(apiKey.Key),
				"error", err)

			if onFailed != nil {
				onFailed(apiKey)
			}
			lastError = err
		}
	}

	if lastError == nil {
		lastError = errors.New("no key produced a result")
	}
	return zero, fmt.Errorf("%s: all API keys failed, last error: %w", logPrefix, lastError)
}
