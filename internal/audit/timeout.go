package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// withBudget runs fn under its own deadline and races it against the budget.
// When the budget expires the fallback value is returned immediately; fn keeps
// the cancelled context and unwinds on its own. The goroutine never leaks
// because the result channel is buffered.
func withBudget[T any](ctx context.Context, budget time.Duration, label string, fallback T, fn func(ctx context.Context) T) T {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case v := <-done:
		return v
	case <-ctx.Done():
		zap.L().Warn("acquisition branch timed out",
			zap.String("branch", label),
			zap.Duration("budget", budget))
		return fallback
	}
}
