// Package requestcontext provides context accessors for run-scoped values.
//
// Batch drivers set these once per ingestion or dedupe run; services and
// stores read them without depending on the driver.
//
// Usage in drivers:
//
//	ctx = requestcontext.WithRunID(ctx, uuid.NewString())
//	ctx = requestcontext.WithOperator(ctx, "jdoe")
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	runIDKey    struct{}
	operatorKey struct{}
	timeKey     struct{}
)

// RunID retrieves the ingestion/dedupe run identifier from the context.
func RunID(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey{}).(string); ok {
		return runID
	}
	return ""
}

// WithRunID injects a run identifier into the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// Operator retrieves the human operator confirming interactive decisions.
func Operator(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok {
		return op
	}
	return ""
}

// WithOperator injects the operator name into the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// Now retrieves the injected time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}
