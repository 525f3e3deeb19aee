// Package store defines the read/write contract shared by both span
// store backends (§6, §9): accept a batch of spans, and answer the
// six read operations. Neither backend needs inheritance — a small
// interface of Accept plus the six reads is enough to let callers
// swap backends at construction time.
package store

import (
	"context"

	"github.com/tracestore/core/model"
)

// Store is the read/write surface every span store backend
// implements.
type Store interface {
	// Accept normalizes and durably stores spans. It returns after
	// every span in the batch is placed (committed, for the
	// relational backend) or reports the first failure; partial
	// success within a batch is never exposed.
	Accept(ctx context.Context, spans []model.Span) error

	// GetTraces returns every trace, merged and clock-skew corrected,
	// matching req, most recent first, up to req.Limit.
	GetTraces(ctx context.Context, req model.QueryRequest) ([][]model.Span, error)

	// GetTrace returns the merged, clock-skew-corrected trace for id,
	// or nil if id is unknown.
	GetTrace(ctx context.Context, traceID int64) ([]model.Span, error)

	// GetRawTrace returns the unmerged spans for id as they were
	// inserted, or nil if id is unknown.
	GetRawTrace(ctx context.Context, traceID int64) ([]model.Span, error)

	// GetServiceNames returns every known service name, ascending.
	GetServiceNames(ctx context.Context) ([]string, error)

	// GetSpanNames returns every span name observed for service,
	// ascending. service is matched case-insensitively.
	GetSpanNames(ctx context.Context, service string) ([]string, error)

	// GetDependencies returns the dependency links derived from
	// traces whose root span falls within [endTs-lookback, endTs]
	// (milliseconds). A nil lookback means "since the epoch".
	GetDependencies(ctx context.Context, endTsMillis int64, lookbackMillis *int64) ([]model.DependencyLink, error)
}
