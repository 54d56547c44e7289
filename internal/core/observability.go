package core

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per facade operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan finalizes a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer opens spans around facade operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// AdvisoryListener receives advisory rule violations surfaced by committed
// batches.
type AdvisoryListener interface {
	Advisories(ctx context.Context, operation string, violations []Violation)
}

type nopSpan struct{}

func (nopSpan) End(error) {}
