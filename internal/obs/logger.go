// Package obs carries the engine's ambient observability: the
// context-scoped structured logger (zap via the logr/zapr bridge, as the
// teacher's operator wires logging) and the Prometheus instrumentation in
// metrics.go. The context-key accessor shape here follows the teacher's
// pkg/operator/injection package.
package obs

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// NewLogger builds the process-wide zap logger used by cmd/partyfleetd.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithLogger stashes a logr.Logger on ctx for retrieval with FromContext.
func WithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, zapr.NewLogger(log))
}

// FromContext returns the logger stashed by WithLogger, or a no-op logger if
// none was ever attached (keeps leaf packages test-friendly without forcing
// every table test to wire one up).
func FromContext(ctx context.Context) logr.Logger {
	if v := ctx.Value(loggerKey); v != nil {
		if l, ok := v.(logr.Logger); ok {
			return l
		}
	}
	return logr.Discard()
}
