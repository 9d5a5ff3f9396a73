package ai

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/apexsim/extension/internal/ai"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// contextless returns the background context; the tick loops have no
// request context to thread through.
func contextless() context.Context {
	return context.Background()
}
