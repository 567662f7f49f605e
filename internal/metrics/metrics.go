package metrics

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	routeCounter   otelmetric.Int64Counter
	fetchCounter   otelmetric.Int64Counter
	upsertCounter  otelmetric.Int64Counter
	fatalCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initMetrics() {
	meter := otel.Meter("finpilot/engine")

	var err error
	routeCounter, err = meter.Int64Counter("turn_routes_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	fetchCounter, err = meter.Int64Counter("transaction_fetch_attempts_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	upsertCounter, err = meter.Int64Counter("transaction_upserts_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	fatalCounter, err = meter.Int64Counter("turn_failures_total")
	if err != nil {
		metricsInitErr = err
	}
}

func ready() bool {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		log.Debug().Str("component", "metrics").Err(metricsInitErr).Msg("metrics disabled")
		return false
	}
	return true
}

// RecordRoute counts a routing decision.
func RecordRoute(ctx context.Context, route string) {
	if !ready() {
		return
	}
	routeCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("route", route)))
}

// RecordFetch counts one transaction fetch attempt by outcome.
func RecordFetch(ctx context.Context, ok bool) {
	if !ready() {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	fetchCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordUpsert counts the rows of one batch upsert by result.
func RecordUpsert(ctx context.Context, stored, duplicates, errors int) {
	if !ready() {
		return
	}
	for result, n := range map[string]int{"stored": stored, "duplicate": duplicates, "error": errors} {
		if n > 0 {
			upsertCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("result", result)))
		}
	}
}

// RecordFatalTurn counts a turn that ended in the apology reply.
func RecordFatalTurn(ctx context.Context, route string) {
	if !ready() {
		return
	}
	fatalCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("route", route)))
}
