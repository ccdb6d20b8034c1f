// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/incident"
)

// LoopMetrics tracks resolution loop quality and error patterns for
// production monitoring. It satisfies the pipeline's Recorder interface.
type LoopMetrics struct {
	// loopCounter tracks completed loops by outcome
	loopCounter metric.Int64Counter

	// iterationsHistogram tracks how many critic passes each loop needed
	iterationsHistogram metric.Int64Histogram

	// compositeGauge tracks the final composite quality score
	compositeGauge metric.Float64Gauge

	// stageErrorCounter tracks pipeline stage failures
	stageErrorCounter metric.Int64Counter

	// errorCounter tracks total errors by code and component
	errorCounter metric.Int64Counter
}

// NewLoopMetrics creates a loop metrics tracker with OTEL meters.
func NewLoopMetrics(ctx context.Context) (*LoopMetrics, error) {
	meter := otel.Meter("mend/loop")

	loopCounter, err := meter.Int64Counter(
		"mend.loop.total",
		metric.WithDescription("Completed resolution loops by outcome"),
	)
	if err != nil {
		return nil, err
	}

	iterationsHistogram, err := meter.Int64Histogram(
		"mend.loop.iterations",
		metric.WithDescription("Critic passes per resolution loop"),
	)
	if err != nil {
		return nil, err
	}

	compositeGauge, err := meter.Float64Gauge(
		"mend.loop.composite",
		metric.WithDescription("Final composite quality score per loop"),
	)
	if err != nil {
		return nil, err
	}

	stageErrorCounter, err := meter.Int64Counter(
		"mend.stage.errors",
		metric.WithDescription("Pipeline stage failures by stage name"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"mend.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &LoopMetrics{
		loopCounter:         loopCounter,
		iterationsHistogram: iterationsHistogram,
		compositeGauge:      compositeGauge,
		stageErrorCounter:   stageErrorCounter,
		errorCounter:        errorCounter,
	}, nil
}

// RecordLoop records a completed resolution loop: how many critic passes it
// took, the final composite score, and how it ended.
func (lm *LoopMetrics) RecordLoop(ctx context.Context, iterations int, composite float64, outcome incident.Outcome) {
	if lm == nil {
		return
	}

	outcomeAttr := metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
	)
	lm.loopCounter.Add(ctx, 1, outcomeAttr)
	lm.iterationsHistogram.Record(ctx, int64(iterations), outcomeAttr)
	lm.compositeGauge.Record(ctx, composite, outcomeAttr)
}

// RecordStageError increments the failure counter for a pipeline stage.
func (lm *LoopMetrics) RecordStageError(ctx context.Context, stage string) {
	if lm == nil {
		return
	}

	lm.stageErrorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrStageName, stage),
		),
	)
}

// RecordErrorMetric increments the error counter for the given error code and component.
func (lm *LoopMetrics) RecordErrorMetric(ctx context.Context, err error, component string) {
	if lm == nil || err == nil {
		return
	}

	if me, ok := err.(*errors.MendError); ok {
		lm.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("error.code", string(me.Code)),
				attribute.String("component", component),
				attribute.String("recoverable", me.RecoverableString()),
			),
		)
	} else {
		// Generic error
		lm.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("error.code", "UNKNOWN"),
				attribute.String("component", component),
				attribute.String("recoverable", "unknown"),
			),
		)
	}
}
