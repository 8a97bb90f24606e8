// Copyright 2025-2026 Docker, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/docker/keystore/store"

	outcomeOK         = "ok"
	outcomeDuplicated = "duplicated"
	outcomeNotFound   = "not_found"
	outcomeUnhandled  = "unhandled"
)

type instruments struct {
	tracer   trace.Tracer
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) *instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	ops, err := meter.Int64Counter("keystore.operations",
		metric.WithDescription("Number of keystore operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		otel.Handle(err)
		ops, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("keystore.operations")
	}
	duration, err := meter.Float64Histogram("keystore.operation.duration",
		metric.WithDescription("Duration of keystore operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("keystore.operation.duration")
	}

	return &instruments{
		tracer:   tp.Tracer(instrumentationName),
		ops:      ops,
		duration: duration,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrDuplicatedItem) && !IsUnhandled(err):
		return outcomeDuplicated
	case errors.Is(err, ErrNoKeyFound) && !IsUnhandled(err):
		return outcomeNotFound
	}
	return outcomeUnhandled
}

// observe runs fn inside a keystore.<op> span and records its outcome.
func (i *instruments) observe(ctx context.Context, ns Namespace, op string, fn func(ctx context.Context) error) error {
	ctx, span := i.tracer.Start(ctx, "keystore."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation", op),
			attribute.String("namespace", ns.String()),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	result := outcome(err)
	span.SetAttributes(attribute.String("outcome", result))
	if result == outcomeUnhandled {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, result)
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("namespace", ns.String()),
		attribute.String("outcome", result),
	)
	i.ops.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed, attrs)
	return err
}
