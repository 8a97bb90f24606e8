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

// Package telemetry wires the OpenTelemetry SDK for keystore binaries.
//
// Libraries in this module only talk to the otel API; nothing is exported
// unless a binary calls [Initialize] with an endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/docker/keystore/x/logging"
)

const defaultServiceName = "keystore"

type ShutdownFunc func(ctx context.Context)

type Config struct {
	// Endpoint of the OTLP gRPC collector, e.g. http://localhost:4317.
	// A bare host:port is treated as insecure.
	Endpoint string
	// ServiceName defaults to "keystore".
	ServiceName string
	// ExportInterval defaults to 30 seconds.
	ExportInterval time.Duration
}

// Initialize installs global trace and meter providers exporting to
// cfg.Endpoint. The returned function flushes and shuts both down.
func Initialize(ctx context.Context, cfg Config, logger logging.Logger) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("otel endpoint is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 30 * time.Second
	}

	otel.SetErrorHandler(&errorhandler{logger: logger})
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	endpoint, secure, err := sanitizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		// partial resources are still usable, the error only says which
		// detector failed.
		logger.Warnf("otel resource: %s", err)
	}

	tracerProvider, err := newTracerProvider(ctx, res, endpoint, secure)
	if err != nil {
		return nil, err
	}
	meterProvider, err := newMeterProvider(ctx, res, endpoint, secure, cfg.ExportInterval)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Warnf("tracer provider did not shut down cleanly: %s", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			logger.Warnf("meter provider did not shut down cleanly: %s", err)
		}
	}, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, endpoint string, secure bool, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if !secure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithTimeout(5*time.Second),
			sdkmetric.WithInterval(interval),
		)),
		sdkmetric.WithResource(res),
	), nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, endpoint string, secure bool) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if !secure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

type errorhandler struct {
	logger logging.Logger
}

func (eh *errorhandler) Handle(err error) {
	eh.logger.Warnf("otel: %s", err)
}

// sanitizeEndpoint strips the scheme off URL-style endpoints since the gRPC
// exporters want host:port. https implies a secure connection.
func sanitizeEndpoint(endpoint string) (string, bool, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid otel endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "https":
		return path.Join(u.Host, u.Path), true, nil
	case "http":
		return path.Join(u.Host, u.Path), false, nil
	}
	return endpoint, false, nil
}
