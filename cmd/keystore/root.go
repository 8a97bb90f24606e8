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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/docker/keystore/cmd/keystore/commands"
	"github.com/docker/keystore/internal/config"
)

// Note: We use a custom help template to make it more brief.
const helpTemplate = `Keystore CLI - Manage credentials in the OS secure store.
{{if .UseLine}}
Usage: {{.UseLine}}
{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableSubCommands}}
Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand)}}  {{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

func rootCommand(ctx context.Context, s *session) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:              "keystore [OPTIONS]",
		SilenceUsage:     true,
		SilenceErrors:    true,
		TraverseChildren: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: false,
			HiddenDefaultCmd:  true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(ctx)
			return s.open(ctx, f, cmd.ErrOrStderr())
		},
		Version: fmt.Sprintf("%s, commit %s", config.Version, config.Commit()),
	}
	cmd.SetVersionTemplate("Keystore\n{{.Version}}\n")
	cmd.Flags().BoolP("version", "v", false, "Print version information and quit")
	cmd.SetHelpTemplate(helpTemplate)

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to a YAML configuration file")
	pf.StringVar(&f.backend, "backend", "", "secure store to use: keychain, posixage or memory")
	pf.StringVar(&f.otelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint receiving traces and metrics")
	pf.StringVar(&f.logLevel, "log-level", "", "log level")

	cmd.AddCommand(wrapRunEWithSpan(commands.SetCommand(s)))
	cmd.AddCommand(wrapRunEWithSpan(commands.GetCommand(s)))
	cmd.AddCommand(wrapRunEWithSpan(commands.CheckCommand(s)))
	cmd.AddCommand(wrapRunEWithSpan(commands.RmCommand(s)))
	pref := commands.PrefCommand(s)
	for _, sub := range pref.Commands() {
		wrapRunEWithSpan(sub)
	}
	cmd.AddCommand(pref)

	return cmd
}

const (
	meterName  = "github.com/docker/keystore/cmd/keystore"
	tracerName = "github.com/docker/keystore/cmd/keystore"
)

func int64counter(counter string, opts ...metric.Int64CounterOption) metric.Int64Counter {
	reqs, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(counter, opts...)
	if err != nil {
		otel.Handle(err)
		reqs, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(counter, opts...)
	}
	return reqs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

func wrapRunEWithSpan(cmd *cobra.Command) *cobra.Command {
	cmd.RunE = withOTEL(cmd.RunE)
	return cmd
}

func withOTEL(runE func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer().Start(cmd.Context(), "keystore.cli.called",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("command", cmd.CommandPath())),
		)
		defer span.End()
		cmd.SetContext(ctx)
		err := runE(cmd, args)
		calledMetric(ctx, cmd, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "success")
		return nil
	}
}

// The error text is left out of the attributes: it can carry secret ids.
func calledMetric(ctx context.Context, cmd *cobra.Command, err error) {
	counter := int64counter("keystore.cli.called",
		metric.WithDescription("keystore CLI called"),
		metric.WithUnit("{invocation}"),
	)
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", cmd.CommandPath()),
		attribute.Bool("error", err != nil),
		attribute.Bool("tty", term.IsTerminal(int(os.Stdout.Fd()))),
	))
}
