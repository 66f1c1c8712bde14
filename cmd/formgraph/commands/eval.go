package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/trace"

	"github.com/formgraph/formgraph/pkg/config"
	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/telemetry"
)

func newEvalCommand() *cobra.Command {
	var (
		seedPath  string
		sets      []string
		exts      []string
		withTrace bool
	)

	cmd := &cobra.Command{
		Use:   "eval <definition.cue>",
		Short: "Evaluate a graph definition once",
		Long: `Load a graph definition, initialize an instance, optionally apply
writes, and print the settled snapshot.

The seed file is YAML of key: value pairs applied at initialization.
--set writes are applied in a second transaction after defaults settle,
exactly as an interactive form edit would be.`,
		Example: `  # Defaults only
  formgraph eval ./render-form.cue

  # Seeded initialization
  formgraph eval ./render-form.cue --seed session.yaml

  # Apply a write after init
  formgraph eval ./render-form.cue --set family=video --set quality=9

  # Provide external context visible to expressions as ext
  formgraph eval ./render-form.cue --ext tier=pro`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			var tel *telemetry.Telemetry
			if withTrace {
				var err error
				tel, err = telemetry.New(telemetry.DevelopmentConfig())
				if err != nil {
					return err
				}
				defer func() {
					if err := tel.Shutdown(context.Background()); err != nil {
						log.Warn().Err(err).Msg("Telemetry shutdown failed")
					}
				}()
			}

			parser := config.NewParser()
			var parseSpan trace.Span
			if tel != nil {
				ctx, parseSpan = tel.Tracer.StartParseSpan(ctx, path)
			}
			g, def, err := parser.LoadGraph(ctx, path)
			if parseSpan != nil {
				telemetry.RecordError(parseSpan, err)
				parseSpan.End()
			}
			if err != nil {
				return err
			}

			var seed map[string]cty.Value
			if seedPath != "" {
				seed, err = loadSeedFile(seedPath)
				if err != nil {
					return err
				}
			}

			var opts []engine.InstanceOption
			if tel != nil {
				var span trace.Span
				ctx, span = tel.Tracer.StartEvaluationSpan(ctx, "", "eval")
				defer span.End()
				opts = append(opts, engine.WithObserver(tel.Observer("")))
			}
			if len(exts) > 0 {
				ext, err := parseExternal(exts)
				if err != nil {
					return err
				}
				opts = append(opts, engine.WithExternal(ext))
			}

			log.Info().Str("graph", def.Name).Int("seeds", len(seed)).Msg("Evaluating definition")

			in := g.NewInstance(opts...)
			snap, err := in.Init(seed)
			if err != nil {
				if tel != nil {
					telemetry.RecordError(trace.SpanFromContext(ctx), err)
				}
				return err
			}

			if len(sets) > 0 {
				writes, err := parseAssignments(sets)
				if err != nil {
					return err
				}
				snap, err = in.Set(writes)
				if err != nil {
					if tel != nil {
						telemetry.RecordError(trace.SpanFromContext(ctx), err)
					}
					return err
				}
			}

			return printSnapshot(snap)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of initial values")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "write applied after initialization (key=value)")
	cmd.Flags().StringArrayVar(&exts, "ext", nil, "external context entry (key=value)")
	cmd.Flags().BoolVar(&withTrace, "telemetry", false, "emit debug logs, metrics, and stdout trace spans")

	return cmd
}
