package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/formgraph/formgraph/pkg/config"
)

func newDevCommand() *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "dev <definition.cue>",
		Short: "Watch a definition and re-evaluate on change",
		Long: `Watch a graph definition file and re-evaluate it whenever it changes.

On each change the definition is re-parsed, validated, built, and
initialized, and the settled snapshot is printed. Parse and evaluation
errors are logged without stopping the watch, so the file can be edited
until it is correct. Writes given with --set are replayed after every
rebuild.`,
		Example: `  # Live-edit a definition
  formgraph dev ./render-form.cue

  # Live-edit while holding a variant active
  formgraph dev ./render-form.cue --set family=video`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			// Watch the directory: editors often replace the file, which
			// drops a watch registered on the file itself.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return err
			}

			evaluateOnce(cmd.Context(), path, sets)

			// Editors fire bursts of events per save; coalesce them.
			var pending <-chan time.Time
			for {
				select {
				case <-cmd.Context().Done():
					log.Info().Msg("Stopping watch")
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Name != path {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
						continue
					}
					pending = time.After(100 * time.Millisecond)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watch error")
				case <-pending:
					pending = nil
					log.Info().Str("path", path).Msg("Definition changed, re-evaluating")
					evaluateOnce(cmd.Context(), path, sets)
				}
			}
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "write replayed after each rebuild (key=value)")

	return cmd
}

// evaluateOnce parses, builds, and initializes the definition, printing
// the settled snapshot. Failures are logged, not returned, so the watch
// loop keeps running.
func evaluateOnce(ctx context.Context, path string, sets []string) {
	parser := config.NewParser()
	g, def, err := parser.LoadGraph(ctx, path)
	if err != nil {
		log.Error().Err(err).Msg("Definition rejected")
		return
	}

	in := g.NewInstance()
	snap, err := in.Init(nil)
	if err != nil {
		log.Error().Err(err).Str("graph", def.Name).Msg("Initialization failed")
		return
	}

	if len(sets) > 0 {
		writes, err := parseAssignments(sets)
		if err != nil {
			log.Error().Err(err).Msg("Invalid --set value")
			return
		}
		snap, err = in.Set(writes)
		if err != nil {
			log.Error().Err(err).Str("graph", def.Name).Msg("Write rejected")
			return
		}
	}

	if err := printSnapshot(snap); err != nil {
		log.Error().Err(err).Msg("Failed to print snapshot")
	}
}
