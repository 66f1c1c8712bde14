package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/formgraph/formgraph/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition.cue>",
		Short: "Validate a graph definition file",
		Long: `Validate a CUE graph definition.

This command checks:
  - CUE syntax validity
  - Schema conformance of the definition document
  - Graph consistency: declared dependencies, static cycles,
    discriminator branches, and effect wiring`,
		Example: `  # Validate a definition
  formgraph validate ./render-form.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			log.Info().Str("path", path).Msg("Validating definition")

			parser := config.NewParser()
			result, err := parser.ParseFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				for _, msg := range result.Errors {
					fmt.Printf("error: %s\n", msg)
				}
				return fmt.Errorf("%s: %d validation error(s)", path, len(result.Errors))
			}

			g, err := parser.BuildGraph(result.Definition)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			fmt.Printf("%s: valid (%d nodes, %d branches, %d effects)\n",
				path, len(g.Nodes()), len(g.Branches()), len(g.Effects()))
			return nil
		},
	}

	return cmd
}
