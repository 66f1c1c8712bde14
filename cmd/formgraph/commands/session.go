package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"

	"github.com/formgraph/formgraph/pkg/config"
	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/stores"
	"github.com/formgraph/formgraph/pkg/telemetry"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage persistent form sessions",
		Long: `Create, inspect, update, and delete form sessions.

Session values live in the SQLite database named by --db. Each session
remembers which graph it belongs to, every settled node value (scoped by
discriminator variant), and an event log of settlements and remounts.`,
	}

	cmd.AddCommand(newSessionNewCommand())
	cmd.AddCommand(newSessionSetCommand())
	cmd.AddCommand(newSessionShowCommand())
	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionRmCommand())

	return cmd
}

// openStore opens and migrates the session database.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newSessionNewCommand() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "new <definition.cue>",
		Short: "Create a session and initialize it",
		Example: `  # Create a session with defaults
  formgraph session new ./render-form.cue

  # Create a seeded session
  formgraph session new ./render-form.cue --seed initial.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parser := config.NewParser()
			g, def, err := parser.LoadGraph(ctx, args[0])
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessionID := stores.NewSessionID()
			persister := stores.NewPersister(store, g, sessionID, log.Logger)
			if err := persister.EnsureSession(ctx, def.Name); err != nil {
				return err
			}

			in := g.NewInstance()
			detach := persister.Attach(in)
			defer detach()

			initSeed, err := seedFromFlag(seedPath)
			if err != nil {
				return err
			}
			snap, err := in.Init(initSeed)
			if err != nil {
				return err
			}

			log.Info().Str("session_id", sessionID).Str("graph", def.Name).Msg("Session created")
			fmt.Println(sessionID)
			return printSnapshot(snap)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of initial values")

	return cmd
}

func newSessionSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <session-id> <definition.cue> <key=value>...",
		Short: "Apply writes to a stored session",
		Example: `  # Change the variant of a stored session
  formgraph session set 4f2c... ./render-form.cue family=video`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			parser := config.NewParser()
			g, _, err := parser.LoadGraph(ctx, args[1])
			if err != nil {
				return err
			}

			writes, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.GetSession(ctx, sessionID); err != nil {
				return err
			}

			persister := stores.NewPersister(store, g, sessionID, log.Logger)

			var obs engine.Observer = persister
			if verbose {
				tel, err := telemetry.New(telemetry.DevelopmentConfig())
				if err != nil {
					return err
				}
				defer func() { _ = tel.Shutdown(ctx) }()
				obs = engine.Observers(tel.Observer(sessionID), persister)
			}

			in := g.NewInstance(engine.WithObserver(obs))
			if _, err := persister.Restore(ctx, in); err != nil {
				return err
			}

			detach := persister.Attach(in)
			defer detach()

			snap, err := in.Set(writes)
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		},
	}

	return cmd
}

func newSessionShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's stored values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			session, err := store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := store.ListValues(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("session %s (graph %s, updated %s)\n",
				session.ID, session.GraphName, session.UpdatedAt.Format("2006-01-02 15:04:05"))
			for _, r := range records {
				scope := r.Branch
				if scope == "" {
					scope = "base"
				}
				fmt.Printf("  [%s] %s = %s\n", scope, r.Key, r.Value)
			}
			return nil
		},
	}

	return cmd
}

func newSessionListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessions, err := store.ListSessions(ctx, limit, 0)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-20s  %s\n", s.ID, s.GraphName, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum sessions to list")

	return cmd
}

func newSessionRmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <session-id>",
		Short: "Delete a session and its values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Str("session_id", args[0]).Msg("Session deleted")
			return nil
		},
	}

	return cmd
}

// seedFromFlag loads the seed file when one was given.
func seedFromFlag(path string) (map[string]cty.Value, error) {
	if path == "" {
		return nil, nil
	}
	return loadSeedFile(path)
}
