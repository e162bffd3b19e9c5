// Package cli implements the forgectl operator commands: credit grants,
// balance inspection, reservation sweeps and schema migration.
package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"forge/internal/adapter/repo"
	"forge/internal/infra"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the forgectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "forgectl",
		Short:         "Operator tooling for the generation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// connect loads configuration and opens the database pool. The caller owns
// the pool and must Close it.
func connect(ctx context.Context, opts *RootOptions) (*infra.Config, infra.Logger, *pgxpool.Pool, error) {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, infra.Logger{}, nil, err
	}
	appEnv := cfg.AppEnv
	if opts.Verbose {
		appEnv = "development"
	}
	logger := infra.NewLogger(appEnv)

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, infra.Logger{}, nil, err
	}
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, infra.Logger{}, nil, err
	}
	return cfg, logger, pool, nil
}
