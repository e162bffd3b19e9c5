package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"forge/internal/adapter/repo"
	"forge/internal/ledger"
	"forge/internal/orchestrator"
	"forge/internal/poll"
	"forge/internal/provider"
	"forge/internal/sweeper"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	MinAge time.Duration
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Resolve stale reservations once",
		Long: `Run one reconciliation pass over unsettled reservations.

Each stale reservation is re-polled against the provider: a job that
completed in the meantime is settled, a dead job is refunded, and a job
still running is left for the next sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.MinAge, "min-age", 0, "only touch reservations older than this (default from config)")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	ctx := cmd.Context()
	cfg, logger, pool, err := connect(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer pool.Close()

	accounts := repo.NewAccountStore(pool)
	reservations := repo.NewReservationStore(pool)
	led := ledger.New(accounts, logger)

	providerClient, err := provider.NewClient(provider.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		return err
	}
	controller := poll.New(providerClient, logger)
	generator := orchestrator.NewGenerator(led, providerClient, controller, reservations, logger)

	minAge := opts.MinAge
	if minAge <= 0 {
		minAge = cfg.SweepMinAge
	}
	sw := sweeper.New(reservations, generator, minAge, logger)
	settled, pending, err := sw.SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "settled %d, still pending %d\n", settled, pending)
	return nil
}
