package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"forge/internal/adapter/repo"
	"forge/internal/domain"
	"forge/internal/ledger"
)

// GrantOptions holds flags for the grant command.
type GrantOptions struct {
	*RootOptions
	Amount    int64
	DedupeKey string
	Reason    string
	Create    bool
}

// NewGrantCommand creates the grant command.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GrantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grant <account-id>",
		Short: "Credit an account",
		Long: `Credit an account with a deduplicated top-up.

Without --dedupe-key a random key is generated, which makes the grant
one-shot. Replaying the same key reports the unchanged balance.

Example:
  forgectl grant acct-42 --amount 100 --dedupe-key promo-2026-09`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrant(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "credits to add (required)")
	cmd.Flags().StringVar(&opts.DedupeKey, "dedupe-key", "", "idempotency key for the grant")
	cmd.Flags().StringVar(&opts.Reason, "reason", "manual grant", "ledger reason")
	cmd.Flags().BoolVar(&opts.Create, "create", false, "create the account when absent")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runGrant(cmd *cobra.Command, opts *GrantOptions, accountID string) error {
	ctx := cmd.Context()
	_, logger, pool, err := connect(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repo.NewAccountStore(pool)
	if opts.Create {
		if err := store.EnsureAccount(ctx, accountID, 0); err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
	}

	dedupeKey := opts.DedupeKey
	if dedupeKey == "" {
		dedupeKey = "grant:" + uuid.NewString()
	}

	led := ledger.New(store, logger)
	balance, err := led.Credit(ctx, accountID, opts.Amount, dedupeKey, opts.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			balance, err = led.Balance(ctx, accountID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "duplicate grant %s ignored, balance %d\n", dedupeKey, balance)
			return nil
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "granted %d to %s, balance %d\n", opts.Amount, accountID, balance)
	return nil
}
