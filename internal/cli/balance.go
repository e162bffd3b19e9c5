package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"forge/internal/adapter/repo"
)

// BalanceOptions holds flags for the balance command.
type BalanceOptions struct {
	*RootOptions
	Transactions int
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account's balance and recent ledger rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Transactions, "transactions", 10, "number of recent transactions to list")

	return cmd
}

func runBalance(cmd *cobra.Command, opts *BalanceOptions, accountID string) error {
	ctx := cmd.Context()
	_, _, pool, err := connect(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repo.NewAccountStore(pool)
	balance, err := store.Balance(ctx, accountID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", accountID, balance)

	if opts.Transactions <= 0 {
		return nil
	}
	txns, err := store.RecentTransactions(ctx, accountID, opts.Transactions)
	if err != nil {
		return err
	}
	for _, tx := range txns {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %+d  %s  %s\n",
			tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Delta, tx.Reason, tx.RequestID)
	}
	return nil
}
