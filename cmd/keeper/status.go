package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solcron/keeper/internal/config"
	"github.com/solcron/keeper/internal/keypair"
	"github.com/solcron/keeper/internal/storage/sql"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the keeper's address and recent execution stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

// runStatus reports a best-effort snapshot straight from persistence. It
// intentionally does not talk to a running `keeper start` process: the
// CLI surface is specified as "details out of scope" (spec.md §6.5), and
// querying the durable record directly is simpler than inventing an IPC
// channel to a sibling process.
func runStatus(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	kp, err := keypair.Load(cfg.Keeper.WalletPath)
	if err != nil {
		return err
	}

	store, err := sql.NewStore(ctx, sql.DBConfig{DSN: cfg.Database.URL})
	if err != nil {
		return err
	}
	defer store.Close()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	stats, err := store.GetKeeperStats(ctx, today)
	if err != nil {
		return err
	}

	active, err := store.GetActiveJobs(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("keeper address: %s\n", kp.Address())
	fmt.Printf("active jobs:    %d\n", len(active))
	fmt.Printf("today:          %d successful, %d failed, %d lamports earned\n",
		stats.SuccessfulExecutions, stats.FailedExecutions, stats.TotalFeesEarned)
	return nil
}
