package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/db"
	"github.com/jmehdipour/coin-faucet/internal/repository"
	"github.com/spf13/cobra"
)

var banCmd = &cobra.Command{
	Use:   "ban",
	Short: "Manage banned origins (identity mode only)",
}

var banAddCmd = &cobra.Command{
	Use:   "add ORIGIN...",
	Short: "Ban one or more origins",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBans(cmd, func(ctx context.Context, bans repository.BansRepository) error {
			n, err := bans.Add(ctx, args...)
			if err != nil {
				return err
			}
			cmd.Printf("banned %d new origin(s)\n", n)
			return nil
		})
	},
}

var banRemoveCmd = &cobra.Command{
	Use:   "remove ORIGIN...",
	Short: "Lift bans",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBans(cmd, func(ctx context.Context, bans repository.BansRepository) error {
			n, err := bans.Remove(ctx, args...)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d origin(s)\n", n)
			return nil
		})
	},
}

var banListCmd = &cobra.Command{
	Use:   "list",
	Short: "List banned origins",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBans(cmd, func(ctx context.Context, bans repository.BansRepository) error {
			origins, err := bans.List(ctx)
			if err != nil {
				return err
			}
			for _, o := range origins {
				cmd.Println(o)
			}
			return nil
		})
	},
}

func init() {
	banCmd.AddCommand(banAddCmd, banRemoveCmd, banListCmd)
}

func withBans(cmd *cobra.Command, fn func(context.Context, repository.BansRepository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rdb, err := db.NewRedis(db.RedisOptsFrom(cfg.Redis))
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return fn(ctx, repository.NewBansRepository(rdb))
}
