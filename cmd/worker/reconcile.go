package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/coin-faucet/internal/db"
	"github.com/jmehdipour/coin-faucet/internal/kafka"
	"github.com/jmehdipour/coin-faucet/internal/logger"
	"github.com/jmehdipour/coin-faucet/internal/repository"
	"github.com/jmehdipour/coin-faucet/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Record unrecorded claims and surface payments of unknown status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dbx, err := db.NewMySQL(db.PoolOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		ledger := repository.NewClaimsRepository(dbx, repository.NewOutboxRepository(dbx), cfg.Kafka.ClaimsTopic)

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.ReconcileTopic, "reconcile")
		defer consumer.Close()

		r := worker.NewReconciler(consumer, ledger, logger.Log.Named("reconcile"))

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("reconciler started", zap.String("topic", consumer.Topic()), zap.String("group", consumer.Group()))

		return r.Run(ctx)
	},
}
