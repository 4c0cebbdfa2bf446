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
	"github.com/jmehdipour/coin-faucet/internal/metrics"
	"github.com/jmehdipour/coin-faucet/internal/repository"
	"github.com/jmehdipour/coin-faucet/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var projectorCmd = &cobra.Command{
	Use:   "projector",
	Short: "Project recorded claims from Kafka into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		chDB, err := db.NewClickHouse(db.PoolOptsFrom(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		topic := cfg.Kafka.ClaimsTopic
		if topic == "" {
			topic = repository.ClaimsTopic
		}
		consumer := kafka.NewConsumer(cfg.Kafka, topic, "projector")
		defer consumer.Close()

		p := worker.NewProjector(consumer, repository.NewCHClaimsRepository(chDB), logger.Log.Named("projector"))
		if cfg.Projector.BatchSize > 0 {
			p.BatchSize = cfg.Projector.BatchSize
		}
		if cfg.Projector.BatchWait > 0 {
			p.BatchWait = cfg.Projector.BatchWait
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("projector started",
			zap.String("topic", consumer.Topic()),
			zap.String("group", consumer.Group()),
			zap.Int("batch_size", p.BatchSize),
			zap.Duration("batch_wait", p.BatchWait))

		return p.Run(ctx)
	},
}
