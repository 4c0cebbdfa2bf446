package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/config"
	"github.com/jmehdipour/coin-faucet/internal/db"
	"github.com/jmehdipour/coin-faucet/internal/faucet"
	httpSrv "github.com/jmehdipour/coin-faucet/internal/http"
	"github.com/jmehdipour/coin-faucet/internal/kafka"
	"github.com/jmehdipour/coin-faucet/internal/logger"
	"github.com/jmehdipour/coin-faucet/internal/payout"
	"github.com/jmehdipour/coin-faucet/internal/repository"
	"github.com/jmehdipour/coin-faucet/internal/throttle"
	"github.com/jmehdipour/coin-faucet/internal/wallet"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mysqlDB, err := db.NewMySQL(db.PoolOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedis(db.RedisOptsFrom(cfg.Redis))
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		// reports are optional; the faucet runs without ClickHouse
		var reports repository.CHClaimsRepository
		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.NewClickHouse(db.PoolOptsFrom(cfg.ClickHouse))
			if err != nil {
				logger.Log.Warn("clickhouse unavailable, admin reports disabled", zap.Error(err))
			} else {
				defer func() { _ = chDB.Close() }()
				reports = repository.NewCHClaimsRepository(chDB)
			}
		}

		node := wallet.NewRPCClient(wallet.RPCConfig{
			URL:            cfg.Wallet.URL,
			User:           cfg.Wallet.User,
			Password:       cfg.Wallet.Password,
			MinConf:        cfg.Wallet.MinConf,
			BalanceTimeout: cfg.Wallet.BalanceTimeout,
			SendTimeout:    cfg.Wallet.SendTimeout,
			FailThreshold:  cfg.Wallet.Breaker.FailThreshold,
			OpenForMs:      cfg.Wallet.Breaker.OpenForMs,
		})

		claimsRepo := repository.NewClaimsRepository(mysqlDB, repository.NewOutboxRepository(mysqlDB), cfg.Kafka.ClaimsTopic)

		calc, err := payout.NewCalculator(node, claimsRepo, payout.Policy{
			BaseAmount:    cfg.Payout.BaseAmount,
			MinAmount:     cfg.Payout.MinAmount,
			MaxShareBps:   cfg.Payout.MaxShareBps,
			ReserveAmount: cfg.Payout.ReserveAmount,
			Window:        cfg.Payout.Window,
			TargetClaims:  cfg.Payout.TargetClaims,
		})
		if err != nil {
			return err
		}

		gate, err := newGate(cfg.Faucet, mysqlDB, redisClient)
		if err != nil {
			return err
		}

		reconcile := kafka.NewReconcileProducer(cfg.Kafka.Brokers, cfg.Kafka.ReconcileTopic)
		defer func() { _ = reconcile.Close() }()

		pipeline, err := faucet.NewPipeline(calc, gate, node, claimsRepo,
			faucet.WithReconciler(reconcile),
			faucet.WithLogger(logger.Log.Named("pipeline")),
			faucet.WithCategory(cfg.Faucet.Category),
		)
		if err != nil {
			return err
		}

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Faucet:  pipeline,
			Bans:    repository.NewBansRepository(redisClient),
			Reports: reports,
			Redis:   redisClient,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error("http server exited", zap.Error(err))
			}
		}

		// in-flight claims finish their send and record before exit
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Wallet.SendTimeout+5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

// newGate picks password mode when a password is configured, otherwise
// per-origin cooldowns over the configured store.
func newGate(fc config.FaucetConfig, mysqlDB *sqlx.DB, rdb *redis.Client) (throttle.Gate, error) {
	if fc.PasswordMode() {
		logger.Log.Info("throttle: password mode, origins are not tracked")
		return throttle.NewPasswordGate(fc.Password), nil
	}

	var store throttle.Store
	switch fc.ThrottleStore {
	case "memory":
		store = throttle.NewMemoryStore()
	case "redis":
		store = throttle.NewRedisStore(rdb)
	case "mysql", "":
		store = throttle.NewMySQLStore(mysqlDB)
	default:
		return nil, fmt.Errorf("unknown throttle store %q", fc.ThrottleStore)
	}
	gate, err := throttle.NewIdentityGate(store, fc.Cooldown)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("throttle: identity mode",
		zap.String("store", fc.ThrottleStore), zap.Duration("cooldown", gate.Cooldown()))
	return gate, nil
}
