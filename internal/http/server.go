package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/config"
	"github.com/jmehdipour/coin-faucet/internal/http/middleware"
	"github.com/jmehdipour/coin-faucet/internal/logger"
	"github.com/jmehdipour/coin-faucet/internal/metrics"
	"github.com/jmehdipour/coin-faucet/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators behind the HTTP surface. Bans, Reports and
// Redis are optional.
type Deps struct {
	Faucet  Faucet
	Bans    middleware.BanChecker
	Reports repository.CHClaimsRepository
	Redis   *redis.Client
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	log.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	originMW := middleware.OriginMiddleware(cfg.Faucet.OriginHeaders, cfg.Faucet.AllowDirectAccess)
	banMW := middleware.BanMiddleware(middleware.BanConfig{
		Bans: d.Bans,
		Skip: cfg.Faucet.PasswordMode(),
	})
	rlMW := newRateLimit(cfg.RateLimit, d.Redis)

	// routes
	e.GET("/", landingHandler(d.Faucet, cfg.Faucet), originMW, banMW)
	e.POST("/claim", claimHandler(d.Faucet, cfg.Faucet.Symbol), originMW, banMW, rlMW)

	if d.Reports != nil && cfg.Admin.APIKey != "" {
		admin := e.Group("/admin", middleware.AdminKeyMiddleware(cfg.Admin.APIKey))
		admin.GET("/claims", listClaimsHandler(d.Reports))
	}

	return &Server{e: e}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// newRateLimit limits /claim per origin through Redis, or in process when
// configured so or when no Redis client is available.
func newRateLimit(rl config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if rl.Store == "memory" || rdb == nil {
		return middleware.MemoryRateLimitMiddleware(middleware.MemoryRateLimitConfig{
			RPS:   float64(rl.RPS),
			Burst: rl.Burst,
		})
	}
	return middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rdb,
		RPS:            rl.RPS,
		KeyPrefix:      "rl:origin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
