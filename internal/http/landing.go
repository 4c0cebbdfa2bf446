package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/coin-faucet/internal/config"
	"github.com/jmehdipour/coin-faucet/internal/http/middleware"
	"github.com/jmehdipour/coin-faucet/internal/payout"
	"github.com/jmehdipour/coin-faucet/internal/wallet"
	"github.com/labstack/echo/v4"
)

func landingHandler(f Faucet, fc config.FaucetConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := f.Info(c.Request().Context())
		if err != nil && !errors.Is(err, payout.ErrDepleted) {
			c.Logger().Errorf("landing quote failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		}

		ip := middleware.OriginFromCtx(c)
		if ip == "" {
			ip = "(unknown)"
		}

		var toPay int64
		if err == nil {
			toPay = q.Amount
		}
		return c.JSON(http.StatusOK, map[string]any{
			"name":              fc.Name,
			"symbol":            fc.Symbol,
			"balance":           wallet.FormatAmount(q.Balance),
			"to_pay":            wallet.FormatAmount(toPay),
			"depleted":          err != nil,
			"ip":                ip,
			"password_required": fc.PasswordMode(),
		})
	}
}
