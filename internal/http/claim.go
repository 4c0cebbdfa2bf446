package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/faucet"
	"github.com/jmehdipour/coin-faucet/internal/http/middleware"
	"github.com/jmehdipour/coin-faucet/internal/payout"
	"github.com/jmehdipour/coin-faucet/internal/throttle"
	"github.com/jmehdipour/coin-faucet/internal/wallet"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Faucet is satisfied by *faucet.Pipeline.
type Faucet interface {
	Claim(ctx context.Context, req faucet.Request) (faucet.Result, error)
	Info(ctx context.Context) (payout.Quote, error)
}

type claimReq struct {
	Address  string `json:"address" form:"address"`
	Password string `json:"password" form:"password"`
}

func claimHandler(f Faucet, symbol string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req claimReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		res, err := f.Claim(c.Request().Context(), faucet.Request{
			Address:    req.Address,
			Origin:     middleware.OriginFromCtx(c),
			Credential: req.Password,
		})
		if err != nil {
			return claimError(c, err)
		}

		if res.Unrecorded {
			log.Warnf("claim %s paid but not recorded (txid %s)", res.ClaimID, res.TxID)
		}

		amount := wallet.FormatAmount(res.Amount)
		return c.JSON(http.StatusOK, map[string]any{
			"message":  fmt.Sprintf("Payment of %s %s sent with txid %s", amount, symbol, res.TxID),
			"claim_id": res.ClaimID,
			"address":  res.Address,
			"amount":   amount,
			"symbol":   symbol,
			"txid":     res.TxID,
		})
	}
}

// claimError collapses dependency and payment failures into one generic
// answer; the pipeline has already logged them with full context.
func claimError(c echo.Context, err error) error {
	switch faucet.KindOf(err) {
	case faucet.KindInput:
		msg := "Invalid address"
		if errors.Is(err, throttle.ErrMissingCredential) {
			msg = "Password required"
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})

	case faucet.KindIneligible:
		if errors.Is(err, throttle.ErrBadCredential) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Nuh-uh: invalid password"})
		}
		var te *throttle.ThrottledError
		if errors.As(err, &te) && te.RetryAfter > 0 {
			secs := int64((te.RetryAfter + time.Second - 1) / time.Second)
			c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Nuh-uh: already claimed, try again later"})

	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}
