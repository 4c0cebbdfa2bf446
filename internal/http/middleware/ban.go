package middleware

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// BanChecker is satisfied by repository.BansRepository.
type BanChecker interface {
	IsBanned(ctx context.Context, origin string) (bool, error)
}

type BanConfig struct {
	Bans BanChecker
	// Skip disables the check; used in password mode where origins are not
	// tracked at all.
	Skip bool
}

// BanMiddleware refuses requests without a resolvable origin and requests
// from banned origins. Both get the same opaque answer.
func BanMiddleware(cfg BanConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.Skip {
			return next
		}
		return func(c echo.Context) error {
			origin := OriginFromCtx(c)
			if origin == "" {
				log.Errorf("no real ip detected, is the reverse proxy forwarding origin headers? remote=%s", c.Request().RemoteAddr)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
			}
			if cfg.Bans == nil {
				return next(c)
			}
			banned, err := cfg.Bans.IsBanned(c.Request().Context(), origin)
			if err != nil {
				log.Errorf("ban lookup failed for %s: %v", origin, err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
			}
			if banned {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
			}
			return next(c)
		}
	}
}
