package middleware

import (
	"github.com/jmehdipour/coin-faucet/internal/util"
	echo "github.com/labstack/echo/v4"
)

const ctxOrigin = "origin"

// OriginFromCtx returns the caller origin stored by OriginMiddleware.
// It is "" when the origin could not be determined.
func OriginFromCtx(c echo.Context) string {
	v, _ := c.Get(ctxOrigin).(string)
	return v
}

// OriginMiddleware resolves the real caller address from reverse-proxy
// headers once per request.
func OriginMiddleware(headers []string, allowDirect bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ctxOrigin, util.OriginFromRequest(c.Request(), headers, allowDirect))
			return next(c)
		}
	}
}
