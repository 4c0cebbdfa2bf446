package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/coin-faucet/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listClaimsHandler(chRepo repository.CHClaimsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		address := strings.TrimSpace(c.QueryParam("address"))
		origin := strings.TrimSpace(c.QueryParam("origin"))

		claims, err := chRepo.ListRecent(c.Request().Context(), address, origin, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(claims),
			"results": claims,
		})
	}
}
