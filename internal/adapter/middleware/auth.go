package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
)

const callerKey = "caller"

// TokenParser resolves a bearer token to the caller address it was issued for.
type TokenParser interface {
	Parse(token string) (common.Address, error)
}

// RequireCaller rejects requests without a valid bearer token and stores the
// authenticated caller on the echo context.
func RequireCaller(tokens TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}
			caller, err := tokens.Parse(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			c.Set(callerKey, caller)
			return next(c)
		}
	}
}

// Caller returns the address RequireCaller stored, if any.
func Caller(c echo.Context) (common.Address, bool) {
	addr, ok := c.Get(callerKey).(common.Address)
	return addr, ok
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
