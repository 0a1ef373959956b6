package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID renders the authenticated user's ID for rate-limit
// keying.  Anonymous requests collapse into a shared "anon" bucket.
// Note the context value is only populated once JWTAuth has run; the
// globally mounted limiter sees "anon" for every request, which is why
// user-based key strategies are not the default.
func currentUserID(c echo.Context) string {
	v := c.Get("user_id")
	if v == nil {
		return "anon"
	}
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return fmt.Sprintf("%.0f", t)
	case uint64:
		return fmt.Sprintf("%d", t)
	}
	return "anon"
}
