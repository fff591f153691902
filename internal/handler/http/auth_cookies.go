package httphandler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// DefaultAccessTokenCookie is the cookie that carries the access token for
// browser clients. API clients use the Authorization header instead.
const DefaultAccessTokenCookie = "planiversary_access"

// setAccessTokenCookie sets the access token cookie. The cookie lives
// exactly as long as the token it carries.
func setAccessTokenCookie(c echo.Context, name, token string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
	c.SetCookie(cookie)
}

// clearAccessTokenCookie removes the access token cookie.
func clearAccessTokenCookie(c echo.Context, name string) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	c.SetCookie(cookie)
}
