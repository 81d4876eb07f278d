package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	authapp "github.com/trackfit/trackfit/internal/app/auth"
	"github.com/trackfit/trackfit/internal/app/session"
)

const (
	KeyCurrentUser  = "current_user"
	KeyAccessToken  = "access_token"
	KeySessionStore = "session_stores"
)

// LoginRequired resolves the bearer token to an account and makes the
// session's store set available to the handler. A valid token without
// live stores (process restart) reopens the session transparently.
func LoginRequired(service *authapp.Service, sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return JsonError(c, http.StatusUnprocessableEntity, "Invalid Authorization header")
			}
			token := parts[1]

			ctx := c.Request().Context()
			account, err := service.Validate(ctx, token)
			if err != nil {
				return JsonError(c, http.StatusUnauthorized, err)
			}

			stores, ok := sessions.StoresFor(token)
			if !ok {
				stores = sessions.Open(account.UserID, token)
			}

			c.Set(KeyCurrentUser, account)
			c.Set(KeyAccessToken, token)
			c.Set(KeySessionStore, stores)

			// requests act on the backend with the user's own token
			c.SetRequest(c.Request().WithContext(backend.WithToken(ctx, token)))

			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	}
}

func currentStores(c echo.Context) *session.Stores {
	return c.Get(KeySessionStore).(*session.Stores)
}
