package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain/user"
)

func (s *Server) MountAuth() {
	loginRequired := LoginRequired(s.authService, s.sessions)

	authRoutes := s.handler.Group("/api/auth")
	authRoutes.POST("/sign-up", s.SignUp)
	authRoutes.POST("/sign-in", s.SignIn)
	authRoutes.POST("/sign-out", s.SignOut, loginRequired)
	authRoutes.GET("/me", s.Me, loginRequired)
}

func deviceOf(c echo.Context) user.Device {
	agent := useragent.Parse(c.Request().UserAgent())

	ipAddress := c.Request().RemoteAddr
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		ipAddress = fwd
	}

	return user.Device{
		Browser:   agent.Name,
		OS:        agent.OS,
		IPAddress: ipAddress,
		Model:     agent.Device,
	}
}

type signUpReq struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

type sessionResp struct {
	AccessToken string          `json:"access_token"`
	User        backend.Account `json:"user"`
}

// SignUp registers an account and signs it in immediately, so the
// auth page can route straight to the protected home.
func (s *Server) SignUp(c echo.Context) error {
	var b signUpReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	sess, err := s.authService.SignUp(ctx, b.Email, b.Password, b.DisplayName, deviceOf(c))
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	return c.JSON(http.StatusCreated, sessionResp{
		AccessToken: sess.AccessToken,
		User:        sess.Account,
	})
}

type signInReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) SignIn(c echo.Context) error {
	var b signInReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	sess, err := s.authService.SignIn(ctx, b.Email, b.Password, deviceOf(c))
	if err != nil {
		return JsonError(c, http.StatusUnauthorized, err)
	}

	return c.JSON(http.StatusOK, sessionResp{
		AccessToken: sess.AccessToken,
		User:        sess.Account,
	})
}

func (s *Server) SignOut(c echo.Context) error {
	token := c.Get(KeyAccessToken).(string)

	if err := s.authService.SignOut(c.Request().Context(), token); err != nil {
		return JsonError(c, http.StatusUnauthorized, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) Me(c echo.Context) error {
	account := c.Get(KeyCurrentUser).(backend.Account)
	return c.JSON(http.StatusOK, account)
}
