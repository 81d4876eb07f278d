package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/user"
)

type MessageBus interface {
	PublishEvents(events ...domain.Event) error
}

// Service fronts the auth collaborator and announces session
// lifecycle transitions on the bus, independent of which backend
// actually issued the token.
type Service struct {
	backend backend.AuthBackend
	bus     MessageBus
	logger  *slog.Logger
}

func NewService(b backend.AuthBackend, bus MessageBus, logger *slog.Logger) *Service {
	return &Service{
		backend: b,
		bus:     bus,
		logger:  logger,
	}
}

// SignUp registers the account and signs it in immediately.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string, dev user.Device) (backend.Session, error) {
	sess, err := s.backend.SignUp(ctx, email, password, displayName, dev)
	if err != nil {
		return backend.Session{}, err
	}
	s.announceLogin(sess, dev)
	return sess, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string, dev user.Device) (backend.Session, error) {
	sess, err := s.backend.SignIn(ctx, email, password, dev)
	if err != nil {
		return backend.Session{}, err
	}
	s.announceLogin(sess, dev)
	return sess, nil
}

func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	acc, err := s.backend.Validate(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := s.backend.SignOut(ctx, accessToken); err != nil {
		return err
	}

	s.publish(user.LogoutEvent{
		At:     time.Now().UTC(),
		UserID: acc.UserID,
		Token:  accessToken,
	})
	return nil
}

func (s *Service) Validate(ctx context.Context, accessToken string) (backend.Account, error) {
	return s.backend.Validate(ctx, accessToken)
}

func (s *Service) announceLogin(sess backend.Session, dev user.Device) {
	s.publish(user.LoginEvent{
		At:     time.Now().UTC(),
		UserID: sess.Account.UserID,
		Token:  sess.AccessToken,
		Device: dev,
	})
}

func (s *Service) publish(e domain.Event) {
	if err := s.bus.PublishEvents(e); err != nil {
		s.logger.Error("failed to publish session event", "type", e.Type(), "error", err)
	}
}
