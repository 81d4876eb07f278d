// Package selfhost implements the persistence and auth collaborators
// on a local Postgres database. Functionally equivalent to the hosted
// service for the features the application uses, including row-level
// authorization derived from the bearer token.
package selfhost

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/adapter/storage"
	metricstorage "github.com/trackfit/trackfit/internal/adapter/storage/metrics"
	"github.com/trackfit/trackfit/internal/adapter/storage/userstorage"
	"github.com/trackfit/trackfit/internal/app/auth"
	"github.com/trackfit/trackfit/internal/app/unitofwork"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

type Backend struct {
	db         storage.DB
	authorizer *auth.Authorizer
	msgBus     unitofwork.MessageBus
	logger     *slog.Logger
}

var _ backend.MetricBackend = (*Backend)(nil)
var _ backend.AuthBackend = (*Backend)(nil)

func New(db storage.DB, authorizer *auth.Authorizer, msgBus unitofwork.MessageBus, logger *slog.Logger) *Backend {
	return &Backend{
		db:         db,
		authorizer: authorizer,
		msgBus:     msgBus,
		logger:     logger,
	}
}

// --- metric persistence ---

type metricContext struct {
	storage.DBContext
	Metrics *metricstorage.PostgresStorage
}

func (c *metricContext) Commit() error {
	return c.DBContext.Commit()
}

func (c *metricContext) Close() error {
	return nil
}

func (c *metricContext) CollectEvents() []domain.Event {
	return nil
}

func newMetricContext(db storage.DBContext) (*metricContext, error) {
	return &metricContext{
		DBContext: db,
		Metrics:   metricstorage.NewPostgresStorage(db),
	}, nil
}

func (b *Backend) metricUoW() *unitofwork.UnitOfWork[*metricContext] {
	return unitofwork.New[*metricContext](b.db, newMetricContext, b.msgBus, b.logger)
}

func (b *Backend) List(ctx context.Context, ownerID string, kind metric.Kind) (entries []metric.Entry, outErr error) {
	outErr = b.metricUoW().Atomic(ctx, func(ctx context.Context, c *metricContext) error {
		var err error
		if entries, err = c.Metrics.ListByOwner(ctx, ownerID, kind); err != nil {
			return err
		}
		return c.Commit()
	})
	return entries, surfaced(outErr)
}

func (b *Backend) Insert(ctx context.Context, e metric.Entry) (created metric.Entry, outErr error) {
	outErr = b.metricUoW().Atomic(ctx, func(ctx context.Context, c *metricContext) error {
		var err error
		if created, err = c.Metrics.Insert(ctx, e); err != nil {
			return err
		}
		return c.Commit()
	})
	return created, surfaced(outErr)
}

// Delete resolves the acting user from the context token and removes
// the row only if that user owns it. The token is the sole source of
// truth for "may this user delete this entry", same as the hosted
// access policy.
func (b *Backend) Delete(ctx context.Context, id int64) error {
	acting, err := b.Validate(ctx, backend.TokenFrom(ctx))
	if err != nil {
		return &backend.Error{Message: "unauthorized"}
	}

	outErr := b.metricUoW().Atomic(ctx, func(ctx context.Context, c *metricContext) error {
		if err := c.Metrics.Delete(ctx, acting.UserID, id); err != nil {
			return err
		}
		return c.Commit()
	})
	return surfaced(outErr)
}

// --- auth ---

type userContext struct {
	storage.DBContext
	Users *userstorage.PostgresStorage
}

func (c *userContext) Commit() error {
	return c.DBContext.Commit()
}

func (c *userContext) Close() error {
	return c.Users.Close()
}

func (c *userContext) CollectEvents() []domain.Event {
	return c.Users.CollectEvents()
}

func newUserContext(db storage.DBContext) (*userContext, error) {
	return &userContext{
		DBContext: db,
		Users:     userstorage.NewPostgresStorage(db),
	}, nil
}

func (b *Backend) userUoW() *unitofwork.UnitOfWork[*userContext] {
	return unitofwork.New[*userContext](b.db, newUserContext, b.msgBus, b.logger)
}

func (b *Backend) SignUp(ctx context.Context, email, password, displayName string, dev user.Device) (sess backend.Session, outErr error) {
	outErr = b.userUoW().Atomic(ctx, func(ctx context.Context, c *userContext) error {
		u := user.NewUser(newID(), email, displayName, password, b.authorizer)
		if err := c.Users.Add(ctx, u); err != nil {
			return err
		}

		var err error
		if sess, err = b.openSession(u, password, dev); err != nil {
			return err
		}

		if err := c.Users.Persist(ctx, u); err != nil {
			return err
		}
		return c.Commit()
	})
	return sess, surfaced(outErr)
}

func (b *Backend) SignIn(ctx context.Context, email, password string, dev user.Device) (sess backend.Session, outErr error) {
	outErr = b.userUoW().Atomic(ctx, func(ctx context.Context, c *userContext) error {
		u, err := c.Users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return user.ErrInvalidCredentials
			}
			return err
		}

		if sess, err = b.openSession(u, password, dev); err != nil {
			return err
		}

		if err := c.Users.Persist(ctx, u); err != nil {
			return err
		}
		return c.Commit()
	})
	return sess, surfaced(outErr)
}

func (b *Backend) openSession(u *user.User, password string, dev user.Device) (backend.Session, error) {
	authz, err := u.Authorize(b.authorizer, password, dev)
	if err != nil {
		return backend.Session{}, err
	}

	token, err := b.authorizer.GenerateAccessToken(u, &authz)
	if err != nil {
		return backend.Session{}, err
	}

	return backend.Session{
		Account:     accountOf(u),
		AccessToken: token,
	}, nil
}

func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	data, err := b.authorizer.ValidateAccessToken(accessToken)
	if err != nil {
		return surfaced(err)
	}

	outErr := b.userUoW().Atomic(ctx, func(ctx context.Context, c *userContext) error {
		u, err := c.Users.GetByID(ctx, data.UserID)
		if err != nil {
			return err
		}
		if err := u.Logout(data.AuthorizationID); err != nil {
			return err
		}
		if err := c.Users.Persist(ctx, u); err != nil {
			return err
		}
		return c.Commit()
	})
	return surfaced(outErr)
}

func (b *Backend) Validate(ctx context.Context, accessToken string) (acc backend.Account, outErr error) {
	data, err := b.authorizer.ValidateAccessToken(accessToken)
	if err != nil {
		return backend.Account{}, surfaced(err)
	}

	outErr = b.userUoW().Atomic(ctx, func(ctx context.Context, c *userContext) error {
		u, err := c.Users.GetByID(ctx, data.UserID)
		if err != nil {
			return err
		}

		for _, a := range u.Authorizations {
			if a.ID != data.AuthorizationID {
				continue
			}
			if a.LogoutAt != nil || time.Now().UTC().After(a.ValidUntil) {
				return user.ErrUnauthorized
			}
			acc = accountOf(u)
			return c.Commit()
		}
		return user.ErrUnauthorized
	})
	return acc, surfaced(outErr)
}

func accountOf(u *user.User) backend.Account {
	return backend.Account{
		UserID:      u.UserID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func newID() string {
	var bytes [16]byte
	if n, err := rand.Read(bytes[:]); n != len(bytes) || err != nil {
		panic("failed to generate user id")
	}
	return hex.EncodeToString(bytes[:])
}

// surfaced converts internal failures to the collaborator error model
// so the stores surface one human-readable message regardless of mode.
func surfaced(err error) error {
	if err == nil {
		return nil
	}

	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return backendErr
	}

	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		return &backend.Error{Message: "invalid email or password"}
	case errors.Is(err, user.ErrUserEmailDuplicate):
		return &backend.Error{Message: "an account with this email already exists"}
	case errors.Is(err, user.ErrUnauthorized), errors.Is(err, auth.ErrAccessTokenInvalid):
		return &backend.Error{Message: "unauthorized"}
	case errors.Is(err, metric.ErrEntryNotFound):
		return &backend.Error{Message: "entry not found"}
	case errors.Is(err, storage.ErrInternal):
		return &backend.Error{Message: "internal storage error"}
	}
	return &backend.Error{Message: err.Error()}
}
