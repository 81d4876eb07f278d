// Package backend defines the capability interfaces of the external
// persistence and authentication collaborators. The application never
// talks to a concrete backend directly: stores and services receive
// an implementation at construction time, which keeps them testable
// against the in-memory fake.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

// Error is the collaborator failure model: a single human-readable
// message, surfaced to the user verbatim.
type Error struct {
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// MetricBackend is the minimal persistence capability the stores need.
// Row-level authorization is the collaborator's responsibility: Delete
// takes only an identifier and the backend decides whether the acting
// user may remove that row.
type MetricBackend interface {
	// List returns every entry of the owner for the kind, ordered by
	// date descending.
	List(ctx context.Context, ownerID string, kind metric.Kind) ([]metric.Entry, error)
	// Insert creates one entry and returns it with the assigned identifier.
	Insert(ctx context.Context, e metric.Entry) (metric.Entry, error)
	// Delete removes one entry by identifier.
	Delete(ctx context.Context, id int64) error
}

// Account is the identity the application reads off the auth
// collaborator. Everything else about the user stays remote.
type Account struct {
	UserID      string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// Session is an authenticated account plus its bearer token.
type Session struct {
	Account     Account
	AccessToken string
}

type AuthBackend interface {
	SignUp(ctx context.Context, email, password, displayName string, dev user.Device) (Session, error)
	SignIn(ctx context.Context, email, password string, dev user.Device) (Session, error)
	SignOut(ctx context.Context, accessToken string) error
	// Validate resolves a bearer token to the account it belongs to.
	Validate(ctx context.Context, accessToken string) (Account, error)
}

type tokenKey struct{}

// WithToken attaches the acting user's bearer token to the context.
// The hosted backend forwards it on every request so the remote access
// policy can scope queries; other backends ignore it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
