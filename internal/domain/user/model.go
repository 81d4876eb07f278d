package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/trackfit/trackfit/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrAuthorizationExists = errors.New("authorization already exists")
	ErrUserEmailDuplicate  = fmt.Errorf("%w: email is not unique", ErrUserExists)
	ErrInvalidCredentials  = errors.New("email or password is invalid")
	ErrUnauthorized        = errors.New("unauthorized")
)

const (
	EventCreated  = "user.created"
	EventNewLogin = "user.login"
	EventLogout   = "user.logout"
)

type Authorizer interface {
	Hash(password string) string
	Authorize(u *User, password string, dev Device) (Authorization, error)
}

// Device captures what the user signed in with. Parsed from the
// User-Agent header at the API edge.
type Device struct {
	Browser   string `diff:"browser"`
	OS        string `diff:"os"`
	IPAddress string `diff:"ip_address"`
	Model     string `diff:"model"`
}

type Authorization struct {
	ID         string     `diff:"-"`
	CreatedAt  time.Time  `diff:"-"`
	ValidUntil time.Time  `diff:"valid_until"`
	LogoutAt   *time.Time `diff:"logout_at"`
	Device     Device     `diff:"-"`
}

type User struct {
	domain.Aggregate `diff:"-"`
	UserID           string           `diff:"-"`
	Email            string           `diff:"email"`
	DisplayName      string           `diff:"display_name"`
	PasswordHash     string           `diff:"password_hash"`
	CreatedAt        time.Time        `diff:"-"`
	LastLoginAt      *time.Time       `diff:"last_login_at"`
	Authorizations   []*Authorization `diff:"-"`
}

func NewUser(userID, email, displayName, password string, hasher Authorizer) *User {
	u := &User{
		UserID:       userID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hasher.Hash(password),
		CreatedAt:    time.Now().UTC(),
	}
	u.PushEvent(CreatedEvent{
		At:     u.CreatedAt,
		UserID: u.UserID,
		Email:  u.Email,
	})
	return u
}

// Authorize verifies the password and opens a new authorization for
// the device, bumping the last-login timestamp.
func (u *User) Authorize(a Authorizer, password string, dev Device) (Authorization, error) {
	auth, err := a.Authorize(u, password, dev)
	if err != nil {
		return Authorization{}, err
	}

	u.Authorizations = append(u.Authorizations, &auth)
	now := time.Now().UTC()
	u.LastLoginAt = &now

	u.PushEvent(LoginEvent{
		At:     now,
		UserID: u.UserID,
		Device: auth.Device,
	})
	return auth, nil
}

// Logout closes the authorization with the given identifier. Closing
// an unknown or already closed authorization is an error.
func (u *User) Logout(authorizationID string) error {
	var auth *Authorization
	for _, a := range u.Authorizations {
		if a.ID == authorizationID {
			auth = a
		}
	}
	if auth == nil {
		return fmt.Errorf("%w: authorization not found", ErrUnauthorized)
	}
	if auth.LogoutAt != nil {
		return fmt.Errorf("%w: authorization already closed", ErrUnauthorized)
	}

	now := time.Now().UTC()
	auth.LogoutAt = &now

	u.PushEvent(LogoutEvent{
		At:     now,
		UserID: u.UserID,
	})
	return nil
}

type CreatedEvent struct {
	At     time.Time
	UserID string
	Email  string
}

func (e CreatedEvent) Type() string { return EventCreated }

func (e CreatedEvent) PublishedAt() time.Time { return e.At }

// LoginEvent announces an authenticated session becoming available.
// Token is set by the auth service so session-scoped consumers can
// address the hosted backend on behalf of the user.
type LoginEvent struct {
	At     time.Time
	UserID string
	Token  string
	Device Device
}

func (e LoginEvent) Type() string { return EventNewLogin }

func (e LoginEvent) PublishedAt() time.Time { return e.At }

type LogoutEvent struct {
	At     time.Time
	UserID string
	Token  string
}

func (e LogoutEvent) Type() string { return EventLogout }

func (e LogoutEvent) PublishedAt() time.Time { return e.At }
