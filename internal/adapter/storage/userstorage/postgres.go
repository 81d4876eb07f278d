package userstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leporo/sqlf"
	"github.com/r3labs/diff"

	"github.com/trackfit/trackfit/internal/adapter/storage"
	"github.com/trackfit/trackfit/internal/adapter/storage/pgutil"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/user"
)

type PostgresStorage struct {
	db     storage.DBContext
	seenMu sync.Mutex
	seen   map[string]*user.User
}

func NewPostgresStorage(db storage.DBContext) *PostgresStorage {
	return &PostgresStorage{
		db:   db,
		seen: make(map[string]*user.User),
	}
}

func (s *PostgresStorage) Add(ctx context.Context, u *user.User) error {
	q := sqlf.InsertInto("users").
		Set("user_id", u.UserID).
		Set("email", u.Email).
		Set("display_name", u.DisplayName).
		Set("password_hash", u.PasswordHash).
		Set("created_at", u.CreatedAt).
		Set("last_login_at", u.LastLoginAt)

	if _, err := q.ExecAndClose(ctx, s.db); err != nil {
		if pgutil.ViolatesConstraint(err, "users_email_key") {
			return user.ErrUserEmailDuplicate
		}
		if pgutil.IsConstraintViolation(err) {
			return user.ErrUserExists
		}
		return storage.InternalError(err)
	}

	for _, a := range u.Authorizations {
		if err := s.addAuthorization(ctx, u.UserID, a); err != nil {
			return err
		}
	}

	s.markSeen(u)
	return nil
}

func (s *PostgresStorage) addAuthorization(ctx context.Context, userID string, a *user.Authorization) error {
	addAuth := sqlf.InsertInto("authorizations").
		Set("authorization_id", a.ID).
		Set("user_id", userID).
		Set("created_at", a.CreatedAt).
		Set("valid_until", a.ValidUntil).
		Set("logout_at", a.LogoutAt)

	addDevice := sqlf.InsertInto("devices").
		Set("authorization_id", a.ID).
		Set("browser", a.Device.Browser).
		Set("os", a.Device.OS).
		Set("ip_address", a.Device.IPAddress).
		Set("device_model", a.Device.Model)

	if _, err := addAuth.ExecAndClose(ctx, s.db); err != nil {
		if pgutil.IsConstraintViolation(err) {
			return user.ErrAuthorizationExists
		}
		return storage.InternalError(err)
	}

	if _, err := addDevice.ExecAndClose(ctx, s.db); err != nil {
		return storage.InternalError(err)
	}

	return nil
}

type userRow struct {
	UserID       string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time

	AuthorizationID *string
	AuthCreatedAt   *time.Time
	AuthValidUntil  *time.Time
	LogoutAt        *time.Time
	Browser         *string
	OS              *string
	IPAddress       *string
	Model           *string
}

func (s *PostgresStorage) get(ctx context.Context, whereClause string, whereArgs ...any) ([]*user.User, error) {
	var tmp userRow

	q := sqlf.From("users u").
		LeftJoin("authorizations a", "u.user_id = a.user_id").
		LeftJoin("devices d", "d.authorization_id = a.authorization_id").
		Where(whereClause, whereArgs...).
		Select("u.user_id").To(&tmp.UserID).
		Select("u.email").To(&tmp.Email).
		Select("u.display_name").To(&tmp.DisplayName).
		Select("u.password_hash").To(&tmp.PasswordHash).
		Select("u.created_at").To(&tmp.CreatedAt).
		Select("u.last_login_at").To(&tmp.LastLoginAt).
		Select("a.authorization_id").To(&tmp.AuthorizationID).
		Select("a.created_at").To(&tmp.AuthCreatedAt).
		Select("a.valid_until").To(&tmp.AuthValidUntil).
		Select("a.logout_at").To(&tmp.LogoutAt).
		Select("d.browser").To(&tmp.Browser).
		Select("d.os").To(&tmp.OS).
		Select("d.ip_address").To(&tmp.IPAddress).
		Select("d.device_model").To(&tmp.Model)

	var fetched []userRow
	err := q.QueryAndClose(ctx, s.db, func(rows *sql.Rows) {
		fetched = append(fetched, tmp)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.InternalError(err)
	}

	users := rowsToDomain(fetched)
	for _, u := range users {
		s.markSeen(u)
	}
	return users, nil
}

func rowsToDomain(rows []userRow) []*user.User {
	byID := make(map[string]*user.User)
	var order []string

	for _, r := range rows {
		u, ok := byID[r.UserID]
		if !ok {
			u = &user.User{
				UserID:       r.UserID,
				Email:        r.Email,
				DisplayName:  r.DisplayName,
				PasswordHash: r.PasswordHash,
				CreatedAt:    r.CreatedAt,
				LastLoginAt:  r.LastLoginAt,
			}
			byID[r.UserID] = u
			order = append(order, r.UserID)
		}

		if r.AuthorizationID == nil {
			continue
		}
		a := &user.Authorization{
			ID:         *r.AuthorizationID,
			CreatedAt:  *r.AuthCreatedAt,
			ValidUntil: *r.AuthValidUntil,
			LogoutAt:   r.LogoutAt,
		}
		if r.Browser != nil {
			a.Device = user.Device{
				Browser:   *r.Browser,
				OS:        *r.OS,
				IPAddress: *r.IPAddress,
				Model:     *r.Model,
			}
		}
		u.Authorizations = append(u.Authorizations, a)
	}

	users := make([]*user.User, 0, len(order))
	for _, id := range order {
		users = append(users, byID[id])
	}
	return users
}

func (s *PostgresStorage) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	users, err := s.get(ctx, "u.email = ?", email)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, user.ErrUserNotFound
	}
	return users[0], nil
}

func (s *PostgresStorage) GetByID(ctx context.Context, userID string) (*user.User, error) {
	users, err := s.get(ctx, "u.user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, user.ErrUserNotFound
	}
	return users[0], nil
}

// Persist writes back the mutated aggregate. The users row gets a
// changelog-driven partial update; authorizations are upserted by
// identifier.
func (s *PostgresStorage) Persist(ctx context.Context, u *user.User) error {
	dbState, err := s.GetByID(ctx, u.UserID)
	if err != nil {
		return err
	}

	if log, _ := diff.Diff(dbState, u); len(log) != 0 {
		q := sqlf.Update("users").Where("user_id = ?", u.UserID)
		q = pgutil.MakeUpdateQuery(q, log)

		res, execErr := q.ExecAndClose(ctx, s.db)
		if err := pgutil.AssertUpdated(res, execErr, user.ErrUserNotFound); err != nil {
			return fmt.Errorf("can't persist user: %w", err)
		}
	}

	known := make(map[string]*user.Authorization)
	for _, a := range dbState.Authorizations {
		known[a.ID] = a
	}

	for _, a := range u.Authorizations {
		stored, ok := known[a.ID]
		if !ok {
			if err := s.addAuthorization(ctx, u.UserID, a); err != nil {
				return err
			}
			continue
		}
		if err := s.persistAuthorization(ctx, stored, a); err != nil {
			return err
		}
	}

	s.markSeen(u)
	return nil
}

func (s *PostgresStorage) persistAuthorization(ctx context.Context, stored, a *user.Authorization) error {
	log, _ := diff.Diff(stored, a)
	if len(log) == 0 {
		return nil
	}

	q := sqlf.Update("authorizations").Where("authorization_id = ?", a.ID)
	q = pgutil.MakeUpdateQuery(q, log)

	res, err := q.ExecAndClose(ctx, s.db)
	return pgutil.AssertUpdated(res, err, user.ErrUnauthorized)
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	var events []domain.Event
	for _, u := range s.seen {
		events = append(events, u.PopEvents()...)
	}
	s.seen = make(map[string]*user.User)
	return events
}

func (s *PostgresStorage) Close() error {
	s.seenMu.Lock()
	s.seen = make(map[string]*user.User)
	s.seenMu.Unlock()
	return nil
}

func (s *PostgresStorage) markSeen(u *user.User) {
	s.seenMu.Lock()
	s.seen[u.UserID] = u
	s.seenMu.Unlock()
}
