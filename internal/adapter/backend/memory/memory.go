// Package memory implements the persistence and auth collaborators in
// process, for development runs and tests. Same capability surface as
// the hosted service, none of the durability.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

type account struct {
	backend.Account
	passwordHash []byte
}

type DB struct {
	mu       sync.Mutex
	entries  []metric.Entry
	accounts map[string]*account // keyed by email
	tokens   map[string]string   // access token -> user id
	nextID   int64
}

var _ backend.MetricBackend = (*DB)(nil)
var _ backend.AuthBackend = (*DB)(nil)

func New() *DB {
	return &DB{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
	}
}

// --- metric persistence ---

func (db *DB) List(ctx context.Context, ownerID string, kind metric.Kind) ([]metric.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []metric.Entry
	for _, e := range db.entries {
		if e.OwnerID == ownerID && e.Kind == kind {
			out = append(out, e)
		}
	}
	// date descending, newest insert first within a day
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (db *DB) Insert(ctx context.Context, e metric.Entry) (metric.Entry, error) {
	if _, err := metric.ParseDate(e.Date); err != nil {
		return metric.Entry{}, &backend.Error{Message: err.Error()}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.nextID++
	e.ID = db.nextID
	db.entries = append(db.entries, e)
	return e, nil
}

func (db *DB) Delete(ctx context.Context, id int64) error {
	actingID, ok := db.actingUser(ctx)
	if !ok {
		return &backend.Error{Message: "unauthorized"}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for i, e := range db.entries {
		if e.ID == id && e.OwnerID == actingID {
			db.entries = append(db.entries[:i], db.entries[i+1:]...)
			return nil
		}
	}
	return &backend.Error{Message: "entry not found"}
}

func (db *DB) actingUser(ctx context.Context) (string, bool) {
	token := backend.TokenFrom(ctx)

	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.tokens[token]
	return id, ok
}

// --- auth ---

func (db *DB) SignUp(ctx context.Context, email, password, displayName string, dev user.Device) (backend.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return backend.Session{}, &backend.Error{Message: err.Error()}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.accounts[email]; exists {
		return backend.Session{}, &backend.Error{Message: "an account with this email already exists"}
	}

	acc := &account{
		Account: backend.Account{
			UserID:      newToken(),
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   time.Now().UTC(),
		},
		passwordHash: hash,
	}
	db.accounts[email] = acc
	return db.openSession(acc), nil
}

func (db *DB) SignIn(ctx context.Context, email, password string, dev user.Device) (backend.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	acc, ok := db.accounts[email]
	if !ok {
		return backend.Session{}, &backend.Error{Message: "invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return backend.Session{}, &backend.Error{Message: "invalid email or password"}
	}
	return db.openSession(acc), nil
}

func (db *DB) openSession(acc *account) backend.Session {
	now := time.Now().UTC()
	acc.LastLoginAt = &now

	token := newToken()
	db.tokens[token] = acc.UserID
	return backend.Session{Account: acc.Account, AccessToken: token}
}

func (db *DB) SignOut(ctx context.Context, accessToken string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tokens[accessToken]; !ok {
		return &backend.Error{Message: "unauthorized"}
	}
	delete(db.tokens, accessToken)
	return nil
}

func (db *DB) Validate(ctx context.Context, accessToken string) (backend.Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	userID, ok := db.tokens[accessToken]
	if !ok {
		return backend.Account{}, &backend.Error{Message: "unauthorized"}
	}
	for _, acc := range db.accounts {
		if acc.UserID == userID {
			return acc.Account, nil
		}
	}
	return backend.Account{}, &backend.Error{Message: "unauthorized"}
}

func newToken() string {
	var bytes [16]byte
	if n, err := rand.Read(bytes[:]); n != len(bytes) || err != nil {
		panic("failed to generate token")
	}
	return hex.EncodeToString(bytes[:])
}
