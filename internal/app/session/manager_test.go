package session_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/app/messagebus"
	"github.com/trackfit/trackfit/internal/app/session"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

type countingBackend struct {
	lists atomic.Int64
}

func (b *countingBackend) List(ctx context.Context, ownerID string, kind metric.Kind) ([]metric.Entry, error) {
	b.lists.Add(1)
	return []metric.Entry{{ID: 1, Kind: kind, Value: 80, Date: "2026-08-14", OwnerID: ownerID}}, nil
}

func (b *countingBackend) Insert(ctx context.Context, e metric.Entry) (metric.Entry, error) {
	return e, nil
}

func (b *countingBackend) Delete(ctx context.Context, id int64) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenLoadsEveryKind(t *testing.T) {
	repo := &countingBackend{}
	mgr := session.NewManager(repo, messagebus.New(testLogger()), testLogger())

	set := mgr.Open("u1", "tok-1")

	if got := repo.lists.Load(); got != int64(len(metric.Kinds)) {
		t.Fatalf("expected one load per kind, got %d", got)
	}
	for _, kind := range metric.Kinds {
		st, ok := set.ByKind(kind)
		if !ok {
			t.Fatalf("missing store for kind %q", kind)
		}
		if snap := st.Snapshot(); len(snap.Entries) != 1 {
			t.Fatalf("store for %q not loaded: %+v", kind, snap)
		}
	}
}

func TestOpenIsIdempotentPerToken(t *testing.T) {
	repo := &countingBackend{}
	mgr := session.NewManager(repo, messagebus.New(testLogger()), testLogger())

	first := mgr.Open("u1", "tok-1")
	second := mgr.Open("u1", "tok-1")

	if first != second {
		t.Fatal("reopening the same token must reuse the store set")
	}
	if got := repo.lists.Load(); got != int64(len(metric.Kinds)) {
		t.Fatalf("reopening must not reload, got %d list calls", got)
	}
}

func TestCloseDropsTheSession(t *testing.T) {
	mgr := session.NewManager(&countingBackend{}, messagebus.New(testLogger()), testLogger())

	mgr.Open("u1", "tok-1")
	mgr.Close("tok-1")

	if _, ok := mgr.StoresFor("tok-1"); ok {
		t.Fatal("closed session must be gone")
	}
}

func TestBindFollowsLoginAndLogoutEvents(t *testing.T) {
	bus := messagebus.New(testLogger())
	mgr := session.NewManager(&countingBackend{}, bus, testLogger())
	mgr.Bind()

	if err := bus.PublishEvents(user.LoginEvent{At: time.Now(), UserID: "u1", Token: "tok-1"}); err != nil {
		t.Fatal(err)
	}
	bus.Close()

	if _, ok := mgr.StoresFor("tok-1"); !ok {
		t.Fatal("login event must open the session")
	}

	bus = messagebus.New(testLogger())
	mgr = session.NewManager(&countingBackend{}, bus, testLogger())
	mgr.Bind()
	mgr.Open("u1", "tok-1")

	if err := bus.PublishEvents(user.LogoutEvent{At: time.Now(), UserID: "u1", Token: "tok-1"}); err != nil {
		t.Fatal(err)
	}
	bus.Close()

	if _, ok := mgr.StoresFor("tok-1"); ok {
		t.Fatal("logout event must close the session")
	}
}

var _ backend.MetricBackend = (*countingBackend)(nil)
