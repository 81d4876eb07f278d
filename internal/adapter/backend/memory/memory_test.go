package memory_test

import (
	"context"
	"testing"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/adapter/backend/memory"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

func signUp(t *testing.T, db *memory.DB, email string) backend.Session {
	t.Helper()
	sess, err := db.SignUp(context.Background(), email, "s3cret-pass", "Tester", user.Device{})
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestSignUpSignInRoundTrip(t *testing.T) {
	db := memory.New()
	ctx := context.Background()

	sess := signUp(t, db, "ada@example.com")
	if sess.AccessToken == "" || sess.Account.UserID == "" {
		t.Fatalf("sign up must open a session, got %+v", sess)
	}

	if _, err := db.SignUp(ctx, "ada@example.com", "other-pass", "Imposter", user.Device{}); err == nil {
		t.Fatal("duplicate email must be rejected")
	}

	if _, err := db.SignIn(ctx, "ada@example.com", "wrong", user.Device{}); err == nil {
		t.Fatal("wrong password must be rejected")
	} else if err.Error() != "invalid email or password" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	again, err := db.SignIn(ctx, "ada@example.com", "s3cret-pass", user.Device{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Account.UserID != sess.Account.UserID {
		t.Fatal("sign in must resolve the same account")
	}
	if again.Account.LastLoginAt == nil {
		t.Fatal("sign in must record the login time")
	}
}

func TestValidateAndSignOut(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	sess := signUp(t, db, "ada@example.com")

	acc, err := db.Validate(ctx, sess.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Email != "ada@example.com" {
		t.Fatalf("unexpected account: %+v", acc)
	}

	if err := db.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Validate(ctx, sess.AccessToken); err == nil {
		t.Fatal("token must be dead after sign out")
	}
	if err := db.SignOut(ctx, sess.AccessToken); err == nil {
		t.Fatal("second sign out must fail")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	sess := signUp(t, db, "ada@example.com")
	owner := sess.Account.UserID

	dates := []string{"2026-08-10", "2026-08-14", "2026-08-12", "2026-08-14"}
	for i, d := range dates {
		_, err := db.Insert(ctx, metric.Entry{Kind: metric.KindWeight, Value: 80 + float64(i), Date: d, OwnerID: owner})
		if err != nil {
			t.Fatal(err)
		}
	}
	// entries of other users and kinds stay invisible
	if _, err := db.Insert(ctx, metric.Entry{Kind: metric.KindDistance, Value: 5, Date: "2026-08-14", OwnerID: owner}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Insert(ctx, metric.Entry{Kind: metric.KindWeight, Value: 70, Date: "2026-08-14", OwnerID: "someone-else"}); err != nil {
		t.Fatal(err)
	}

	entries, err := db.List(ctx, owner, metric.KindWeight)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	wantDates := []string{"2026-08-14", "2026-08-14", "2026-08-12", "2026-08-10"}
	for i, d := range wantDates {
		if entries[i].Date != d {
			t.Fatalf("entry %d: got date %q, want %q (order must be newest first)", i, entries[i].Date, d)
		}
	}
	// same-day ties break on the later insert
	if entries[0].ID < entries[1].ID {
		t.Fatalf("same-day entries must order by id descending, got %+v", entries[:2])
	}
}

func TestInsertRejectsMalformedDate(t *testing.T) {
	db := memory.New()
	_, err := db.Insert(context.Background(), metric.Entry{Kind: metric.KindWeight, Value: 80, Date: "14/08/2026", OwnerID: "u1"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	ada := signUp(t, db, "ada@example.com")
	eve := signUp(t, db, "eve@example.com")

	created, err := db.Insert(ctx, metric.Entry{Kind: metric.KindWeight, Value: 80, Date: "2026-08-14", OwnerID: ada.Account.UserID})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(context.Background(), created.ID); err == nil {
		t.Fatal("delete without a token must fail")
	}

	eveCtx := backend.WithToken(ctx, eve.AccessToken)
	if err := db.Delete(eveCtx, created.ID); err == nil {
		t.Fatal("delete of another user's entry must fail")
	}

	adaCtx := backend.WithToken(ctx, ada.AccessToken)
	if err := db.Delete(adaCtx, created.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := db.List(ctx, ada.Account.UserID, metric.KindWeight)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entry must be gone, got %+v", entries)
	}
}
