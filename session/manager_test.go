package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/memstore"
)

func testAccount() *account.Account {
	return &account.Account{
		ID:    "acct-1",
		Email: "jane@example.com",
	}
}

func TestIssueAndResolve(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	sess, err := m.Issue(ctx, testAccount(), false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a session token")
	}

	got, err := m.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.AccountID != "acct-1" || got.Email != "jane@example.com" {
		t.Errorf("unexpected session %+v", got)
	}
}

func TestIssueTTL(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	plain, err := m.Issue(ctx, testAccount(), false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if got := plain.ExpiresAt.Sub(plain.CreatedAt); got != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", got)
	}

	remembered, err := m.Issue(ctx, testAccount(), true)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if got := remembered.ExpiresAt.Sub(remembered.CreatedAt); got != 30*24*time.Hour {
		t.Errorf("expected 30d TTL, got %v", got)
	}
}

func TestResolveExpired(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	sess, err := m.Issue(ctx, testAccount(), false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	store.Now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := m.Resolve(ctx, sess.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected expired session to be unauthenticated, got %v", err)
	}

	// The lookup purged the entry; winding the clock back does not revive it.
	store.Now = time.Now
	if _, err := m.Resolve(ctx, sess.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected purged session to stay gone, got %v", err)
	}
}

func TestResolveEmptyAndUnknownToken(t *testing.T) {
	m := NewManager(memstore.New())

	if _, err := m.Resolve(context.Background(), ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for empty token, got %v", err)
	}
	if _, err := m.Resolve(context.Background(), "no-such-token"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for unknown token, got %v", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	sess, err := m.Issue(ctx, testAccount(), false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := m.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := m.Resolve(ctx, sess.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected revoked session to be unauthenticated, got %v", err)
	}

	// Second revoke, unknown token, empty token: all fine.
	if err := m.Revoke(ctx, sess.Token); err != nil {
		t.Errorf("second revoke errored: %v", err)
	}
	if err := m.Revoke(ctx, "no-such-token"); err != nil {
		t.Errorf("unknown-token revoke errored: %v", err)
	}
	if err := m.Revoke(ctx, ""); err != nil {
		t.Errorf("empty-token revoke errored: %v", err)
	}
}
