package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/memstore"
)

func TestRecoveryRoundTrip(t *testing.T) {
	store := memstore.New()
	seedAccount(t, store, "jane@example.com", "Old!pass1", true)
	m := NewRecoveryManager(store, store, NewPBKDF2Hasher())

	token, err := m.Initiate(context.Background(), "Jane@Example.com")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if token == nil || token.Token == "" {
		t.Fatal("expected a reset token")
	}
	if got := token.ExpiresAt.Sub(token.CreatedAt); got != time.Hour {
		t.Errorf("expected one-hour TTL, got %v", got)
	}

	if err := m.ResetPassword(context.Background(), token.Token, "New!pass1", "New!pass1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	login := NewLoginManager(store, NewPBKDF2Hasher())
	if _, err := login.Authenticate(context.Background(), "jane@example.com", "New!pass1"); err != nil {
		t.Errorf("expected new password to work, got %v", err)
	}
	if _, err := login.Authenticate(context.Background(), "jane@example.com", "Old!pass1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected old password to be rejected, got %v", err)
	}
}

// An unknown email yields no token and no error, so the HTTP layer can
// answer identically whether or not the account exists.
func TestInitiateUnknownEmail(t *testing.T) {
	m := NewRecoveryManager(memstore.New(), memstore.New(), NewPBKDF2Hasher())

	token, err := m.Initiate(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("expected no error for unknown email, got %v", err)
	}
	if token != nil {
		t.Error("expected no token for unknown email")
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	store := memstore.New()
	seedAccount(t, store, "jane@example.com", "Old!pass1", true)
	m := NewRecoveryManager(store, store, NewPBKDF2Hasher())

	token, err := m.Initiate(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	if err := m.ResetPassword(context.Background(), token.Token, "New!pass1", "New!pass1"); err != nil {
		t.Fatalf("first reset failed: %v", err)
	}
	err = m.ResetPassword(context.Background(), token.Token, "Other!pass1", "Other!pass1")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected second use to fail with ErrInvalidToken, got %v", err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	store := memstore.New()
	seedAccount(t, store, "jane@example.com", "Old!pass1", true)
	m := NewRecoveryManager(store, store, NewPBKDF2Hasher())

	token, err := m.Initiate(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	store.Now = func() time.Time { return time.Now().Add(61 * time.Minute) }

	err = m.ResetPassword(context.Background(), token.Token, "New!pass1", "New!pass1")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected expired token to fail with ErrInvalidToken, got %v", err)
	}

	// The expired attempt consumed the token.
	store.Now = time.Now
	err = m.ResetPassword(context.Background(), token.Token, "New!pass1", "New!pass1")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected consumed token to stay invalid, got %v", err)
	}
}

func TestResetPasswordPolicy(t *testing.T) {
	store := memstore.New()
	seedAccount(t, store, "jane@example.com", "Old!pass1", true)
	m := NewRecoveryManager(store, store, NewPBKDF2Hasher())

	token, err := m.Initiate(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	var v *domain.ValidationError
	err = m.ResetPassword(context.Background(), token.Token, "weakpass", "weakpass")
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError for weak password, got %v", err)
	}

	// Validation runs before consumption, so the token is still live.
	if err := m.ResetPassword(context.Background(), token.Token, "New!pass1", "New!pass1"); err != nil {
		t.Errorf("expected token to survive a failed validation, got %v", err)
	}
}

func TestResetUnknownToken(t *testing.T) {
	m := NewRecoveryManager(memstore.New(), memstore.New(), NewPBKDF2Hasher())

	err := m.ResetPassword(context.Background(), "no-such-token", "New!pass1", "New!pass1")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
