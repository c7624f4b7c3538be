// Package session provides session lifecycle management for the caregate
// auth service.
//
// Sessions are opaque bearer tokens mapped to an authenticated account with
// a fixed expiry window: 24 hours by default, 30 days when the user asked to
// be remembered. Expiry is enforced lazily by the backing store — an expired
// entry is purged on next lookup, never silently extended.
//
//	manager := session.NewManager(store)
//	sess, err := manager.Issue(ctx, acct, remember)
//	// later, on each request
//	sess, err := manager.Resolve(ctx, cookieToken)
package session

import (
	"context"
	"time"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/flow"
)

// Session TTLs per the remember flag.
const (
	DefaultTTL  = 24 * time.Hour
	RememberTTL = 30 * 24 * time.Hour
)

// Manager issues, resolves, and revokes sessions on top of a
// domain.SessionStorage.
type Manager struct {
	store    domain.SessionStorage
	generate domain.TokenGenerator
}

// NewManager creates a session Manager backed by the given store.
func NewManager(store domain.SessionStorage) *Manager {
	return &Manager{store: store, generate: flow.URLToken}
}

// SetTokenGenerator overrides the token source.
func (m *Manager) SetTokenGenerator(g domain.TokenGenerator) {
	m.generate = g
}

// TTL returns the expiry window for the remember flag.
func (m *Manager) TTL(remember bool) time.Duration {
	if remember {
		return RememberTTL
	}
	return DefaultTTL
}

// Issue creates a session for the account and returns it with its token.
// Expiry is always creation time plus the TTL for the remember flag.
func (m *Manager) Issue(ctx context.Context, acct *account.Account, remember bool) (*account.Session, error) {
	token, err := m.generate(flow.TokenBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &account.Session{
		Token:     token,
		AccountID: acct.ID,
		Email:     acct.Email,
		Remember:  remember,
		CreatedAt: now,
		ExpiresAt: now.Add(m.TTL(remember)),
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve returns the live session for the token. Absent and expired
// sessions both yield ErrUnauthenticated; the store purges expired entries
// as part of the lookup.
func (m *Manager) Resolve(ctx context.Context, token string) (*account.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	s, err := m.store.GetSession(ctx, token)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	return s, nil
}

// Revoke deletes the session. Revoking an absent or already-revoked token
// is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.DeleteSession(ctx, token)
}
