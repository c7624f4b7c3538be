// Package caregate wires the authentication service together with sensible
// defaults: PBKDF2 password hashing, URL-safe random tokens, and UUID
// account IDs. Use the flow, session, and api packages directly for custom
// wiring.
package caregate

import (
	"context"
	"time"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/flow"
	"github.com/caregate/caregate/session"
)

// Default types for convenience.
type Account = account.Account
type Session = account.Session

// NewDefaultLoginManager creates a LoginManager using the default hasher.
func NewDefaultLoginManager(accounts domain.AccountStorage) *flow.LoginManager {
	return flow.NewLoginManager(accounts, flow.NewPBKDF2Hasher())
}

// NewDefaultRegistrationManager creates a RegistrationManager using the
// default hasher.
func NewDefaultRegistrationManager(accounts domain.AccountStorage, workflows domain.RegistrationStorage) *flow.RegistrationManager {
	return flow.NewRegistrationManager(accounts, workflows, flow.NewPBKDF2Hasher())
}

// NewDefaultRecoveryManager creates a RecoveryManager using the default
// hasher.
func NewDefaultRecoveryManager(accounts domain.AccountStorage, tokens domain.ResetTokenStorage) *flow.RecoveryManager {
	return flow.NewRecoveryManager(accounts, tokens, flow.NewPBKDF2Hasher())
}

// NewDefaultSessionManager creates a session Manager.
func NewDefaultSessionManager(store domain.SessionStorage) *session.Manager {
	return session.NewManager(store)
}

// SeedDemoAccount inserts the development demo account with its legacy
// unsalted digest, exercising the dual-format verify path. A duplicate is
// returned as-is from the store; callers seeding twice can ignore it.
func SeedDemoAccount(ctx context.Context, accounts domain.AccountStorage) error {
	return accounts.CreateAccount(ctx, &account.Account{
		ID:             "demo-user-123",
		Email:          "demo@healthcare.ai",
		Name:           "Demo User",
		PasswordDigest: flow.LegacyDigest("demo123"),
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	})
}
