// Package flow implements the authentication flows of the caregate service:
// login, single-shot and multi-step registration, and password recovery.
// Each flow is a manager that composes the storage interfaces from the
// domain package; managers validate input before touching any store and
// translate store-level absent/expired results into the error taxonomy.
package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
	"github.com/caregate/caregate/domain"
)

// LoginManager authenticates credentials against the account store.
type LoginManager struct {
	accounts   domain.AccountStorage
	hasher     domain.Hasher
	auditStore audit.Store
}

// NewLoginManager creates a LoginManager. If the account store also
// implements audit.Store, login outcomes are recorded there.
func NewLoginManager(accounts domain.AccountStorage, hasher domain.Hasher) *LoginManager {
	store, _ := accounts.(audit.Store)
	return &LoginManager{
		accounts:   accounts,
		hasher:     hasher,
		auditStore: store,
	}
}

// Authenticate verifies the email/password pair. Unknown email, digest
// mismatch, and inactive account all collapse into ErrInvalidCredentials so
// the caller cannot probe which emails exist. On success the account's
// last-login time is updated and the account returned.
func (m *LoginManager) Authenticate(ctx context.Context, email, password string) (*account.Account, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}

	email = account.NormalizeEmail(email)

	acct, err := m.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		m.record(ctx, email, "failure", "unknown account")
		return nil, domain.ErrInvalidCredentials
	}

	if !m.hasher.Compare(password, acct.PasswordDigest) {
		m.record(ctx, email, "failure", "digest mismatch")
		return nil, domain.ErrInvalidCredentials
	}

	if !acct.Active {
		m.record(ctx, email, "failure", "inactive account")
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := m.accounts.UpdateLastLogin(ctx, email, now); err != nil {
		return nil, err
	}
	acct.LastLogin = &now

	m.record(ctx, email, "success", "")
	return acct, nil
}

func (m *LoginManager) record(ctx context.Context, email, status, message string) {
	if m.auditStore == nil {
		return
	}
	m.auditStore.SaveEvent(ctx, &audit.Event{
		ID:        uuid.NewString(),
		Type:      "auth.login." + status,
		ActorID:   email,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}
