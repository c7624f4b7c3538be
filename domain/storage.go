// Package domain defines the storage contracts for the caregate
// authentication service.
//
// This package provides the fundamental interfaces that storage
// implementations must fulfill. It abstracts persistence for accounts,
// sessions, reset tokens, and registration workflow state, allowing the
// handlers and flow managers to run against any backend (in-memory, GORM,
// Redis).
//
// # Interfaces
//
//   - AccountStorage: account creation, lookup, and credential updates
//   - SessionStorage: session lifecycle with lazy expiry
//   - ResetTokenStorage: single-use password-reset tokens
//   - RegistrationStorage: multi-step registration workflow state
//   - Storage: composite of all of the above
//
// # Supporting Types
//
//   - Hasher: password hashing and verification
//   - TokenGenerator: unguessable URL-safe token issuance
//   - IDGenerator: account/event identifier generation
//
// Implementations must make read-modify-write sequences atomic per key:
// duplicate-email check plus insert in CreateAccount is one critical
// section, as is lookup plus delete-on-expiry in the token stores.
package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caregate/caregate/account"
)

// Storage combines all persistence operations.
type Storage interface {
	AccountStorage
	SessionStorage
	ResetTokenStorage
	RegistrationStorage
}

// AccountStorage persists accounts keyed by normalized email.
type AccountStorage interface {
	// CreateAccount inserts a new account. It returns ErrDuplicateAccount
	// if the normalized email is already taken; the check and the insert
	// are a single atomic step.
	CreateAccount(ctx context.Context, acct *account.Account) error

	// GetAccountByEmail returns the account for the normalized email, or
	// ErrNotFound.
	GetAccountByEmail(ctx context.Context, email string) (*account.Account, error)

	// UpdatePassword replaces the stored password digest.
	UpdatePassword(ctx context.Context, email, digest string) error

	// UpdateLastLogin records a successful authentication time.
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error

	// SetActive flips the active flag. An inactive account never
	// authenticates.
	SetActive(ctx context.Context, email string, active bool) error
}

// SessionStorage persists sessions keyed by token. Expiry is enforced
// lazily: GetSession deletes and reports absent any entry past its expiry.
type SessionStorage interface {
	CreateSession(ctx context.Context, s *account.Session) error

	// GetSession returns the live session for the token. An expired entry
	// is deleted and ErrNotFound returned; an expired session is never
	// handed back.
	GetSession(ctx context.Context, token string) (*account.Session, error)

	// DeleteSession removes the session. Deleting an absent token is not
	// an error.
	DeleteSession(ctx context.Context, token string) error
}

// ResetTokenStorage persists single-use password-reset tokens.
type ResetTokenStorage interface {
	SaveResetToken(ctx context.Context, t *account.ResetToken) error

	// ConsumeResetToken atomically looks up and deletes the token,
	// returning the target email. It returns ErrTokenExpired for an entry
	// past its expiry (the entry is still deleted) and ErrNotFound for an
	// unknown token. A consumed token can never be consumed again.
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// RegistrationStorage persists in-progress multi-step registration state.
// Lifetime is one hour from creation, not sliding.
type RegistrationStorage interface {
	// InitRegistration creates empty state for the token if none exists.
	// Re-initializing a live token is a no-op.
	InitRegistration(ctx context.Context, token string) error

	// SaveRegistrationStep merges the payload under the step name and
	// bumps UpdatedAt. It returns ErrNotFound if the workflow is absent
	// or expired; an expired entry is purged.
	SaveRegistrationStep(ctx context.Context, token, step string, payload json.RawMessage) error

	// GetRegistration returns the live workflow state, or ErrNotFound.
	// An expired entry is purged.
	GetRegistration(ctx context.Context, token string) (*account.RegistrationState, error)

	// DeleteRegistration removes the workflow. Idempotent.
	DeleteRegistration(ctx context.Context, token string) error
}

// Hasher defines password hashing and verification.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(password, digest string) bool
}

// TokenGenerator returns a URL-safe token with n bytes of entropy from a
// cryptographically secure source.
type TokenGenerator func(n int) (string, error)

// IDGenerator generates a new opaque identifier.
type IDGenerator func() string
