package flow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
	"github.com/caregate/caregate/domain"
)

// ResetTokenTTL is the lifetime of a password-reset token.
const ResetTokenTTL = time.Hour

// RecoveryManager drives the forgot-password / reset-password flow.
type RecoveryManager struct {
	accounts   domain.AccountStorage
	tokens     domain.ResetTokenStorage
	hasher     domain.Hasher
	generate   domain.TokenGenerator
	ttl        time.Duration
	auditStore audit.Store
}

// NewRecoveryManager creates a RecoveryManager with the one-hour token TTL.
func NewRecoveryManager(accounts domain.AccountStorage, tokens domain.ResetTokenStorage, hasher domain.Hasher) *RecoveryManager {
	store, _ := accounts.(audit.Store)
	return &RecoveryManager{
		accounts:   accounts,
		tokens:     tokens,
		hasher:     hasher,
		generate:   URLToken,
		ttl:        ResetTokenTTL,
		auditStore: store,
	}
}

// SetTokenGenerator overrides the token source.
func (m *RecoveryManager) SetTokenGenerator(g domain.TokenGenerator) {
	m.generate = g
}

// Initiate issues a reset token for the account, if one exists. When the
// email is unknown it returns (nil, nil): the caller must respond
// identically in both cases so account existence cannot be probed.
func (m *RecoveryManager) Initiate(ctx context.Context, email string) (*account.ResetToken, error) {
	email = account.NormalizeEmail(email)

	if _, err := m.accounts.GetAccountByEmail(ctx, email); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	value, err := m.generate(TokenBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token := &account.ResetToken{
		Token:     value,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.tokens.SaveResetToken(ctx, token); err != nil {
		return nil, err
	}

	m.record(ctx, email, "auth.recovery.initiate", "success", "")
	return token, nil
}

// ResetPassword consumes the token and rewrites the account's digest. The
// new password must satisfy the strength policy and match its confirmation.
// Unknown and expired tokens both surface as ErrInvalidToken.
func (m *RecoveryManager) ResetPassword(ctx context.Context, token, newPassword, confirm string) error {
	if err := ValidateNewPassword(newPassword, confirm); err != nil {
		return err
	}

	email, err := m.tokens.ConsumeResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTokenExpired) {
			return domain.ErrInvalidToken
		}
		return err
	}

	digest, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// The account may have been removed since the token was issued; the
	// token is spent either way.
	if err := m.accounts.UpdatePassword(ctx, email, digest); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	m.record(ctx, email, "auth.recovery.success", "success", "")
	return nil
}

func (m *RecoveryManager) record(ctx context.Context, email, eventType, status, message string) {
	if m.auditStore == nil {
		return
	}
	m.auditStore.SaveEvent(ctx, &audit.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: email,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}
