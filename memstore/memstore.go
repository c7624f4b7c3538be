// Package memstore provides the in-memory default implementation of the
// domain storage interfaces.
//
// Each map is guarded by its own mutex; read-modify-write sequences
// (duplicate-email check plus insert, lookup plus delete-on-expiry) run as
// one critical section. Expired sessions, reset tokens, and registration
// workflows are pruned lazily on lookup — there is no background sweeper,
// so an expired entry lingers until next accessed. That is a deliberate
// simplicity/latency trade-off.
//
// The zero Now field means real time; tests inject a fake clock.
package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
	"github.com/caregate/caregate/domain"
)

// Store holds all auth state in process-wide maps.
type Store struct {
	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time

	muAccounts sync.RWMutex
	accounts   map[string]*account.Account // keyed by normalized email

	muSessions sync.Mutex
	sessions   map[string]*account.Session

	muResets sync.Mutex
	resets   map[string]*account.ResetToken

	muRegs        sync.Mutex
	registrations map[string]*account.RegistrationState

	muEvents sync.Mutex
	events   []*audit.Event
}

var (
	_ domain.Storage = (*Store)(nil)
	_ audit.Store    = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		Now:           time.Now,
		accounts:      make(map[string]*account.Account),
		sessions:      make(map[string]*account.Session),
		resets:        make(map[string]*account.ResetToken),
		registrations: make(map[string]*account.RegistrationState),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateAccount inserts the account, failing with ErrDuplicateAccount when
// the email is taken. Check and insert are one critical section.
func (s *Store) CreateAccount(ctx context.Context, acct *account.Account) error {
	s.muAccounts.Lock()
	defer s.muAccounts.Unlock()
	if _, ok := s.accounts[acct.Email]; ok {
		return domain.ErrDuplicateAccount
	}
	cp := *acct
	s.accounts[acct.Email] = &cp
	return nil
}

// GetAccountByEmail returns a copy of the stored account.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	s.muAccounts.RLock()
	defer s.muAccounts.RUnlock()
	acct, ok := s.accounts[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *Store) UpdatePassword(ctx context.Context, email, digest string) error {
	s.muAccounts.Lock()
	defer s.muAccounts.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		return domain.ErrNotFound
	}
	acct.PasswordDigest = digest
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	s.muAccounts.Lock()
	defer s.muAccounts.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		return domain.ErrNotFound
	}
	acct.LastLogin = &at
	return nil
}

func (s *Store) SetActive(ctx context.Context, email string, active bool) error {
	s.muAccounts.Lock()
	defer s.muAccounts.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		return domain.ErrNotFound
	}
	acct.Active = active
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *account.Session) error {
	s.muSessions.Lock()
	defer s.muSessions.Unlock()
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

// GetSession returns the live session, purging an expired entry under the
// same lock so a lookup never races a delete.
func (s *Store) GetSession(ctx context.Context, token string) (*account.Session, error) {
	s.muSessions.Lock()
	defer s.muSessions.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, token)
		return nil, domain.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.muSessions.Lock()
	defer s.muSessions.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) SaveResetToken(ctx context.Context, t *account.ResetToken) error {
	s.muResets.Lock()
	defer s.muResets.Unlock()
	cp := *t
	s.resets[t.Token] = &cp
	return nil
}

// ConsumeResetToken deletes the entry whether it is consumed or found
// expired; a reset token is strictly single-use.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	s.muResets.Lock()
	defer s.muResets.Unlock()
	t, ok := s.resets[token]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(s.resets, token)
	if t.Expired(s.now()) {
		return "", domain.ErrTokenExpired
	}
	return t.Email, nil
}

func (s *Store) InitRegistration(ctx context.Context, token string) error {
	s.muRegs.Lock()
	defer s.muRegs.Unlock()
	if st, ok := s.registrations[token]; ok && !st.Expired(s.now()) {
		return nil
	}
	now := s.now()
	s.registrations[token] = &account.RegistrationState{
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     make(map[string]json.RawMessage),
	}
	return nil
}

// SaveRegistrationStep merges the payload. The one-hour deadline counts
// from CreatedAt; saving a step does not reset it.
func (s *Store) SaveRegistrationStep(ctx context.Context, token, step string, payload json.RawMessage) error {
	s.muRegs.Lock()
	defer s.muRegs.Unlock()
	st, ok := s.registrations[token]
	if !ok {
		return domain.ErrNotFound
	}
	if st.Expired(s.now()) {
		delete(s.registrations, token)
		return domain.ErrNotFound
	}
	st.Steps[step] = payload
	st.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, token string) (*account.RegistrationState, error) {
	s.muRegs.Lock()
	defer s.muRegs.Unlock()
	st, ok := s.registrations[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if st.Expired(s.now()) {
		delete(s.registrations, token)
		return nil, domain.ErrNotFound
	}
	cp := *st
	cp.Steps = make(map[string]json.RawMessage, len(st.Steps))
	for k, v := range st.Steps {
		cp.Steps[k] = v
	}
	return &cp, nil
}

func (s *Store) DeleteRegistration(ctx context.Context, token string) error {
	s.muRegs.Lock()
	defer s.muRegs.Unlock()
	delete(s.registrations, token)
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, event *audit.Event) error {
	s.muEvents.Lock()
	defer s.muEvents.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// Events returns a snapshot of recorded audit events.
func (s *Store) Events() []*audit.Event {
	s.muEvents.Lock()
	defer s.muEvents.Unlock()
	out := make([]*audit.Event, len(s.events))
	copy(out, s.events)
	return out
}
