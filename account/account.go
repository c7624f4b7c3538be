// Package account provides the core data types for the caregate
// authentication service.
//
// This package defines accounts, sessions, reset tokens, and in-progress
// registration state. These are plain data types; lifecycle rules (expiry,
// single-use consumption, uniqueness) are enforced by the storage
// implementations and the flow managers that operate on them.
//
// # Email Normalization
//
// Email is the lookup key for accounts. Every caller that keys a store by
// email must pass it through NormalizeEmail first, otherwise the same person
// can end up with two accounts (or none reachable):
//
//	acct, err := store.GetAccountByEmail(ctx, account.NormalizeEmail(input))
package account

import (
	"encoding/json"
	"strings"
	"time"
)

// Account represents a registered user identity.
type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"` // normalized lowercase, unique
	Name           string     `json:"name"`
	PasswordDigest string     `json:"-"`
	Phone          string     `json:"phone,omitempty"`
	DateOfBirth    string     `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Gender         string     `json:"gender,omitempty"`
	Avatar         *string    `json:"avatar"`
	Active         bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login"`

	Medical     *MedicalProfile `json:"medical_profile,omitempty"`
	Preferences *Preferences    `json:"preferences,omitempty"`
}

// Profile is the public view of an account returned to authenticated
// callers. It never carries the password digest.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Avatar    *string    `json:"avatar"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

// Profile returns the public view of the account.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Avatar:    a.Avatar,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
	}
}

// MedicalProfile holds the health sub-profile captured at registration.
// The auth layer treats it as an opaque payload beyond validation.
type MedicalProfile struct {
	Height            *float64          `json:"height,omitempty"` // cm
	Weight            *float64          `json:"weight,omitempty"` // kg
	BMI               *float64          `json:"bmi,omitempty"`
	BloodType         string            `json:"blood_type,omitempty"`
	Medications       []string          `json:"medications"`
	Allergies         []string          `json:"allergies"`
	ChronicConditions []string          `json:"chronic_conditions"`
	Emergency         *EmergencyContact `json:"emergency_contact,omitempty"`
}

// EmergencyContact identifies who to call on the account holder's behalf.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// Preferences holds notification and data-sharing choices.
type Preferences struct {
	Notifications      []string `json:"notifications"`
	Language           string   `json:"language"`
	AIExplanationLevel string   `json:"ai_explanation_level"`
	DataSharing        []string `json:"data_sharing"`
	MarketingEmails    bool     `json:"marketing_emails"`
}

// Session represents an authenticated session keyed by its bearer token.
// ExpiresAt is always CreatedAt plus the TTL selected by Remember; a session
// past its expiry is treated as absent and purged on next lookup.
type Session struct {
	Token     string    `json:"-"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Remember  bool      `json:"remember"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ResetToken is a single-use credential proving control of a password-reset
// request. Consumption deletes it; a stale entry is never honored.
type ResetToken struct {
	Token     string    `json:"-"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Registration step names for RegistrationState.Steps.
const (
	StepBasicInfo   = "step1"
	StepMedical     = "step2"
	StepPreferences = "step3"
)

// RegistrationState accumulates multi-step registration form data before an
// Account exists. Lifetime is one hour measured from CreatedAt; saving a
// step updates UpdatedAt but never extends the deadline.
type RegistrationState struct {
	Token     string                     `json:"-"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Steps     map[string]json.RawMessage `json:"steps"`
}

// Expired reports whether the workflow is past its absolute deadline.
func (s *RegistrationState) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > time.Hour
}

// NormalizeEmail lowercases and trims an email address for use as a store key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
