package flow

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
	"github.com/caregate/caregate/domain"
)

// RegistrationManager drives account creation, both single-shot and through
// the three-step workflow backed by RegistrationStorage.
type RegistrationManager struct {
	accounts   domain.AccountStorage
	workflows  domain.RegistrationStorage
	hasher     domain.Hasher
	generate   domain.TokenGenerator
	ids        domain.IDGenerator
	auditStore audit.Store
}

// NewRegistrationManager creates a RegistrationManager. Account IDs default
// to UUIDs; override with SetIDGenerator.
func NewRegistrationManager(accounts domain.AccountStorage, workflows domain.RegistrationStorage, hasher domain.Hasher) *RegistrationManager {
	store, _ := accounts.(audit.Store)
	return &RegistrationManager{
		accounts:   accounts,
		workflows:  workflows,
		hasher:     hasher,
		generate:   URLToken,
		ids:        uuid.NewString,
		auditStore: store,
	}
}

// SetIDGenerator overrides the account ID source.
func (m *RegistrationManager) SetIDGenerator(g domain.IDGenerator) { m.ids = g }

// SetTokenGenerator overrides the workflow token source.
func (m *RegistrationManager) SetTokenGenerator(g domain.TokenGenerator) { m.generate = g }

// Register validates the full payload and creates the account. The
// duplicate-email check happens inside CreateAccount as one atomic step, so
// two concurrent registrations of the same email yield exactly one account.
func (m *RegistrationManager) Register(ctx context.Context, in *RegistrationInput) (*account.Account, error) {
	if err := ValidateRegistration(in); err != nil {
		return nil, err
	}

	digest, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	acct := &account.Account{
		ID:             m.ids(),
		Email:          account.NormalizeEmail(in.Email),
		Name:           in.FullName,
		PasswordDigest: digest,
		Phone:          in.Phone,
		DateOfBirth:    in.DateOfBirth,
		Gender:         in.Gender,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		Medical:        buildMedicalProfile(&in.MedicalInput),
		Preferences: &account.Preferences{
			Notifications:      emptySlice(in.Notifications),
			Language:           in.Language,
			AIExplanationLevel: in.AIExplanationLevel,
			DataSharing:        emptySlice(in.DataSharing),
			MarketingEmails:    in.MarketingEmails,
		},
	}

	if err := m.accounts.CreateAccount(ctx, acct); err != nil {
		m.record(ctx, acct.Email, "auth.registration.failure", "failure", err.Error())
		return nil, err
	}

	m.record(ctx, acct.Email, "auth.registration.success", "success", "")
	return acct, nil
}

// BeginWorkflow validates step-1 data and stores it under the workflow
// token, minting a fresh token when none is supplied. The email is checked
// for duplicates up front so the user learns before filling two more steps;
// the authoritative check still happens at Complete.
func (m *RegistrationManager) BeginWorkflow(ctx context.Context, token string, in *BasicInfo) (string, error) {
	if err := ValidateBasicInfo(in); err != nil {
		return "", err
	}

	if _, err := m.accounts.GetAccountByEmail(ctx, account.NormalizeEmail(in.Email)); err == nil {
		return "", domain.ErrDuplicateAccount
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	if token == "" {
		var err error
		if token, err = m.generate(TokenBytes); err != nil {
			return "", err
		}
	}

	if err := m.workflows.InitRegistration(ctx, token); err != nil {
		return "", err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	if err := m.workflows.SaveRegistrationStep(ctx, token, account.StepBasicInfo, payload); err != nil {
		return "", m.mapWorkflowErr(err)
	}
	return token, nil
}

// SaveMedicalStep validates and stores step-2 data. The workflow must be
// live; saving never extends the one-hour deadline.
func (m *RegistrationManager) SaveMedicalStep(ctx context.Context, token string, in *MedicalInput) error {
	if err := ValidateMedical(in); err != nil {
		return err
	}
	return m.saveStep(ctx, token, account.StepMedical, in)
}

// SavePreferencesStep validates and stores step-3 data.
func (m *RegistrationManager) SavePreferencesStep(ctx context.Context, token string, in *PreferencesInput) error {
	if err := ValidatePreferences(in); err != nil {
		return err
	}
	return m.saveStep(ctx, token, account.StepPreferences, in)
}

// Workflow returns the accumulated state for the token, or ErrNotFound when
// the workflow is absent or past its deadline.
func (m *RegistrationManager) Workflow(ctx context.Context, token string) (*account.RegistrationState, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return m.workflows.GetRegistration(ctx, token)
}

// Complete materializes the accumulated steps into an account. All three
// steps must be present. The workflow entry is deleted on success; it is
// not merged into the account record.
func (m *RegistrationManager) Complete(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, domain.ErrWorkflowNotFound
	}
	state, err := m.workflows.GetRegistration(ctx, token)
	if err != nil {
		return nil, m.mapWorkflowErr(err)
	}

	var in RegistrationInput
	steps := []struct {
		name string
		dst  any
	}{
		{account.StepBasicInfo, &in.BasicInfo},
		{account.StepMedical, &in.MedicalInput},
		{account.StepPreferences, &in.PreferencesInput},
	}
	v := &domain.ValidationError{}
	for _, s := range steps {
		raw, ok := state.Steps[s.name]
		if !ok {
			v.Add(s.name, "registration step is missing")
			continue
		}
		if err := json.Unmarshal(raw, s.dst); err != nil {
			v.Add(s.name, "registration step is malformed")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	acct, err := m.Register(ctx, &in)
	if err != nil {
		return nil, err
	}

	m.workflows.DeleteRegistration(ctx, token)
	return acct, nil
}

func (m *RegistrationManager) saveStep(ctx context.Context, token, step string, in any) error {
	if token == "" {
		return domain.ErrWorkflowNotFound
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := m.workflows.SaveRegistrationStep(ctx, token, step, payload); err != nil {
		return m.mapWorkflowErr(err)
	}
	return nil
}

func (m *RegistrationManager) mapWorkflowErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTokenExpired) {
		return domain.ErrWorkflowNotFound
	}
	return err
}

func (m *RegistrationManager) record(ctx context.Context, email, eventType, status, message string) {
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

func buildMedicalProfile(in *MedicalInput) *account.MedicalProfile {
	profile := &account.MedicalProfile{
		Height:            in.Height,
		Weight:            in.Weight,
		BMI:               computeBMI(in.Height, in.Weight),
		BloodType:         in.BloodType,
		Medications:       splitLines(in.Medications),
		Allergies:         splitLines(in.Allergies),
		ChronicConditions: emptySlice(in.ChronicConditions),
	}
	if in.EmergencyName != "" {
		profile.Emergency = &account.EmergencyContact{
			Name:         in.EmergencyName,
			Phone:        in.EmergencyPhone,
			Relationship: in.EmergencyRelationship,
		}
	}
	return profile
}

// computeBMI returns weight/(height_m)^2 rounded to one decimal, or nil
// when either measurement is missing. Height arrives in centimeters.
func computeBMI(heightCm, weightKg *float64) *float64 {
	if heightCm == nil || weightKg == nil {
		return nil
	}
	heightM := *heightCm / 100
	bmi := math.Round(*weightKg/(heightM*heightM)*10) / 10
	return &bmi
}

func splitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
