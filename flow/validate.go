package flow

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/caregate/caregate/domain"
)

// BasicInfo is the step-1 registration payload (also the identity portion
// of single-shot registration).
type BasicInfo struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
}

// MedicalInput is the step-2 registration payload. Medications and
// allergies arrive as newline-separated text.
type MedicalInput struct {
	Height                *float64 `json:"height"`
	Weight                *float64 `json:"weight"`
	BloodType             string   `json:"blood_type,omitempty"`
	Medications           string   `json:"medications,omitempty"`
	Allergies             string   `json:"allergies,omitempty"`
	ChronicConditions     []string `json:"chronic_conditions"`
	EmergencyName         string   `json:"emergency_name,omitempty"`
	EmergencyPhone        string   `json:"emergency_phone,omitempty"`
	EmergencyRelationship string   `json:"emergency_relationship,omitempty"`
}

// PreferencesInput is the step-3 registration payload.
type PreferencesInput struct {
	Notifications      []string `json:"notifications"`
	Language           string   `json:"language"`
	AIExplanationLevel string   `json:"ai_explanation_level"`
	DataSharing        []string `json:"data_sharing"`
	AcceptTerms        bool     `json:"accept_terms"`
	MarketingEmails    bool     `json:"marketing_emails"`
}

// RegistrationInput is the full single-shot registration payload.
type RegistrationInput struct {
	BasicInfo
	MedicalInput
	PreferencesInput
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

var (
	validGenders       = set("male", "female", "other", "prefer_not_to_say")
	validBloodTypes    = set("A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-")
	validConditions    = set("diabetes", "hypertension", "heart_disease", "asthma", "arthritis", "other")
	validRelationships = set("spouse", "parent", "child", "sibling", "friend", "other")
	validNotifications = set("medication_reminders", "appointment_reminders", "health_tips", "emergency_alerts", "weekly_reports")
	validLanguages     = set("en", "vi", "zh", "ja", "ko")
	validSharing       = set("anonymous_research", "healthcare_providers", "emergency_services")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// ValidateLogin checks a login request: well-formed email and a password of
// at least 6 characters. Login predates the stronger policy, so only the
// minimum length applies.
func ValidateLogin(email, password string) error {
	v := &domain.ValidationError{}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		v.Add("email", "must be a valid email address")
	}
	if len(password) < 6 {
		v.Add("password", "Password must be at least 6 characters long")
	}
	return v.Err()
}

// ValidateBasicInfo checks the step-1 payload and normalizes the name.
func ValidateBasicInfo(in *BasicInfo) error {
	v := &domain.ValidationError{}

	in.FullName = strings.TrimSpace(in.FullName)
	if len([]rune(in.FullName)) < 2 {
		v.Add("full_name", "Full name must be at least 2 characters long")
	} else if !validName(in.FullName) {
		v.Add("full_name", "Full name can only contain letters, spaces, hyphens, and apostrophes")
	}

	if !emailPattern.MatchString(strings.TrimSpace(in.Email)) {
		v.Add("email", "must be a valid email address")
	}

	checkPasswordStrength(v, "password", in.Password)

	if strings.TrimSpace(in.Phone) != "" {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == '+' {
				return r
			}
			return -1
		}, in.Phone)
		if len(cleaned) < 10 || len(cleaned) > 16 {
			v.Add("phone", "Please enter a valid phone number")
		}
	}

	checkDateOfBirth(v, in.DateOfBirth)

	if _, ok := validGenders[in.Gender]; !ok {
		v.Add("gender", "Please select a valid gender option")
	}

	return v.Err()
}

// ValidateMedical checks the step-2 payload.
func ValidateMedical(in *MedicalInput) error {
	v := &domain.ValidationError{}

	if in.Height != nil && (*in.Height < 100 || *in.Height > 250) {
		v.Add("height", "Height must be between 100 and 250 cm")
	}
	if in.Weight != nil && (*in.Weight < 30 || *in.Weight > 300) {
		v.Add("weight", "Weight must be between 30 and 300 kg")
	}
	if in.BloodType != "" && in.BloodType != "unknown" {
		if _, ok := validBloodTypes[in.BloodType]; !ok {
			v.Add("blood_type", "Please select a valid blood type")
		}
	}
	for _, c := range in.ChronicConditions {
		if _, ok := validConditions[c]; !ok {
			v.Add("chronic_conditions", fmt.Sprintf("Invalid chronic condition: %s", c))
		}
	}
	if in.EmergencyRelationship != "" {
		if _, ok := validRelationships[in.EmergencyRelationship]; !ok {
			v.Add("emergency_relationship", "Please select a valid relationship")
		}
	}

	return v.Err()
}

// ValidatePreferences checks the step-3 payload and applies defaults for
// language and explanation level.
func ValidatePreferences(in *PreferencesInput) error {
	v := &domain.ValidationError{}

	for _, n := range in.Notifications {
		if _, ok := validNotifications[n]; !ok {
			v.Add("notifications", fmt.Sprintf("Invalid notification preference: %s", n))
		}
	}

	if in.Language == "" {
		in.Language = "en"
	}
	if _, ok := validLanguages[in.Language]; !ok {
		v.Add("language", "Please select a supported language")
	}

	if in.AIExplanationLevel == "" {
		in.AIExplanationLevel = "basic"
	}
	if in.AIExplanationLevel != "basic" && in.AIExplanationLevel != "advanced" {
		v.Add("ai_explanation_level", "Please select a valid AI explanation level")
	}

	for _, s := range in.DataSharing {
		if _, ok := validSharing[s]; !ok {
			v.Add("data_sharing", fmt.Sprintf("Invalid data sharing preference: %s", s))
		}
	}

	if !in.AcceptTerms {
		v.Add("accept_terms", "You must accept the Terms of Service and Privacy Policy")
	}

	return v.Err()
}

// ValidateRegistration checks the full single-shot payload.
func ValidateRegistration(in *RegistrationInput) error {
	v := &domain.ValidationError{}
	merge(v, ValidateBasicInfo(&in.BasicInfo))
	merge(v, ValidateMedical(&in.MedicalInput))
	merge(v, ValidatePreferences(&in.PreferencesInput))
	return v.Err()
}

// ValidateNewPassword enforces the reset/registration strength policy and
// the confirmation match.
func ValidateNewPassword(newPassword, confirm string) error {
	v := &domain.ValidationError{}
	checkPasswordStrength(v, "new_password", newPassword)
	if newPassword != confirm {
		v.Add("confirm_password", "Passwords do not match")
	}
	return v.Err()
}

func merge(v *domain.ValidationError, err error) {
	if ve, ok := err.(*domain.ValidationError); ok {
		v.Merge(ve)
	}
}

func checkPasswordStrength(v *domain.ValidationError, field, password string) {
	if len(password) < 8 {
		v.Add(field, "Password must be at least 8 characters long")
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !upper {
		v.Add(field, "Password must contain at least one uppercase letter")
	}
	if !lower {
		v.Add(field, "Password must contain at least one lowercase letter")
	}
	if !digit {
		v.Add(field, "Password must contain at least one number")
	}
	if !symbol {
		v.Add(field, "Password must contain at least one special character")
	}
}

func checkDateOfBirth(v *domain.ValidationError, dob string) {
	birth, err := time.Parse("2006-01-02", dob)
	if err != nil {
		v.Add("date_of_birth", "Please enter a valid date in YYYY-MM-DD format")
		return
	}
	now := time.Now()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	if age < 13 {
		v.Add("date_of_birth", "You must be at least 13 years old to register")
	} else if age > 120 {
		v.Add("date_of_birth", "Please enter a valid date of birth")
	}
}

func validName(name string) bool {
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			continue
		}
		return false
	}
	return true
}
