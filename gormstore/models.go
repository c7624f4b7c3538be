package gormstore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
)

// jsonColumn stores structured payloads as JSON text, portable across the
// supported SQL backends.
type jsonColumn []byte

func (j jsonColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *jsonColumn) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("invalid type for jsonColumn")
	}
	return nil
}

type gormAccount struct {
	ID             string `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex"`
	Name           string
	PasswordDigest string
	Phone          string
	DateOfBirth    string
	Gender         string
	Avatar         *string
	Active         bool
	CreatedAt      time.Time
	LastLogin      *time.Time
	Medical        jsonColumn `gorm:"type:json"`
	Preferences    jsonColumn `gorm:"type:json"`
}

func (gormAccount) TableName() string { return "accounts" }

type gormSession struct {
	Token     string `gorm:"primaryKey"`
	AccountID string `gorm:"index"`
	Email     string
	Remember  bool
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (gormSession) TableName() string { return "sessions" }

type gormResetToken struct {
	Token     string `gorm:"primaryKey"`
	Email     string `gorm:"index"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (gormResetToken) TableName() string { return "reset_tokens" }

type gormRegistration struct {
	Token     string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Steps     jsonColumn `gorm:"type:json"`
}

func (gormRegistration) TableName() string { return "registrations" }

type gormAuditEvent struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	ActorID   string `gorm:"index"`
	SubjectID string `gorm:"index"`
	Status    string
	Message   string
	CreatedAt time.Time `gorm:"index"`
}

func (gormAuditEvent) TableName() string { return "audit_events" }

func fromAccount(a *account.Account) (*gormAccount, error) {
	row := &gormAccount{
		ID:             a.ID,
		Email:          a.Email,
		Name:           a.Name,
		PasswordDigest: a.PasswordDigest,
		Phone:          a.Phone,
		DateOfBirth:    a.DateOfBirth,
		Gender:         a.Gender,
		Avatar:         a.Avatar,
		Active:         a.Active,
		CreatedAt:      a.CreatedAt,
		LastLogin:      a.LastLogin,
	}
	if a.Medical != nil {
		raw, err := json.Marshal(a.Medical)
		if err != nil {
			return nil, err
		}
		row.Medical = raw
	}
	if a.Preferences != nil {
		raw, err := json.Marshal(a.Preferences)
		if err != nil {
			return nil, err
		}
		row.Preferences = raw
	}
	return row, nil
}

func toAccount(row *gormAccount) (*account.Account, error) {
	a := &account.Account{
		ID:             row.ID,
		Email:          row.Email,
		Name:           row.Name,
		PasswordDigest: row.PasswordDigest,
		Phone:          row.Phone,
		DateOfBirth:    row.DateOfBirth,
		Gender:         row.Gender,
		Avatar:         row.Avatar,
		Active:         row.Active,
		CreatedAt:      row.CreatedAt,
		LastLogin:      row.LastLogin,
	}
	if len(row.Medical) > 0 {
		a.Medical = &account.MedicalProfile{}
		if err := json.Unmarshal(row.Medical, a.Medical); err != nil {
			return nil, err
		}
	}
	if len(row.Preferences) > 0 {
		a.Preferences = &account.Preferences{}
		if err := json.Unmarshal(row.Preferences, a.Preferences); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func fromEvent(e *audit.Event) *gormAuditEvent {
	return &gormAuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		SubjectID: e.SubjectID,
		Status:    e.Status,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
}
