// Package gormstore provides a GORM-backed implementation of the domain
// storage interfaces, for deployments that need accounts and tokens to
// survive a restart. SQLite (pure-Go driver) is the supported backend.
//
// Expiry follows the same lazy policy as the in-memory store: an expired
// session, reset token, or registration workflow is deleted when next
// looked up.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caregate/caregate/account"
	"github.com/caregate/caregate/audit"
	"github.com/caregate/caregate/domain"
)

// Repository implements domain.Storage and audit.Store over a gorm.DB.
type Repository struct {
	db *gorm.DB
}

var (
	_ domain.Storage = (*Repository)(nil)
	_ audit.Store    = (*Repository)(nil)
)

// Open connects to the database and returns a Repository, migrating the
// auth tables unless skipMigrate is set.
func Open(dbType, dsn string, skipMigrate bool) (*Repository, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported db type %q", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	r := NewRepository(db)
	if !skipMigrate {
		if err := r.AutoMigrate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRepository wraps an existing gorm.DB. The connection must be opened
// with TranslateError enabled for duplicate detection to work.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection.
func (r *Repository) DB() *gorm.DB { return r.db }

// AutoMigrate creates or updates the auth tables.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&gormAccount{},
		&gormSession{},
		&gormResetToken{},
		&gormRegistration{},
		&gormAuditEvent{},
	)
}

func (r *Repository) CreateAccount(ctx context.Context, acct *account.Account) error {
	row, err := fromAccount(acct)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateAccount
		}
		return err
	}
	return nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	var row gormAccount
	if err := r.db.WithContext(ctx).First(&row, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toAccount(&row)
}

func (r *Repository) UpdatePassword(ctx context.Context, email, digest string) error {
	return r.updateAccountColumn(ctx, email, "password_digest", digest)
}

func (r *Repository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	return r.updateAccountColumn(ctx, email, "last_login", at)
}

func (r *Repository) SetActive(ctx context.Context, email string, active bool) error {
	return r.updateAccountColumn(ctx, email, "active", active)
}

func (r *Repository) updateAccountColumn(ctx context.Context, email, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&gormAccount{}).Where("email = ?", email).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, s *account.Session) error {
	row := &gormSession{
		Token:     s.Token,
		AccountID: s.AccountID,
		Email:     s.Email,
		Remember:  s.Remember,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) GetSession(ctx context.Context, token string) (*account.Session, error) {
	var row gormSession
	if err := r.db.WithContext(ctx).First(&row, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !time.Now().Before(row.ExpiresAt) {
		r.db.WithContext(ctx).Delete(&gormSession{}, "token = ?", token)
		return nil, domain.ErrNotFound
	}
	return &account.Session{
		Token:     row.Token,
		AccountID: row.AccountID,
		Email:     row.Email,
		Remember:  row.Remember,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Delete(&gormSession{}, "token = ?", token).Error
}

func (r *Repository) SaveResetToken(ctx context.Context, t *account.ResetToken) error {
	row := &gormResetToken{
		Token:     t.Token,
		Email:     t.Email,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	var email string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row gormResetToken
		if err := tx.First(&row, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&gormResetToken{}, "token = ?", token).Error; err != nil {
			return err
		}
		if !time.Now().Before(row.ExpiresAt) {
			return domain.ErrTokenExpired
		}
		email = row.Email
		return nil
	})
	if err != nil {
		return "", err
	}
	return email, nil
}

func (r *Repository) InitRegistration(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row gormRegistration
		err := tx.First(&row, "token = ?", token).Error
		switch {
		case err == nil:
			if time.Since(row.CreatedAt) <= time.Hour {
				return nil
			}
			if err := tx.Delete(&gormRegistration{}, "token = ?", token).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		now := time.Now().UTC()
		steps, _ := json.Marshal(map[string]json.RawMessage{})
		return tx.Create(&gormRegistration{
			Token:     token,
			CreatedAt: now,
			UpdatedAt: now,
			Steps:     steps,
		}).Error
	})
}

func (r *Repository) SaveRegistrationStep(ctx context.Context, token, step string, payload json.RawMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := r.liveRegistration(tx, token)
		if err != nil {
			return err
		}
		steps := make(map[string]json.RawMessage)
		if len(row.Steps) > 0 {
			if err := json.Unmarshal(row.Steps, &steps); err != nil {
				return err
			}
		}
		steps[step] = payload
		raw, err := json.Marshal(steps)
		if err != nil {
			return err
		}
		return tx.Model(&gormRegistration{}).Where("token = ?", token).
			Updates(map[string]any{"steps": jsonColumn(raw), "updated_at": time.Now().UTC()}).Error
	})
}

func (r *Repository) GetRegistration(ctx context.Context, token string) (*account.RegistrationState, error) {
	var state *account.RegistrationState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := r.liveRegistration(tx, token)
		if err != nil {
			return err
		}
		steps := make(map[string]json.RawMessage)
		if len(row.Steps) > 0 {
			if err := json.Unmarshal(row.Steps, &steps); err != nil {
				return err
			}
		}
		state = &account.RegistrationState{
			Token:     row.Token,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Steps:     steps,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *Repository) DeleteRegistration(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Delete(&gormRegistration{}, "token = ?", token).Error
}

// liveRegistration fetches the workflow row, purging it when past the
// one-hour absolute deadline.
func (r *Repository) liveRegistration(tx *gorm.DB, token string) (*gormRegistration, error) {
	var row gormRegistration
	if err := tx.First(&row, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if time.Since(row.CreatedAt) > time.Hour {
		if err := tx.Delete(&gormRegistration{}, "token = ?", token).Error; err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (r *Repository) SaveEvent(ctx context.Context, event *audit.Event) error {
	return r.db.WithContext(ctx).Create(fromEvent(event)).Error
}
