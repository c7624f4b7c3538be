// Package audit provides structured security event records for the auth
// service. Flow managers emit events for login, registration, and
// password-recovery outcomes when the wired storage also implements Store.
package audit

import (
	"context"
	"time"
)

// Event represents a structured security event record.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`     // e.g. "auth.login.success"
	ActorID   string    `json:"actor_id"` // the identity performing the action
	SubjectID string    `json:"subject_id"`
	Status    string    `json:"status"` // "success", "failure"
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for persisting audit events.
type Store interface {
	SaveEvent(ctx context.Context, event *Event) error
}
