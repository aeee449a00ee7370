// Package events records every externally visible state change of the core
// (permission decisions, session lifecycle, security alerts) in a persisted,
// ordered log keyed by subject, and pushes it to registered webhook
// consumers. Consumers that prefer pull read the log through the events
// endpoint with a sequence cursor.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one event variant. The set is closed: Decode rejects
// anything it does not know about.
type Kind string

const (
	KindPermissionApproved  Kind = "permission.approved"
	KindPermissionDenied    Kind = "permission.denied"
	KindSessionStarted      Kind = "session.started"
	KindSessionEnded        Kind = "session.ended"
	KindSecurityAlertRaised Kind = "security.alert_raised"
)

// Payload is implemented by each event variant.
type Payload interface {
	EventKind() Kind
}

type PermissionApproved struct {
	PermissionID     uuid.UUID `json:"permission_id"`
	PatientCode      string    `json:"patient_code"`
	ProfessionalCode string    `json:"professional_code"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func (PermissionApproved) EventKind() Kind { return KindPermissionApproved }

type PermissionDenied struct {
	PermissionID     uuid.UUID `json:"permission_id"`
	PatientCode      string    `json:"patient_code"`
	ProfessionalCode string    `json:"professional_code"`
}

func (PermissionDenied) EventKind() Kind { return KindPermissionDenied }

type SessionStarted struct {
	SessionID    uuid.UUID `json:"session_id"`
	PermissionID uuid.UUID `json:"permission_id"`
	FeeAmount    int64     `json:"fee_amount"`
}

func (SessionStarted) EventKind() Kind { return KindSessionStarted }

type SessionEnded struct {
	SessionID       uuid.UUID `json:"session_id"`
	PermissionID    uuid.UUID `json:"permission_id"`
	DurationMinutes int       `json:"duration_minutes"`
	EarningsID      uuid.UUID `json:"earnings_id"`
}

func (SessionEnded) EventKind() Kind { return KindSessionEnded }

type SecurityAlertRaised struct {
	AlertID   uuid.UUID `json:"alert_id"`
	Severity  string    `json:"severity"`
	AlertType string    `json:"alert_type"`
}

func (SecurityAlertRaised) EventKind() Kind { return KindSecurityAlertRaised }

// Event is one entry of the persisted log. Seq is assigned by the store and
// provides the total order consumers page through.
type Event struct {
	Seq         int64           `json:"seq"`
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	SubjectCode string          `json:"subject_code"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Decode unmarshals the raw payload into its concrete variant.
func Decode(e *Event) (Payload, error) {
	var p Payload
	switch e.Kind {
	case KindPermissionApproved:
		p = &PermissionApproved{}
	case KindPermissionDenied:
		p = &PermissionDenied{}
	case KindSessionStarted:
		p = &SessionStarted{}
	case KindSessionEnded:
		p = &SessionEnded{}
	case KindSecurityAlertRaised:
		p = &SecurityAlertRaised{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return p, nil
}
