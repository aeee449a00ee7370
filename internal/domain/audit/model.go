package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action classifies one access-relevant operation. The set is closed.
type Action string

const (
	ActionView                Action = "view"
	ActionConsultation        Action = "consultation"
	ActionDownload            Action = "download"
	ActionExport              Action = "export"
	ActionUnauthorizedAttempt Action = "unauthorized_attempt"
)

var validActions = map[Action]bool{
	ActionView:                true,
	ActionConsultation:        true,
	ActionDownload:            true,
	ActionExport:              true,
	ActionUnauthorizedAttempt: true,
}

// Entry is one immutable audit record. Suspicious is stamped at write time
// by the heuristic and never re-evaluated.
type Entry struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Timestamp       time.Time `db:"ts" json:"timestamp"`
	ActorCode       string    `db:"actor_code" json:"actor_code"`
	SubjectCode     string    `db:"subject_code" json:"subject_code"`
	Action          Action    `db:"action" json:"action"`
	Sections        []string  `db:"sections" json:"sections,omitempty"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Suspicious      bool      `db:"suspicious" json:"suspicious"`
}

// Severity grades a security alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert types raised by the engine.
const (
	AlertUnusualHours    = "unusual_hours"
	AlertHighFrequency   = "high_frequency"
	AlertSensitiveAccess = "sensitive_access"
)

// Alert is raised when a heuristic fires. Its only transition is
// open -> acknowledged, and acknowledging twice is a no-op.
type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Severity       Severity   `db:"severity" json:"severity"`
	AlertType      string     `db:"alert_type" json:"alert_type"`
	Description    string     `db:"description" json:"description"`
	SourceLogID    *uuid.UUID `db:"source_log_id" json:"source_log_id,omitempty"`
	SubjectCode    string     `db:"subject_code" json:"subject_code"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Report aggregates a subject's access history over a window, plus any
// pattern-level alerts the scan raised.
type Report struct {
	SubjectCode   string         `json:"subject_code"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	TotalAccesses int            `json:"total_accesses"`
	UniqueActors  []string       `json:"unique_actors"`
	ByType        map[Action]int `json:"by_type"`
	Alerts        []*Alert       `json:"alerts"`
}
