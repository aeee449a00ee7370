package consultation

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the session state machine. Transitions are linear:
// Waiting -> Active -> Ended, no reverse edges.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// FeeStatus tracks the two-phase payment attached to a session.
type FeeStatus string

const (
	FeeUnpaid  FeeStatus = "unpaid"
	FeePending FeeStatus = "pending"
	FeePaid    FeeStatus = "paid"
	FeeFailed  FeeStatus = "failed"
)

// Session is one metered consultation under a permission. At most one
// session per permission may be Waiting or Active at a time; Ended rows are
// retained for billing and audit history.
type Session struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	PermissionID     uuid.UUID     `db:"permission_id" json:"permission_id"`
	PatientCode      string        `db:"patient_code" json:"patient_code"`
	ProfessionalCode string        `db:"professional_code" json:"professional_code"`
	Status           SessionStatus `db:"status" json:"status"`
	FeeStatus        FeeStatus     `db:"fee_status" json:"fee_status"`
	FeeAmount        int64         `db:"fee_amount" json:"fee_amount"`
	PaymentIntentID  *string       `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	StartedAt        *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt          *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	DurationMinutes  *int          `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
}

// PayoutStatus tracks whether an earnings record has been paid out to the
// professional.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutProcessed PayoutStatus = "processed"
)

// Earnings is the billing record written exactly once per ended session,
// keyed by session_id so a retried end call cannot double-bill.
type Earnings struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	SessionID        uuid.UUID    `db:"session_id" json:"session_id"`
	ProfessionalCode string       `db:"professional_code" json:"professional_code"`
	GrossAmount      int64        `db:"gross_amount" json:"gross_amount"`
	PlatformFee      int64        `db:"platform_fee" json:"platform_fee"`
	NetAmount        int64        `db:"net_amount" json:"net_amount"`
	PayoutStatus     PayoutStatus `db:"payout_status" json:"payout_status"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt      *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}

// SplitFee divides a gross amount into the platform's cut and the
// professional's net. The fee is rounded half away from zero.
func SplitFee(gross int64, pct float64) (platformFee, net int64) {
	platformFee = int64(math.Round(float64(gross) * pct))
	return platformFee, gross - platformFee
}
