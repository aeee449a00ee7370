// Package payment defines the port to the external payment processor and a
// local simulator for development. The real card-network integration lives
// behind the Processor interface; the core only sees intent creation and a
// confirm/decline outcome.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrDeclined reports that the processor refused the charge. The session
// stays payable and the caller may retry with a fresh confirmation.
var ErrDeclined = errors.New("payment declined")

// IntentStatus is the processor-side state of a payment intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentConfirmed IntentStatus = "confirmed"
	IntentFailed    IntentStatus = "failed"
)

// Intent is a two-phase payment: created when a consultation starts, and
// confirmed (or declined) before the session activates.
type Intent struct {
	ID        string       `json:"id"`
	SessionID uuid.UUID    `json:"session_id"`
	Amount    int64        `json:"amount"`
	Status    IntentStatus `json:"status"`
}

// Processor is the external payment collaborator.
type Processor interface {
	CreateIntent(ctx context.Context, sessionID uuid.UUID, amount int64) (*Intent, error)
	Confirm(ctx context.Context, intentID string) (*Intent, error)
}

// Simulator is an in-memory Processor for development and tests. Charges
// succeed unless a decline is queued.
type Simulator struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	declines int
}

func NewSimulator() *Simulator {
	return &Simulator{intents: make(map[string]*Intent)}
}

// DeclineNext queues n future confirmations to be declined.
func (s *Simulator) DeclineNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declines += n
}

func (s *Simulator) CreateIntent(_ context.Context, sessionID uuid.UUID, amount int64) (*Intent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := &Intent{
		ID:        "pi_" + uuid.New().String(),
		SessionID: sessionID,
		Amount:    amount,
		Status:    IntentPending,
	}
	s.intents[intent.ID] = intent
	return intent, nil
}

func (s *Simulator) Confirm(_ context.Context, intentID string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("unknown intent %q", intentID)
	}
	if intent.Status == IntentConfirmed {
		// Confirming twice is harmless.
		return intent, nil
	}
	if s.declines > 0 {
		s.declines--
		intent.Status = IntentFailed
		return intent, ErrDeclined
	}
	intent.Status = IntentConfirmed
	return intent, nil
}
