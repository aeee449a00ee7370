package payment

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestSimulatorConfirmFlow(t *testing.T) {
	p := NewSimulator()
	ctx := context.Background()

	intent, err := p.CreateIntent(ctx, uuid.New(), 500)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Status != IntentPending {
		t.Errorf("new intent should be pending, got %s", intent.Status)
	}

	confirmed, err := p.Confirm(ctx, intent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != IntentConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}

	// Double confirm is a no-op.
	again, err := p.Confirm(ctx, intent.ID)
	if err != nil || again.Status != IntentConfirmed {
		t.Errorf("double confirm should succeed, got %v / %s", err, again.Status)
	}
}

func TestSimulatorDecline(t *testing.T) {
	p := NewSimulator()
	ctx := context.Background()
	p.DeclineNext(1)

	intent, _ := p.CreateIntent(ctx, uuid.New(), 500)
	failed, err := p.Confirm(ctx, intent.ID)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if failed.Status != IntentFailed {
		t.Errorf("expected failed intent, got %s", failed.Status)
	}

	// The next confirmation attempt goes through.
	retried, err := p.Confirm(ctx, intent.ID)
	if err != nil || retried.Status != IntentConfirmed {
		t.Errorf("retry should confirm, got %v / %s", err, retried.Status)
	}
}

func TestSimulatorRejectsNonPositiveAmount(t *testing.T) {
	p := NewSimulator()
	if _, err := p.CreateIntent(context.Background(), uuid.New(), 0); err == nil {
		t.Error("zero amount should be rejected")
	}
}

type faultyProcessor struct{ err error }

func (f *faultyProcessor) CreateIntent(context.Context, uuid.UUID, int64) (*Intent, error) {
	return nil, f.err
}

func (f *faultyProcessor) Confirm(context.Context, string) (*Intent, error) {
	return nil, f.err
}

func TestBreakerOpensAfterConsecutiveFaults(t *testing.T) {
	inner := &faultyProcessor{err: errors.New("provider timeout")}
	b := NewBreakerProcessor(inner, zerolog.New(os.Stderr))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := b.CreateIntent(ctx, uuid.New(), 500); err == nil {
			t.Fatal("expected provider error")
		}
	}

	// Circuit is now open; faults surface as declines without hitting the provider.
	_, err := b.CreateIntent(ctx, uuid.New(), 500)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("open circuit should map to ErrDeclined, got %v", err)
	}
}

type decliningProcessor struct{ calls int }

func (d *decliningProcessor) CreateIntent(_ context.Context, sessionID uuid.UUID, amount int64) (*Intent, error) {
	return &Intent{ID: "pi_x", SessionID: sessionID, Amount: amount, Status: IntentPending}, nil
}

func (d *decliningProcessor) Confirm(context.Context, string) (*Intent, error) {
	d.calls++
	return &Intent{ID: "pi_x", Status: IntentFailed}, ErrDeclined
}

func TestBreakerTreatsDeclineAsSuccess(t *testing.T) {
	inner := &decliningProcessor{}
	b := NewBreakerProcessor(inner, zerolog.New(os.Stderr))
	ctx := context.Background()

	// Far more declines than the trip threshold; the breaker must stay closed
	// and keep forwarding to the provider.
	for i := 0; i < 20; i++ {
		if _, err := b.Confirm(ctx, "pi_x"); !errors.Is(err, ErrDeclined) {
			t.Fatalf("expected decline, got %v", err)
		}
	}
	if inner.calls != 20 {
		t.Errorf("declines should not trip the breaker: provider saw %d of 20 calls", inner.calls)
	}
}
