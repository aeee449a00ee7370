package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink receives every appended event. Delivery failures are the sink's
// problem; the publisher only logs them.
type Sink interface {
	Deliver(ctx context.Context, e *Event) error
}

// Publisher appends events to the log and fans them out to sinks. Publish
// never returns an error: event emission is best-effort relative to the
// operation that produced the event.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger zerolog.Logger
}

func NewPublisher(store Store, logger zerolog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{store: store, sinks: sinks, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, subjectCode string, entityID uuid.UUID, payload Payload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", string(payload.EventKind())).Msg("marshal event payload")
		return
	}

	e := &Event{
		ID:          uuid.New(),
		Kind:        payload.EventKind(),
		SubjectCode: subjectCode,
		EntityID:    entityID,
		Payload:     raw,
		OccurredAt:  time.Now().UTC(),
	}

	if err := p.store.Append(ctx, e); err != nil {
		p.logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("append event")
		return
	}

	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, e); err != nil {
			p.logger.Error().Err(err).
				Str("kind", string(e.Kind)).
				Int64("seq", e.Seq).
				Msg("deliver event")
		}
	}
}
