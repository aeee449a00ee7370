package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memStore is an in-memory Store used by publisher and handler tests.
type memStore struct {
	mu    sync.Mutex
	items []*Event
}

func (m *memStore) Append(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.items) + 1)
	m.items = append(m.items, e)
	return nil
}

func (m *memStore) ListBySubject(_ context.Context, subject string, afterSeq int64, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.items {
		if e.SubjectCode == subject && e.Seq > afterSeq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, afterSeq int64, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.items {
		if e.Seq > afterSeq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestDecodeRoundTrip(t *testing.T) {
	payloads := []Payload{
		&PermissionApproved{PermissionID: uuid.New(), PatientCode: "A1B2C3D4", ProfessionalCode: "DR-BR-1234", ExpiresAt: time.Now().UTC().Truncate(time.Second)},
		&PermissionDenied{PermissionID: uuid.New(), PatientCode: "A1B2C3D4", ProfessionalCode: "DR-BR-1234"},
		&SessionStarted{SessionID: uuid.New(), PermissionID: uuid.New(), FeeAmount: 500},
		&SessionEnded{SessionID: uuid.New(), PermissionID: uuid.New(), DurationMinutes: 42, EarningsID: uuid.New()},
		&SecurityAlertRaised{AlertID: uuid.New(), Severity: "high", AlertType: "high_frequency"},
	}

	for _, p := range payloads {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		e := &Event{Kind: p.EventKind(), Payload: raw}
		decoded, err := Decode(e)
		if err != nil {
			t.Fatalf("%s: %v", p.EventKind(), err)
		}
		if decoded.EventKind() != p.EventKind() {
			t.Errorf("kind mismatch: %s vs %s", decoded.EventKind(), p.EventKind())
		}
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	e := &Event{Kind: "session.rescheduled", Payload: []byte(`{}`)}
	if _, err := Decode(e); err == nil {
		t.Error("unknown kind should fail to decode")
	}
}

type failingSink struct{ calls int }

func (s *failingSink) Deliver(context.Context, *Event) error {
	s.calls++
	return context.DeadlineExceeded
}

func TestPublishSwallowsSinkErrors(t *testing.T) {
	store := &memStore{}
	sink := &failingSink{}
	pub := NewPublisher(store, zerolog.New(os.Stderr), sink)

	pub.Publish(context.Background(), "A1B2C3D4", uuid.New(), &PermissionDenied{})

	if len(store.items) != 1 {
		t.Fatalf("event should be appended despite sink failure, got %d", len(store.items))
	}
	if sink.calls != 1 {
		t.Errorf("sink should be invoked once, got %d", sink.calls)
	}
}

func TestPublishOrdersBySubject(t *testing.T) {
	store := &memStore{}
	pub := NewPublisher(store, zerolog.New(os.Stderr))

	for i := 0; i < 3; i++ {
		pub.Publish(context.Background(), "A1B2C3D4", uuid.New(), &SessionStarted{FeeAmount: int64(i)})
	}
	pub.Publish(context.Background(), "OTHER", uuid.New(), &SessionStarted{})

	got, err := store.ListBySubject(context.Background(), "A1B2C3D4", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events after seq 1, got %d", len(got))
	}
	if got[0].Seq >= got[1].Seq {
		t.Error("events should be ordered by seq")
	}
}

func TestWebhookSignatureAndDelivery(t *testing.T) {
	var received struct {
		sig  string
		kind string
		body []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.sig = r.Header.Get(signatureHeader)
		received.kind = r.Header.Get(eventKindHeader)
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		received.body = buf
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink([]string{srv.URL}, "hook-secret", zerolog.New(os.Stderr))
	e := &Event{ID: uuid.New(), Kind: KindSessionEnded, Payload: []byte(`{}`), OccurredAt: time.Now().UTC()}
	if err := sink.Deliver(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	if received.kind != string(KindSessionEnded) {
		t.Errorf("kind header: got %q", received.kind)
	}
	if received.sig != sink.Sign(received.body) {
		t.Error("signature should verify against delivered body")
	}
}

func TestWebhookGivesUpOnClientError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewWebhookSink([]string{srv.URL}, "hook-secret", zerolog.New(os.Stderr))
	sink.backoff = 0
	e := &Event{ID: uuid.New(), Kind: KindSessionEnded, Payload: []byte(`{}`)}
	if err := sink.Deliver(context.Background(), e); err == nil {
		t.Fatal("expected delivery error")
	}
	if hits != 1 {
		t.Errorf("4xx should not be retried, got %d attempts", hits)
	}
}
