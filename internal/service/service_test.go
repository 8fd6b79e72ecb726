package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/inventory"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/logging"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/metrics"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/repository/sqlite"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Type)
	}
	return out
}

// stepClock advances one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// memoryIdempotency keeps keys in a map.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func (m *memoryIdempotency) Begin(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string][]byte{}
	}
	if v, ok := m.keys[key]; ok {
		return v, nil
	}
	m.keys[key] = nil
	return nil, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = result
	return nil
}

func (m *memoryIdempotency) Abandon(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testEnv struct {
	store      Store
	metrics    *metrics.Metrics
	notifier   *recordingNotifier
	clock      *stepClock
	events     *EventService
	regs       *RegistrationService
	payments   *PaymentService
	attendance *AttendanceService
	surveys    *SurveyService
	history    *HistoryService
}

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, newSQLiteStore(t), nil)
}

func newTestEnvWith(t *testing.T, store Store, idem Idempotency) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    store,
		metrics:  metrics.Discard(),
		notifier: &recordingNotifier{},
		clock:    &stepClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	opts := Options{
		Logger:   logging.Discard(),
		Metrics:  env.metrics,
		Notifier: env.notifier,
		Clock:    env.clock.Now,
	}
	alloc := inventory.NewAllocator(store,
		inventory.WithLogger(logging.Discard()),
		inventory.WithMetrics(env.metrics),
		inventory.WithClock(env.clock.Now),
	)

	env.events = NewEventService(store, nil, opts)
	env.regs = NewRegistrationService(store, alloc, idem, RegistrationConfig{
		PaymentDueAfter:     48 * time.Hour,
		CompensationTimeout: time.Second,
	}, opts)
	env.payments = NewPaymentService(store, opts)
	env.attendance = NewAttendanceService(store, opts)
	env.surveys = NewSurveyService(store, opts)
	env.history = NewHistoryService(store)
	return env
}

func (e *testEnv) createEvent(t *testing.T, capacity int) (*model.Event, *model.TicketTier) {
	t.Helper()
	ev, err := e.events.CreateEvent(context.Background(), model.CreateEventRequest{
		Name: "Go Conference Tokyo",
		Tiers: []model.CreateTierRequest{
			{Name: "General", Price: decimal.RequireFromString("5000"), Capacity: capacity},
		},
	})
	require.NoError(t, err)
	require.Len(t, ev.Tiers, 1)
	return ev, &ev.Tiers[0]
}

func (e *testEnv) register(ctx context.Context, ev *model.Event, tier *model.TicketTier, email string) (*model.Registration, error) {
	return e.regs.Register(ctx, RegisterInput{
		EventID:     ev.ID,
		TierID:      tier.ID,
		Participant: model.ParticipantInfo{Name: "Attendee", Email: email},
		Actor:       "tester",
	})
}

func (e *testEnv) remaining(t *testing.T, tierID string) int {
	t.Helper()
	tier, err := e.store.GetTier(context.Background(), tierID)
	require.NoError(t, err)
	return tier.RemainingCapacity
}

// failingStore injects errors into selected registration writes.
type failingStore struct {
	Store
	failCreate  bool
	failConfirm bool
}

var errInjected = errors.New("connection reset by peer")

func (f *failingStore) CreateRegistration(ctx context.Context, reg *model.Registration, p *model.Participant, pay *model.Payment, entry model.HistoryEntry) error {
	if f.failCreate {
		return errInjected
	}
	return f.Store.CreateRegistration(ctx, reg, p, pay, entry)
}

func (f *failingStore) TransitionRegistration(ctx context.Context, id string, to model.RegistrationStatus, actor string, at time.Time) (*model.Registration, bool, error) {
	if f.failConfirm && to == model.RegistrationConfirmed {
		return nil, false, errInjected
	}
	return f.Store.TransitionRegistration(ctx, id, to, actor, at)
}
