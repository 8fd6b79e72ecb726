package sqlite

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/logging"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEvent(t *testing.T, s *Store, capacity int) (*model.Event, *model.TicketTier) {
	t.Helper()
	eventID := uuid.NewString()
	e := &model.Event{
		ID:        eventID,
		Name:      "GopherCon",
		CreatedAt: t0,
		Tiers: []model.TicketTier{{
			ID:                uuid.NewString(),
			EventID:           eventID,
			Name:              "General",
			Price:             decimal.RequireFromString("3000"),
			TotalCapacity:     capacity,
			RemainingCapacity: capacity,
			CreatedAt:         t0,
		}},
	}
	require.NoError(t, s.CreateEvent(context.Background(), e))
	return e, &e.Tiers[0]
}

func seedRegistration(t *testing.T, s *Store, e *model.Event, tier *model.TicketTier) (*model.Registration, *model.Payment) {
	t.Helper()
	ctx := context.Background()
	token := model.UnitToken(uuid.NewString())
	require.NoError(t, s.ReserveUnit(ctx, tier.ID, token, t0))

	p := &model.Participant{ID: uuid.NewString(), EventID: e.ID, Name: "Ann", Email: "ann@example.com", CreatedAt: t0}
	reg := &model.Registration{
		ID:            uuid.NewString(),
		EventID:       e.ID,
		TicketTierID:  tier.ID,
		ParticipantID: p.ID,
		Participant:   model.ParticipantInfo{Name: p.Name, Email: p.Email},
		UnitToken:     token,
		Status:        model.RegistrationPending,
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
	pay := &model.Payment{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		Amount:         tier.Price,
		Status:         model.PaymentUnpaid,
		DueDate:        t0.Add(7 * 24 * time.Hour),
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
	entry := model.HistoryEntry{
		EntityType: model.EntityRegistration,
		EntityID:   reg.ID,
		ToState:    string(model.RegistrationPending),
		Actor:      "test",
		Timestamp:  t0,
	}
	require.NoError(t, s.CreateRegistration(ctx, reg, p, pay, entry))
	return reg, pay
}

func TestOpenIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.migrate(context.Background()))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetEventLoadsTiers(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)

	got, err := s.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, got.Tiers, 1)
	assert.Equal(t, tier.ID, got.Tiers[0].ID)
	assert.True(t, tier.Price.Equal(got.Tiers[0].Price))
	assert.Equal(t, t0, got.CreatedAt)

	_, err = s.GetEvent(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserveUnitStopsAtZero(t *testing.T) {
	s := newStore(t)
	_, tier := seedEvent(t, s, 2)
	ctx := context.Background()

	require.NoError(t, s.ReserveUnit(ctx, tier.ID, "u1", t0))
	require.NoError(t, s.ReserveUnit(ctx, tier.ID, "u2", t0))
	assert.ErrorIs(t, s.ReserveUnit(ctx, tier.ID, "u3", t0), apperr.ErrSoldOut)

	got, err := s.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingCapacity)
}

func TestReserveUnitUnknownTier(t *testing.T) {
	s := newStore(t)
	err := s.ReserveUnit(context.Background(), "missing", "u1", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserveUnitConcurrent(t *testing.T) {
	s := newStore(t)
	_, tier := seedEvent(t, s, 3)

	const workers = 20
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		soldOut atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ReserveUnit(context.Background(), tier.ID, model.UnitToken(uuid.NewString()), t0)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, apperr.ErrSoldOut):
				soldOut.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(workers-3), soldOut.Load())
}

func TestReleaseUnit(t *testing.T) {
	s := newStore(t)
	_, tier := seedEvent(t, s, 1)
	ctx := context.Background()

	require.NoError(t, s.ReserveUnit(ctx, tier.ID, "u1", t0))

	released, err := s.ReleaseUnit(ctx, tier.ID, "u1", t0)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = s.ReleaseUnit(ctx, tier.ID, "u1", t0)
	require.NoError(t, err)
	assert.False(t, released, "second release is a no-op")

	got, err := s.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemainingCapacity)
}

func TestReleaseUnitInvariantViolations(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 1)
	ctx := context.Background()

	_, err := s.ReleaseUnit(ctx, tier.ID, "never-issued", t0)
	assert.ErrorIs(t, err, apperr.ErrInvariantViolation)

	other := &model.TicketTier{
		ID: uuid.NewString(), EventID: e.ID, Name: "VIP",
		Price: decimal.NewFromInt(9000), TotalCapacity: 1, RemainingCapacity: 1, CreatedAt: t0,
	}
	require.NoError(t, s.CreateTier(ctx, other))
	require.NoError(t, s.ReserveUnit(ctx, tier.ID, "u1", t0))

	_, err = s.ReleaseUnit(ctx, other.ID, "u1", t0)
	assert.ErrorIs(t, err, apperr.ErrInvariantViolation)

	got, err := s.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingCapacity, "failed release must not change capacity")
}

func TestOrphanedUnits(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	ctx := context.Background()

	reg, _ := seedRegistration(t, s, e, tier)
	require.NoError(t, s.ReserveUnit(ctx, tier.ID, "orphan", t0))

	units, err := s.OrphanedUnits(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, model.UnitToken("orphan"), units[0].Token)

	units, err = s.OrphanedUnits(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, units, "units inside the grace window are left alone")

	_, _, err = s.TransitionRegistration(ctx, reg.ID, model.RegistrationCancelled, "test", t0)
	require.NoError(t, err)

	units, err = s.OrphanedUnits(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, units, 2, "a cancelled registration whose unit was never released is orphaned")
}

func TestTransitionRegistration(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	reg, pay := seedRegistration(t, s, e, tier)
	ctx := context.Background()

	got, changed, err := s.TransitionRegistration(ctx, reg.ID, model.RegistrationConfirmed, "alice", t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.RegistrationConfirmed, got.Status)
	assert.Equal(t, pay.ID, got.PaymentID)

	_, changed, err = s.TransitionRegistration(ctx, reg.ID, model.RegistrationConfirmed, "alice", t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = s.TransitionRegistration(ctx, reg.ID, model.RegistrationCancelled, "alice", t0.Add(3*time.Second))
	require.NoError(t, err)

	_, _, err = s.TransitionRegistration(ctx, reg.ID, model.RegistrationConfirmed, "alice", t0.Add(4*time.Second))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	history, err := s.ListHistory(ctx, model.EntityRegistration, reg.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "", history[0].FromState)
	assert.Equal(t, "pending", history[1].FromState)
	assert.Equal(t, "confirmed", history[1].ToState)
	assert.Equal(t, "alice", history[1].Actor)
	assert.Equal(t, "cancelled", history[2].ToState)
}

func TestTransitionRegistrationNotFound(t *testing.T) {
	s := newStore(t)
	_, _, err := s.TransitionRegistration(context.Background(), "missing", model.RegistrationCancelled, "x", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdatePaymentStatus(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	_, pay := seedRegistration(t, s, e, tier)
	ctx := context.Background()

	got, changed, err := s.UpdatePaymentStatus(ctx, pay.ID, model.PaymentPaid, "cashier", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.PaymentPaid, got.Status)

	_, changed, err = s.UpdatePaymentStatus(ctx, pay.ID, model.PaymentPaid, "cashier", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = s.UpdatePaymentStatus(ctx, pay.ID, model.PaymentUnpaid, "cashier", t0.Add(3*time.Hour))
	require.NoError(t, err)

	history, err := s.ListPaymentHistory(ctx, pay.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.PaymentUnpaid, history[0].OldStatus)
	assert.Equal(t, model.PaymentPaid, history[0].NewStatus)
	assert.Equal(t, model.PaymentPaid, history[1].OldStatus)
	assert.Equal(t, model.PaymentUnpaid, history[1].NewStatus)

	audit, err := s.ListHistory(ctx, model.EntityPayment, pay.ID)
	require.NoError(t, err)
	assert.Len(t, audit, 2)

	_, _, err = s.UpdatePaymentStatus(ctx, "missing", model.PaymentPaid, "cashier", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertAttendanceKeepsFirstCheckIn(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	reg, _ := seedRegistration(t, s, e, tier)
	ctx := context.Background()

	first := t0.Add(time.Hour)
	a, err := s.UpsertAttendance(ctx, model.Attendance{
		ParticipantID: reg.ParticipantID, EventID: e.ID,
		Status: model.AttendancePresent, CheckedInAt: &first,
	}, "door", first)
	require.NoError(t, err)
	require.NotNil(t, a.CheckedInAt)
	assert.Equal(t, first, *a.CheckedInAt)

	a, err = s.UpsertAttendance(ctx, model.Attendance{
		ParticipantID: reg.ParticipantID, EventID: e.ID,
		Status: model.AttendanceAbsent, Note: "left early",
	}, "door", first.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.AttendanceAbsent, a.Status)
	assert.Equal(t, "left early", a.Note)
	require.NotNil(t, a.CheckedInAt)
	assert.Equal(t, first, *a.CheckedInAt)

	later := first.Add(2 * time.Hour)
	a, err = s.UpsertAttendance(ctx, model.Attendance{
		ParticipantID: reg.ParticipantID, EventID: e.ID,
		Status: model.AttendancePresent, CheckedInAt: &later,
	}, "door", later)
	require.NoError(t, err)
	assert.Equal(t, first, *a.CheckedInAt)

	history, err := s.ListHistory(ctx, model.EntityAttendance, model.AttendanceKey(e.ID, reg.ParticipantID))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "", history[0].FromState)
	assert.Equal(t, "present", history[0].ToState)
	assert.Equal(t, "absent", history[1].ToState)
	assert.Equal(t, "present", history[2].ToState)
}

func TestUpsertAttendanceSameStatusNoHistory(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	reg, _ := seedRegistration(t, s, e, tier)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.UpsertAttendance(ctx, model.Attendance{
			ParticipantID: reg.ParticipantID, EventID: e.ID, Status: model.AttendanceAbsent,
		}, "door", t0)
		require.NoError(t, err)
	}

	history, err := s.ListHistory(ctx, model.EntityAttendance, model.AttendanceKey(e.ID, reg.ParticipantID))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestInsertSurveyResponseDuplicate(t *testing.T) {
	s := newStore(t)
	e, _ := seedEvent(t, s, 5)
	ctx := context.Background()

	sv := &model.Survey{
		ID: uuid.NewString(), EventID: e.ID, Title: "Feedback",
		Questions: []model.Question{{ID: "q1", Text: "How was it?", Required: true}},
		CreatedAt: t0,
	}
	require.NoError(t, s.CreateSurvey(ctx, sv))

	got, err := s.GetSurvey(ctx, e.ID, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, sv.Questions, got.Questions)

	submit := func() error {
		r := &model.SurveyResponse{
			ID: uuid.NewString(), SurveyID: sv.ID, ParticipantID: "p1",
			Answers:     []model.Answer{{QuestionID: "q1", Value: "great"}},
			SubmittedAt: t0,
		}
		return s.InsertSurveyResponse(ctx, r, model.HistoryEntry{
			EntityType: model.EntitySurveyResponse, EntityID: r.ID,
			ToState: "submitted", Actor: "p1", Timestamp: t0,
		})
	}
	require.NoError(t, submit())
	assert.ErrorIs(t, submit(), apperr.ErrDuplicate)

	has, err := s.HasSurveyResponse(ctx, sv.ID, "p1")
	require.NoError(t, err)
	assert.True(t, has)

	responses, err := s.ListSurveyResponses(ctx, sv.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "great", responses[0].Answers[0].Value)
}

func TestListRegistrations(t *testing.T) {
	s := newStore(t)
	e, tier := seedEvent(t, s, 5)
	seedRegistration(t, s, e, tier)
	seedRegistration(t, s, e, tier)

	regs, err := s.ListRegistrations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
	for _, r := range regs {
		assert.NotEmpty(t, r.PaymentID)
		assert.NotEmpty(t, r.UnitToken)
	}
}
