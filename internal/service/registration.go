package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/notify"
)

// RegistrationConfig tunes the registration flow.
type RegistrationConfig struct {
	// PaymentDueAfter sets the due date of the payment created with each
	// registration.
	PaymentDueAfter time.Duration
	// CompensationTimeout bounds cleanup after a failed registration. It
	// runs on a context detached from the request.
	CompensationTimeout time.Duration
}

// RegisterInput is one registration attempt.
type RegisterInput struct {
	EventID        string
	TierID         string
	Participant    model.ParticipantInfo
	Actor          string
	IdempotencyKey string
}

// RegistrationService drives registrations through
// pending -> confirmed -> cancelled, holding exactly one ticket unit while
// not cancelled.
type RegistrationService struct {
	store RegistrationStore
	alloc Allocator
	idem  Idempotency
	cfg   RegistrationConfig
	opts  Options
}

// NewRegistrationService constructs a RegistrationService. idem may be nil.
func NewRegistrationService(store RegistrationStore, alloc Allocator, idem Idempotency, cfg RegistrationConfig, opts Options) *RegistrationService {
	if cfg.PaymentDueAfter <= 0 {
		cfg.PaymentDueAfter = 7 * 24 * time.Hour
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 5 * time.Second
	}
	return &RegistrationService{
		store: store,
		alloc: alloc,
		idem:  idem,
		cfg:   cfg,
		opts:  opts.withDefaults(),
	}
}

// Register validates the participant, reserves a unit of the tier and
// records a confirmed registration with an unpaid payment.
//
// apperr.ErrSoldOut is returned unchanged when the tier is exhausted. Any
// failure after the reservation releases the unit before returning.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*model.Registration, error) {
	info, err := validateParticipant(in.Participant)
	if err != nil {
		return nil, err
	}
	in.Participant = info
	in.EventID = strings.TrimSpace(in.EventID)
	in.TierID = strings.TrimSpace(in.TierID)
	if in.EventID == "" {
		return nil, apperr.Validation("event_id", "event id is required")
	}
	if in.TierID == "" {
		return nil, apperr.Validation("ticket_id", "ticket_id is required")
	}
	in.Actor = actorOrDefault(in.Actor)

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || s.idem == nil {
		return s.register(ctx, in)
	}

	stored, err := s.idem.Begin(ctx, key)
	switch {
	case errors.Is(err, apperr.ErrInProgress):
		return nil, err
	case err != nil:
		s.opts.Logger.Warn("idempotency store unavailable, registering without it", "error", err)
		return s.register(ctx, in)
	case stored != nil:
		var reg model.Registration
		if err := json.Unmarshal(stored, &reg); err != nil {
			return nil, fmt.Errorf("decode stored registration: %w", err)
		}
		s.opts.Logger.Info("replayed idempotent registration", "registration_id", reg.ID)
		return &reg, nil
	}

	reg, err := s.register(ctx, in)
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err != nil {
		if aerr := s.idem.Abandon(cctx, key); aerr != nil {
			s.opts.Logger.Warn("can't abandon idempotency key", "error", aerr)
		}
		return nil, err
	}
	if data, merr := json.Marshal(reg); merr == nil {
		if cerr := s.idem.Complete(cctx, key, data); cerr != nil {
			s.opts.Logger.Warn("can't store idempotent result", "error", cerr)
		}
	}
	return reg, nil
}

func (s *RegistrationService) register(ctx context.Context, in RegisterInput) (*model.Registration, error) {
	tier, err := s.store.GetTier(ctx, in.TierID)
	if err != nil {
		return nil, err
	}
	if tier.EventID != in.EventID {
		return nil, fmt.Errorf("ticket tier %s of event %s: %w", in.TierID, in.EventID, apperr.ErrNotFound)
	}

	token, err := s.alloc.Reserve(ctx, tier.ID)
	if err != nil {
		return nil, err
	}

	now := s.opts.Clock()
	participant := &model.Participant{
		ID:        uuid.New().String(),
		EventID:   in.EventID,
		Name:      in.Participant.Name,
		Email:     in.Participant.Email,
		CreatedAt: now,
	}
	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       in.EventID,
		TicketTierID:  tier.ID,
		ParticipantID: participant.ID,
		Participant:   in.Participant,
		UnitToken:     token,
		Status:        model.RegistrationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payment := &model.Payment{
		ID:             uuid.New().String(),
		RegistrationID: reg.ID,
		Amount:         tier.Price,
		Status:         model.PaymentUnpaid,
		DueDate:        now.Add(s.cfg.PaymentDueAfter),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	reg.PaymentID = payment.ID
	created := model.HistoryEntry{
		EntityType: model.EntityRegistration,
		EntityID:   reg.ID,
		ToState:    string(model.RegistrationPending),
		Actor:      in.Actor,
		Timestamp:  now,
	}

	if err := s.store.CreateRegistration(ctx, reg, participant, payment, created); err != nil {
		s.releaseAfterFailure(ctx, "persist", tier.ID, token)
		return nil, fmt.Errorf("persist registration: %w", err)
	}
	s.opts.Metrics.Transitions.WithLabelValues(string(model.EntityRegistration), string(model.RegistrationPending)).Inc()

	confirmed, _, err := s.store.TransitionRegistration(ctx, reg.ID, model.RegistrationConfirmed, in.Actor, s.opts.Clock())
	if err != nil {
		s.abandonRegistration(ctx, reg)
		return nil, fmt.Errorf("confirm registration: %w", err)
	}
	s.opts.Metrics.Transitions.WithLabelValues(string(model.EntityRegistration), string(model.RegistrationConfirmed)).Inc()

	s.opts.Logger.Info("registration confirmed",
		"registration_id", confirmed.ID, "event_id", confirmed.EventID, "tier_id", confirmed.TicketTierID)
	s.opts.Notifier.Notify(notify.Message{
		Type:           notify.TypeRegistrationConfirmed,
		EventID:        confirmed.EventID,
		RegistrationID: confirmed.ID,
		PaymentID:      confirmed.PaymentID,
		Email:          confirmed.Participant.Email,
		Status:         string(confirmed.Status),
		At:             confirmed.UpdatedAt,
	})
	return confirmed, nil
}

// Cancel moves a registration to cancelled and returns its unit. Cancelling
// an already cancelled registration succeeds and still retries the release,
// which finishes an earlier cancel whose release did not land.
func (s *RegistrationService) Cancel(ctx context.Context, id, actor string) (*model.Registration, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("registration_id", "registration id is required")
	}

	reg, changed, err := s.store.TransitionRegistration(ctx, id, model.RegistrationCancelled, actorOrDefault(actor), s.opts.Clock())
	if err != nil {
		return nil, err
	}

	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	if err := s.alloc.Release(cctx, reg.TicketTierID, reg.UnitToken); err != nil {
		return nil, fmt.Errorf("release unit of registration %s: %w", id, err)
	}

	if changed {
		s.opts.Metrics.Transitions.WithLabelValues(string(model.EntityRegistration), string(model.RegistrationCancelled)).Inc()
		s.opts.Logger.Info("registration cancelled", "registration_id", id, "event_id", reg.EventID)
		s.opts.Notifier.Notify(notify.Message{
			Type:           notify.TypeRegistrationCancelled,
			EventID:        reg.EventID,
			RegistrationID: reg.ID,
			Email:          reg.Participant.Email,
			Status:         string(reg.Status),
			At:             reg.UpdatedAt,
		})
	}
	return reg, nil
}

// Get returns one registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	return s.store.GetRegistration(ctx, id)
}

// ListByEvent returns all registrations for an event.
func (s *RegistrationService) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListRegistrations(ctx, eventID)
}

func (s *RegistrationService) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
}

// releaseAfterFailure returns a unit whose registration was never written.
// If the release fails too, the reconciler reclaims the unit after its
// grace period.
func (s *RegistrationService) releaseAfterFailure(ctx context.Context, stage, tierID string, token model.UnitToken) {
	s.opts.Metrics.Compensations.WithLabelValues(stage).Inc()
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()

	if err := s.alloc.Release(cctx, tierID, token); err != nil {
		s.opts.Logger.Error("compensating release failed",
			"stage", stage, "tier_id", tierID, "token", token, "error", err)
		return
	}
	s.opts.Logger.Warn("released unit after failed registration", "stage", stage, "tier_id", tierID)
}

// abandonRegistration cancels a pending registration that could not be
// confirmed and returns its unit.
func (s *RegistrationService) abandonRegistration(ctx context.Context, reg *model.Registration) {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()

	if _, _, err := s.store.TransitionRegistration(cctx, reg.ID, model.RegistrationCancelled, ActorSystem, s.opts.Clock()); err != nil {
		s.opts.Logger.Error("can't cancel unconfirmed registration",
			"registration_id", reg.ID, "error", err)
	}
	s.releaseAfterFailure(ctx, "confirm", reg.TicketTierID, reg.UnitToken)
}
