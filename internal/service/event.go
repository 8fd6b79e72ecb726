package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const (
	maxCapacity = 100_000
	maxNameLen  = 200
)

// EventService orchestrates event, tier and participant CRUD.
type EventService struct {
	store EventStore
	cache TierCache
	opts  Options
}

// NewEventService constructs an EventService. cache may be nil.
func NewEventService(store EventStore, cache TierCache, opts Options) *EventService {
	return &EventService{store: store, cache: cache, opts: opts.withDefaults()}
}

// CreateEvent validates the request and stores the event with its tiers.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.Validation("name", "event name is required")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLen {
		return nil, apperr.Validation("name", fmt.Sprintf("event name cannot exceed %d characters", maxNameLen))
	}

	now := s.opts.Clock()
	event := &model.Event{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
	}
	for i, tr := range req.Tiers {
		tier, err := s.newTier(event.ID, tr)
		if err != nil {
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("tiers[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		event.Tiers = append(event.Tiers, *tier)
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.opts.Logger.Info("event created", "event_id", event.ID, "tiers", len(event.Tiers))
	return event, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// GetEvent returns a single event by ID with its tiers.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, apperr.Validation("event_id", "event id is required")
	}
	return s.store.GetEvent(ctx, id)
}

// AddTier adds a ticket tier to an existing event.
func (s *EventService) AddTier(ctx context.Context, eventID string, req model.CreateTierRequest) (*model.TicketTier, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	tier, err := s.newTier(eventID, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTier(ctx, tier); err != nil {
		return nil, fmt.Errorf("create tier: %w", err)
	}
	return tier, nil
}

// ListTiers returns the tiers of an event straight from the store.
func (s *EventService) ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListTiers(ctx, eventID)
}

// GetTier returns one tier of an event, reading through the availability
// cache. Cached remaining capacity may lag by the cache TTL.
func (s *EventService) GetTier(ctx context.Context, eventID, tierID string) (*model.TicketTier, error) {
	if s.cache != nil {
		tier, ok, err := s.cache.GetTier(ctx, tierID)
		if err != nil {
			s.opts.Logger.Warn("availability cache read failed", "tier_id", tierID, "error", err)
		}
		if ok && tier.EventID == eventID {
			return tier, nil
		}
	}

	tier, err := s.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if tier.EventID != eventID {
		return nil, fmt.Errorf("ticket tier %s of event %s: %w", tierID, eventID, apperr.ErrNotFound)
	}

	if s.cache != nil {
		if err := s.cache.SetTier(ctx, tier); err != nil {
			s.opts.Logger.Warn("availability cache write failed", "tier_id", tierID, "error", err)
		}
	}
	return tier, nil
}

// AddParticipant registers a walk-in participant who holds no ticket unit.
func (s *EventService) AddParticipant(ctx context.Context, eventID string, req model.CreateParticipantRequest) (*model.Participant, error) {
	info, err := validateParticipant(model.ParticipantInfo{Name: req.Name, Email: req.Email})
	if err != nil {
		return nil, err
	}
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	p := &model.Participant{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Name:      info.Name,
		Email:     info.Email,
		CreatedAt: s.opts.Clock(),
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

func (s *EventService) newTier(eventID string, req model.CreateTierRequest) (*model.TicketTier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "tier name is required")
	}
	if req.Capacity <= 0 {
		return nil, apperr.Validation("capacity", "capacity must be a positive integer")
	}
	if req.Capacity > maxCapacity {
		return nil, apperr.Validation("capacity", "capacity cannot exceed 100,000")
	}
	if req.Price.IsNegative() {
		return nil, apperr.Validation("price", "price cannot be negative")
	}
	return &model.TicketTier{
		ID:                uuid.New().String(),
		EventID:           eventID,
		Name:              name,
		Price:             req.Price,
		TotalCapacity:     req.Capacity,
		RemainingCapacity: req.Capacity,
		CreatedAt:         s.opts.Clock(),
	}, nil
}

// validateParticipant trims and checks attendee-supplied fields.
func validateParticipant(info model.ParticipantInfo) (model.ParticipantInfo, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Email = strings.TrimSpace(strings.ToLower(info.Email))
	if info.Name == "" {
		return info, apperr.Validation("participant.name", "name is required")
	}
	if utf8.RuneCountInString(info.Name) > maxNameLen {
		return info, apperr.Validation("participant.name", fmt.Sprintf("name cannot exceed %d characters", maxNameLen))
	}
	if info.Email == "" {
		return info, apperr.Validation("participant.email", "email is required")
	}
	if !isValidEmail(info.Email) {
		return info, apperr.Validation("participant.email", "email is not a valid email address")
	}
	return info, nil
}
