package service

import (
	"context"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// HistoryService is the read side of the audit log.
type HistoryService struct {
	store HistoryStore
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(store HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// List returns an entity's history in the order it was written.
func (s *HistoryService) List(ctx context.Context, entityType, entityID string) ([]model.HistoryEntry, error) {
	kind, err := model.ParseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("entity_id", "entity id is required")
	}
	return s.store.ListHistory(ctx, kind, entityID)
}
