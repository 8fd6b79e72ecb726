package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// AppendHistory records a transition that is not part of a larger write.
func (s *Store) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertHistory(ctx, tx, entry)
	})
	return apperr.Store("append history", err)
}

// ListHistory returns an entity's entries in the order they were written.
func (s *Store) ListHistory(ctx context.Context, entityType model.EntityType, entityID string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, from_state, to_state, actor, occurred_at
		 FROM history_entries WHERE entity_type = ? AND entity_id = ? ORDER BY id`,
		string(entityType), entityID)
	if err != nil {
		return nil, apperr.Store("list history", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var (
			h        model.HistoryEntry
			kind     string
			occurred int64
		)
		if err := rows.Scan(&h.ID, &kind, &h.EntityID, &h.FromState, &h.ToState, &h.Actor, &occurred); err != nil {
			return nil, apperr.Store("scan history", err)
		}
		h.EntityType = model.EntityType(kind)
		h.Timestamp = fromNanos(occurred)
		entries = append(entries, h)
	}
	return entries, apperr.Store("list history", rows.Err())
}

func insertHistory(ctx context.Context, tx *sql.Tx, h model.HistoryEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO history_entries (entity_type, entity_id, from_state, to_state, actor, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(h.EntityType), h.EntityID, h.FromState, h.ToState, h.Actor, toNanos(h.Timestamp))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}
