package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// CreateSurvey inserts a survey with its questions.
func (s *Store) CreateSurvey(ctx context.Context, sv *model.Survey) error {
	questions, err := json.Marshal(sv.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO surveys (id, event_id, title, questions, created_at) VALUES (?, ?, ?, ?, ?)`,
		sv.ID, sv.EventID, sv.Title, string(questions), toNanos(sv.CreatedAt))
	return apperr.Store("create survey", err)
}

// GetSurvey returns a survey of eventID.
func (s *Store) GetSurvey(ctx context.Context, eventID, surveyID string) (*model.Survey, error) {
	var (
		sv        model.Survey
		questions string
		created   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, title, questions, created_at FROM surveys WHERE id = ? AND event_id = ?`,
		surveyID, eventID).Scan(&sv.ID, &sv.EventID, &sv.Title, &questions, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("survey %s: %w", surveyID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get survey", err)
	}
	if err := json.Unmarshal([]byte(questions), &sv.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of survey %s: %w", surveyID, err)
	}
	sv.CreatedAt = fromNanos(created)
	return &sv, nil
}

// HasSurveyResponse reports whether participantID already answered surveyID.
func (s *Store) HasSurveyResponse(ctx context.Context, surveyID, participantID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM survey_responses WHERE survey_id = ? AND participant_id = ?`,
		surveyID, participantID).Scan(&n)
	if err != nil {
		return false, apperr.Store("check survey response", err)
	}
	return n > 0, nil
}

// InsertSurveyResponse stores a response and its history entry. A second
// response for the same (survey, participant) returns apperr.ErrDuplicate.
func (s *Store) InsertSurveyResponse(ctx context.Context, r *model.SurveyResponse, entry model.HistoryEntry) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO survey_responses (id, survey_id, participant_id, answers, submitted_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.SurveyID, r.ParticipantID, string(answers), toNanos(r.SubmittedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("survey %s participant %s: %w", r.SurveyID, r.ParticipantID, apperr.ErrDuplicate)
			}
			return fmt.Errorf("insert survey response: %w", err)
		}
		return insertHistory(ctx, tx, entry)
	})
	return apperr.Store("insert survey response", err)
}

// ListSurveyResponses returns a survey's responses in submission order.
func (s *Store) ListSurveyResponses(ctx context.Context, surveyID string) ([]model.SurveyResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, survey_id, participant_id, answers, submitted_at
		 FROM survey_responses WHERE survey_id = ? ORDER BY submitted_at, id`, surveyID)
	if err != nil {
		return nil, apperr.Store("list survey responses", err)
	}
	defer rows.Close()

	var out []model.SurveyResponse
	for rows.Next() {
		var (
			r         model.SurveyResponse
			answers   string
			submitted int64
		)
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.ParticipantID, &answers, &submitted); err != nil {
			return nil, apperr.Store("scan survey response", err)
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of response %s: %w", r.ID, err)
		}
		r.SubmittedAt = fromNanos(submitted)
		out = append(out, r)
	}
	return out, apperr.Store("list survey responses", rows.Err())
}
