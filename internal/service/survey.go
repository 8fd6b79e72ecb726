package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// SurveySubmitted is the history state of a stored survey response.
const SurveySubmitted = "submitted"

// SurveyService stores at most one response per participant and survey.
type SurveyService struct {
	store SurveyStore
	opts  Options
}

// NewSurveyService constructs a SurveyService.
func NewSurveyService(store SurveyStore, opts Options) *SurveyService {
	return &SurveyService{store: store, opts: opts.withDefaults()}
}

// CreateSurvey defines a survey for an event.
func (s *SurveyService) CreateSurvey(ctx context.Context, eventID string, req model.CreateSurveyRequest) (*model.Survey, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title", "title is required")
	}
	if len(req.Questions) == 0 {
		return nil, apperr.Validation("questions", "at least one question is required")
	}
	seen := make(map[string]bool, len(req.Questions))
	questions := make([]model.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Text = strings.TrimSpace(q.Text)
		field := fmt.Sprintf("questions[%d]", i)
		switch {
		case q.ID == "":
			return nil, apperr.Validation(field+".id", "question id is required")
		case q.Text == "":
			return nil, apperr.Validation(field+".text", "question text is required")
		case seen[q.ID]:
			return nil, apperr.Validation(field+".id", fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	sv := &model.Survey{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Title:     title,
		Questions: questions,
		CreatedAt: s.opts.Clock(),
	}
	if err := s.store.CreateSurvey(ctx, sv); err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	return sv, nil
}

// Submit stores a participant's answers. A second submission for the same
// survey returns apperr.ErrDuplicate, including when both race: the store's
// unique index decides.
func (s *SurveyService) Submit(ctx context.Context, eventID, surveyID string, req model.SubmitSurveyRequest) (*model.SurveyResponse, error) {
	participantID := strings.TrimSpace(req.ParticipantID)
	if participantID == "" {
		return nil, apperr.Validation("participant_id", "participant_id is required")
	}
	if strings.TrimSpace(surveyID) == "" {
		return nil, apperr.Validation("survey_id", "survey id is required")
	}
	if len(req.Answers) == 0 {
		return nil, apperr.Validation("answers", "answers are required")
	}

	sv, err := s.store.GetSurvey(ctx, eventID, surveyID)
	if err != nil {
		return nil, err
	}
	answers, err := validateAnswers(sv.Questions, req.Answers)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.HasSurveyResponse(ctx, sv.ID, participantID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("survey %s participant %s: %w", sv.ID, participantID, apperr.ErrDuplicate)
	}

	now := s.opts.Clock()
	resp := &model.SurveyResponse{
		ID:            uuid.New().String(),
		SurveyID:      sv.ID,
		ParticipantID: participantID,
		Answers:       answers,
		SubmittedAt:   now,
	}
	entry := model.HistoryEntry{
		EntityType: model.EntitySurveyResponse,
		EntityID:   resp.ID,
		ToState:    SurveySubmitted,
		Actor:      participantID,
		Timestamp:  now,
	}
	if err := s.store.InsertSurveyResponse(ctx, resp, entry); err != nil {
		return nil, err
	}
	s.opts.Metrics.Transitions.WithLabelValues(string(model.EntitySurveyResponse), SurveySubmitted).Inc()
	return resp, nil
}

// Responses lists a survey's responses.
func (s *SurveyService) Responses(ctx context.Context, eventID, surveyID string) ([]model.SurveyResponse, error) {
	if _, err := s.store.GetSurvey(ctx, eventID, surveyID); err != nil {
		return nil, err
	}
	return s.store.ListSurveyResponses(ctx, surveyID)
}

// validateAnswers checks answers against the survey's questions: every
// required question has a non-blank answer, no unknown question ids, no
// question answered twice.
func validateAnswers(questions []model.Question, answers []model.Answer) ([]model.Answer, error) {
	known := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		known[q.ID] = q
	}

	given := make(map[string]string, len(answers))
	out := make([]model.Answer, 0, len(answers))
	for i, a := range answers {
		a.QuestionID = strings.TrimSpace(a.QuestionID)
		a.Value = strings.TrimSpace(a.Value)
		field := fmt.Sprintf("answers[%d]", i)
		if _, ok := known[a.QuestionID]; !ok {
			return nil, apperr.Validation(field+".question_id", fmt.Sprintf("unknown question %q", a.QuestionID))
		}
		if _, dup := given[a.QuestionID]; dup {
			return nil, apperr.Validation(field+".question_id", fmt.Sprintf("question %q answered twice", a.QuestionID))
		}
		given[a.QuestionID] = a.Value
		out = append(out, a)
	}

	for _, q := range questions {
		if q.Required && given[q.ID] == "" {
			return nil, apperr.Validation("answers", fmt.Sprintf("question %q requires an answer", q.ID))
		}
	}
	return out, nil
}
