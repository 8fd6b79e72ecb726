package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/inventory"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/logging"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := service.Options{Logger: logging.Discard()}
	alloc := inventory.NewAllocator(store, inventory.WithLogger(logging.Discard()))
	h := New(Services{
		Events:        service.NewEventService(store, nil, opts),
		Registrations: service.NewRegistrationService(store, alloc, nil, service.RegistrationConfig{}, opts),
		Payments:      service.NewPaymentService(store, opts),
		Attendance:    service.NewAttendanceService(store, opts),
		Surveys:       service.NewSurveyService(store, opts),
		History:       service.NewHistoryService(store),
	}, logging.Discard())

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "organizer")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createEvent(t *testing.T, srv *httptest.Server, capacity int) (eventID, tierID string) {
	t.Helper()
	var ev model.Event
	status := do(t, srv, http.MethodPost, "/events", map[string]any{
		"name": "Gophers Meetup",
		"tiers": []map[string]any{
			{"name": "General", "price": "3000", "capacity": capacity},
		},
	}, &ev)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, ev.Tiers, 1)
	return ev.ID, ev.Tiers[0].ID
}

func registerBody(tierID, email string) map[string]any {
	return map[string]any{
		"ticket_id":   tierID,
		"participant": map[string]string{"name": "Attendee", "email": email},
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRegister_SoldOutScenario(t *testing.T) {
	srv := newTestServer(t)
	eventID, tierID := createEvent(t, srv, 5)

	var first model.RegisterResponse
	for i := 0; i < 5; i++ {
		var resp model.RegisterResponse
		status := do(t, srv, http.MethodPost, "/events/"+eventID+"/register",
			registerBody(tierID, fmt.Sprintf("user%d@example.com", i)), &resp)
		require.Equal(t, http.StatusCreated, status)
		assert.True(t, resp.Success)
		assert.Equal(t, resp.RegistrationID, resp.Registration.ID)
		if i == 0 {
			first = resp
		}
	}

	var soldOut model.ErrorResponse
	status := do(t, srv, http.MethodPost, "/events/"+eventID+"/register",
		registerBody(tierID, "late@example.com"), &soldOut)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "sold out", soldOut.Error)
	assert.Equal(t, "チケットが売り切れです", soldOut.Message)

	var cancelled model.DataResponse
	status = do(t, srv, http.MethodPost, "/registrations/"+first.RegistrationID+"/cancel", nil, &cancelled)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, cancelled.Success)

	status = do(t, srv, http.MethodPost, "/events/"+eventID+"/register",
		registerBody(tierID, "late@example.com"), nil)
	assert.Equal(t, http.StatusCreated, status)

	var tiers []model.TicketTier
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/events/"+eventID+"/tiers", nil, &tiers))
	require.Len(t, tiers, 1)
	assert.Equal(t, 0, tiers[0].RemainingCapacity)

	var regs []model.Registration
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/events/"+eventID+"/registrations", nil, &regs))
	assert.Len(t, regs, 6)
}

func TestRegister_Errors(t *testing.T) {
	srv := newTestServer(t)
	eventID, tierID := createEvent(t, srv, 1)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"bad email", "/events/" + eventID + "/register", registerBody(tierID, "not-an-email"), http.StatusBadRequest},
		{"missing ticket", "/events/" + eventID + "/register", registerBody("", "a@example.com"), http.StatusBadRequest},
		{"unknown tier", "/events/" + eventID + "/register", registerBody("nope", "a@example.com"), http.StatusNotFound},
		{"tier of other event", "/events/other/register", registerBody(tierID, "a@example.com"), http.StatusNotFound},
		{"unknown field", "/events/" + eventID + "/register", map[string]any{"ticket": tierID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body model.ErrorResponse
			assert.Equal(t, tt.status, do(t, srv, http.MethodPost, tt.path, tt.body, &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestCancel_UnknownRegistration(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/registrations/missing/cancel", nil, nil))
}

func TestUpdatePayment(t *testing.T) {
	srv := newTestServer(t)
	eventID, tierID := createEvent(t, srv, 2)

	var reg model.RegisterResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/events/"+eventID+"/register",
		registerBody(tierID, "payer@example.com"), &reg))
	paymentID := reg.Registration.PaymentID
	require.NotEmpty(t, paymentID)

	path := "/events/" + eventID + "/payments/" + paymentID
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, path, map[string]string{"status": "refunded"}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, path, map[string]string{"status": ""}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPut, "/events/"+eventID+"/payments/missing",
		map[string]string{"status": "paid"}, nil))

	var updated struct {
		Success bool          `json:"success"`
		Data    model.Payment `json:"data"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, path, map[string]string{"status": "paid"}, &updated))
	assert.True(t, updated.Success)
	assert.Equal(t, model.PaymentPaid, updated.Data.Status)

	var history []model.PaymentHistory
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/payments/"+paymentID+"/history", nil, &history))
	require.Len(t, history, 1)
	assert.Equal(t, model.PaymentUnpaid, history[0].OldStatus)
	assert.Equal(t, model.PaymentPaid, history[0].NewStatus)

	var entries []model.HistoryEntry
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/history/payment/"+paymentID, nil, &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "organizer", entries[len(entries)-1].Actor)
}

func TestSetAttendance(t *testing.T) {
	srv := newTestServer(t)
	eventID, _ := createEvent(t, srv, 1)

	var p model.Participant
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/events/"+eventID+"/participants",
		map[string]string{"name": "Walk In", "email": "walkin@example.com"}, &p))

	path := "/events/" + eventID + "/attendance/" + p.ID
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, path, map[string]string{"status": ""}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, path, map[string]string{"status": "late"}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPut, "/events/"+eventID+"/attendance/ghost",
		map[string]string{"status": "present"}, nil))

	var resp struct {
		Success bool             `json:"success"`
		Data    model.Attendance `json:"data"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, path, map[string]string{"status": "present"}, &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data.CheckedInAt)
}

func TestSubmitSurvey_ConcurrentDuplicates(t *testing.T) {
	srv := newTestServer(t)
	eventID, _ := createEvent(t, srv, 1)

	var sv model.Survey
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/events/"+eventID+"/surveys", map[string]any{
		"title":     "Feedback",
		"questions": []map[string]any{{"id": "q1", "text": "How was it?", "required": true}},
	}, &sv))

	path := "/events/" + eventID + "/surveys/" + sv.ID + "/responses"
	body := map[string]any{
		"participant_id": "p-1",
		"answers":        []map[string]string{{"question_id": "q1", "value": "great"}},
	}

	const attempts = 3
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = do(t, srv, http.MethodPost, path, body, nil)
		}()
	}
	wg.Wait()

	var ok, conflict int
	for _, s := range statuses {
		switch s {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflict)

	var dup model.ErrorResponse
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, path, body, &dup))
	assert.Equal(t, "already responded", dup.Error)

	var responses []model.SurveyResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path, nil, &responses))
	assert.Len(t, responses, 1)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost,
		"/events/"+eventID+"/surveys/missing/responses", body, nil))
}

func TestHistory_UnknownEntityType(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/history/event/abc", nil, nil))
}

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return fmt.Errorf("connection refused") }

	rec := httptest.NewRecorder()
	Ready(map[string]CheckFunc{"store": ok})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"store":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Ready(map[string]CheckFunc{"store": ok, "redis": down})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"store":"ok","redis":"connection refused"}`, rec.Body.String())
}
