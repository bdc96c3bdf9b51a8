package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/persona"
)

const testPersonaID = "45c48cce-2e2d-4fbd-b7a3-9e1c0f2a3b4d"

func testPersona(state model.EnrichmentState) *model.Persona {
	return &model.Persona{
		ID:               testPersonaID,
		UserID:           testUserID,
		BusinessName:     "Acme Bakery",
		Industry:         "Food",
		WebsiteURL:       "https://acme.example.com",
		EnrichmentStatus: state,
		UpdatedAt:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPersonaHandler_GetEnrichmentStatus_NoPersonaHasNullFields(t *testing.T) {
	tracker := &mockStatusGetter{
		getStatusFn: func(ctx context.Context, userID string) (*model.EnrichmentStatus, error) {
			return &model.EnrichmentStatus{Status: model.EnrichmentNoPersona}, nil
		},
	}
	h := NewPersonaHandler(nil, tracker)

	w := httptest.NewRecorder()
	h.GetEnrichmentStatus(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/persona/enrichment-status", nil), testUserID))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if raw["status"] != "no_persona" {
		t.Errorf("status = %v, want no_persona", raw["status"])
	}
	for _, field := range []string{"persona_id", "level", "completeness", "updated_at"} {
		v, ok := raw[field]
		if !ok {
			t.Errorf("field %q should be present", field)
		} else if v != nil {
			t.Errorf("field %q = %v, want null", field, v)
		}
	}
}

func TestPersonaHandler_GetEnrichmentStatus_Completed(t *testing.T) {
	level := model.EnrichmentLevelStrategic
	completeness := 80
	updatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	personaID := testPersonaID
	tracker := &mockStatusGetter{
		getStatusFn: func(ctx context.Context, userID string) (*model.EnrichmentStatus, error) {
			return &model.EnrichmentStatus{
				Status:       model.EnrichmentCompleted,
				PersonaID:    &personaID,
				Level:        &level,
				Completeness: &completeness,
				UpdatedAt:    &updatedAt,
			}, nil
		},
	}
	h := NewPersonaHandler(nil, tracker)

	w := httptest.NewRecorder()
	h.GetEnrichmentStatus(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/persona/enrichment-status", nil), testUserID))

	var body enrichmentStatusResponse
	decodeJSON(t, w, &body)
	if body.Status != "completed" || *body.PersonaID != testPersonaID || *body.Level != "strategic" || *body.Completeness != 80 {
		t.Errorf("body = %+v", body)
	}
	if !body.UpdatedAt.Equal(updatedAt) {
		t.Errorf("updated_at = %v, want %v", body.UpdatedAt, updatedAt)
	}
}

func TestPersonaHandler_GetEnrichmentStatus_InvalidUser(t *testing.T) {
	tracker := &mockStatusGetter{
		getStatusFn: func(ctx context.Context, userID string) (*model.EnrichmentStatus, error) {
			return nil, model.NewValidationError("ユーザーIDの形式が不正です")
		},
	}
	h := NewPersonaHandler(nil, tracker)

	w := httptest.NewRecorder()
	h.GetEnrichmentStatus(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/persona/enrichment-status", nil), "not-a-uuid"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPersonaHandler_SavePersona(t *testing.T) {
	var gotInput persona.Input
	svc := &mockPersonaService{
		saveFn: func(ctx context.Context, userID string, in persona.Input) (*model.Persona, error) {
			gotInput = in
			return testPersona(model.EnrichmentPending), nil
		},
	}
	h := NewPersonaHandler(svc, nil)

	body := `{"business_name":"Acme Bakery","industry":"Food","audience":"locals","goals":"grow","website_url":"acme.example.com"}`
	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/persona", strings.NewReader(body)), testUserID)
	w := httptest.NewRecorder()

	h.SavePersona(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	want := persona.Input{BusinessName: "Acme Bakery", Industry: "Food", Audience: "locals", Goals: "grow", WebsiteURL: "acme.example.com"}
	if gotInput != want {
		t.Errorf("input = %+v, want %+v", gotInput, want)
	}
	var resp personaResponse
	decodeJSON(t, w, &resp)
	if resp.ID != testPersonaID || resp.Enrichment.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}
}

func TestPersonaHandler_SavePersona_RejectsBadBody(t *testing.T) {
	called := false
	svc := &mockPersonaService{
		saveFn: func(ctx context.Context, userID string, in persona.Input) (*model.Persona, error) {
			called = true
			return nil, nil
		},
	}
	h := NewPersonaHandler(svc, nil)

	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/persona", strings.NewReader(`{"business_name":1}`)), testUserID)
	w := httptest.NewRecorder()

	h.SavePersona(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called")
	}
}

func TestPersonaHandler_GetPersona_NotFound(t *testing.T) {
	svc := &mockPersonaService{
		getFn: func(ctx context.Context, userID string) (*model.Persona, error) {
			return nil, model.NewPersonaNotFoundError()
		},
	}
	h := NewPersonaHandler(svc, nil)

	w := httptest.NewRecorder()
	h.GetPersona(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/persona", nil), testUserID))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPersonaHandler_RequestEnrichment(t *testing.T) {
	tests := []struct {
		name       string
		requestFn  func(ctx context.Context, userID string) (*model.Persona, error)
		wantStatus int
	}{
		{
			name: "queued",
			requestFn: func(ctx context.Context, userID string) (*model.Persona, error) {
				return testPersona(model.EnrichmentPending), nil
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "already running",
			requestFn: func(ctx context.Context, userID string) (*model.Persona, error) {
				return nil, model.NewEnrichmentInFlightError()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "no persona",
			requestFn: func(ctx context.Context, userID string) (*model.Persona, error) {
				return nil, model.NewPersonaNotFoundError()
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPersonaHandler(&mockPersonaService{requestFn: tt.requestFn}, nil)

			w := httptest.NewRecorder()
			h.RequestEnrichment(w, withUserID(httptest.NewRequest(http.MethodPost, "/api/persona/enrich", nil), testUserID))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusAccepted {
				var body enrichmentStatusResponse
				decodeJSON(t, w, &body)
				if body.Status != "pending" {
					t.Errorf("status = %q, want pending", body.Status)
				}
			}
		})
	}
}
