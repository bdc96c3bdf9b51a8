package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/advisorhub/internal/enrichment"
	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/persona"
)

// PersonaServiceInterface はペルソナハンドラーが必要とするサービスインターフェース。
type PersonaServiceInterface interface {
	Save(ctx context.Context, userID string, in persona.Input) (*model.Persona, error)
	Get(ctx context.Context, userID string) (*model.Persona, error)
	RequestEnrichment(ctx context.Context, userID string) (*model.Persona, error)
}

// EnrichmentStatusGetter はエンリッチメント状態の取得インターフェース。
type EnrichmentStatusGetter interface {
	GetStatus(ctx context.Context, userID string) (*model.EnrichmentStatus, error)
}

// PersonaHandler はペルソナとエンリッチメント状態のHTTPハンドラー。
type PersonaHandler struct {
	service PersonaServiceInterface
	tracker EnrichmentStatusGetter
}

// NewPersonaHandler はPersonaHandlerを生成する。
func NewPersonaHandler(service PersonaServiceInterface, tracker EnrichmentStatusGetter) *PersonaHandler {
	return &PersonaHandler{service: service, tracker: tracker}
}

type savePersonaRequest struct {
	BusinessName string `json:"business_name"`
	Industry     string `json:"industry"`
	Audience     string `json:"audience"`
	Goals        string `json:"goals"`
	WebsiteURL   string `json:"website_url"`
}

type personaResponse struct {
	ID           string                   `json:"id"`
	BusinessName string                   `json:"business_name"`
	Industry     string                   `json:"industry"`
	Audience     string                   `json:"audience"`
	Goals        string                   `json:"goals"`
	WebsiteURL   string                   `json:"website_url"`
	Enrichment   enrichmentStatusResponse `json:"enrichment"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// enrichmentStatusResponse はエンリッチメント状態のレスポンス。
// ペルソナが無い場合、status以外はnullになる。
type enrichmentStatusResponse struct {
	Status       string     `json:"status"`
	PersonaID    *string    `json:"persona_id"`
	Level        *string    `json:"level"`
	Completeness *int       `json:"completeness"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// GetEnrichmentStatus は現在のエンリッチメント状態を返す。
// クライアントはstatusがpendingまたはprocessingの間、5秒間隔でポーリングする。
// GET /api/persona/enrichment-status
func (h *PersonaHandler) GetEnrichmentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.tracker.GetStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnrichmentStatusResponse(status))
}

// GetPersona は自分のペルソナを返す。
// GET /api/persona
func (h *PersonaHandler) GetPersona(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonaResponse(p))
}

// SavePersona はオンボーディングの回答からペルソナを作成・更新し、エンリッチメントを予約する。
// PUT /api/persona
func (h *PersonaHandler) SavePersona(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req savePersonaRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	p, err := h.service.Save(r.Context(), userID, persona.Input{
		BusinessName: req.BusinessName,
		Industry:     req.Industry,
		Audience:     req.Audience,
		Goals:        req.Goals,
		WebsiteURL:   req.WebsiteURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonaResponse(p))
}

// RequestEnrichment はエンリッチメントの再実行を予約する。
// POST /api/persona/enrich
func (h *PersonaHandler) RequestEnrichment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.RequestEnrichment(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toPersonaResponse(p).Enrichment)
}

func toPersonaResponse(p *model.Persona) personaResponse {
	return personaResponse{
		ID:           p.ID,
		BusinessName: p.BusinessName,
		Industry:     p.Industry,
		Audience:     p.Audience,
		Goals:        p.Goals,
		WebsiteURL:   p.WebsiteURL,
		Enrichment:   toEnrichmentStatusResponse(enrichment.StatusOf(p)),
		UpdatedAt:    p.UpdatedAt,
	}
}

func toEnrichmentStatusResponse(s *model.EnrichmentStatus) enrichmentStatusResponse {
	resp := enrichmentStatusResponse{
		Status:       string(s.Status),
		PersonaID:    s.PersonaID,
		Completeness: s.Completeness,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Level != nil {
		level := string(*s.Level)
		resp.Level = &level
	}
	return resp
}
