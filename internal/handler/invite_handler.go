package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/advisorhub/internal/invite"
	"github.com/hitoshi/advisorhub/internal/model"
)

// InviteServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InviteServiceInterface interface {
	CreateInviteCode(ctx context.Context, creatorID string) (*invite.CreateResult, error)
	RedeemInviteCode(ctx context.Context, code, redeemerID string) (*model.InviteCode, error)
	ListIssuedCodes(ctx context.Context, creatorID string) ([]*model.InviteCode, error)
}

// AuditTrailServiceInterface は監査ログ取得のインターフェース。
// 要求者が管理者かどうかの判定は実装側で行う。
type AuditTrailServiceInterface interface {
	GetAuditTrail(ctx context.Context, requesterID string, filter model.AuditFilter) ([]model.InviteEvent, error)
}

// InviteHandler は招待台帳のHTTPハンドラー。
type InviteHandler struct {
	service InviteServiceInterface
	audit   AuditTrailServiceInterface
}

// NewInviteHandler はInviteHandlerを生成する。
func NewInviteHandler(service InviteServiceInterface, audit AuditTrailServiceInterface) *InviteHandler {
	return &InviteHandler{service: service, audit: audit}
}

type createInviteResponse struct {
	Code             string `json:"code"`
	AvailableInvites int    `json:"available_invites"`
}

type redeemInviteResponse struct {
	Code       string    `json:"code"`
	CreatorID  string    `json:"creator_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type inviteCodeResponse struct {
	Code      string     `json:"code"`
	CreatedAt time.Time  `json:"created_at"`
	Redeemed  bool       `json:"redeemed"`
	UsedBy    *string    `json:"used_by"`
	UsedAt    *time.Time `json:"used_at"`
}

type inviteEventResponse struct {
	Type       string    `json:"type"`
	Code       string    `json:"code"`
	ActorID    string    `json:"actor_id"`
	CreatorID  string    `json:"creator_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreateInvite は発行枠を1消費して招待コードを発行する。
// POST /api/invites
func (h *InviteHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.CreateInviteCode(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createInviteResponse{
		Code:             result.Code,
		AvailableInvites: result.AvailableInvites,
	})
}

// RedeemInvite は招待コードを引き換える。
// POST /api/invites/{code}/redeem
func (h *InviteHandler) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	redeemed, err := h.service.RedeemInviteCode(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := redeemInviteResponse{Code: redeemed.Code, CreatorID: redeemed.CreatedBy}
	if redeemed.UsedAt != nil {
		resp.RedeemedAt = *redeemed.UsedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListInvites は自分が発行した招待コードを返す。
// GET /api/invites
func (h *InviteHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	codes, err := h.service.ListIssuedCodes(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]inviteCodeResponse, len(codes))
	for i, c := range codes {
		resp[i] = inviteCodeResponse{
			Code:      c.Code,
			CreatedAt: c.CreatedAt,
			Redeemed:  c.IsRedeemed(),
			UsedBy:    c.UsedBy,
			UsedAt:    c.UsedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": resp})
}

// GetAuditTrail は発行・引き換えの監査イベントを返す。
// GET /api/invites/audit?user_id=&event_type=&since=&until=&limit=
func (h *InviteHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	filter, apiErr := parseAuditFilter(r)
	if apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	events, err := h.audit.GetAuditTrail(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]inviteEventResponse, len(events))
	for i, e := range events {
		resp[i] = inviteEventResponse{
			Type:       string(e.Type),
			Code:       e.Code,
			ActorID:    e.ActorID,
			CreatorID:  e.CreatorID,
			OccurredAt: e.OccurredAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": resp})
}

// parseAuditFilter はクエリパラメータを監査ログのフィルタに変換する。
// 値の範囲チェックはサービス層で行う。
func parseAuditFilter(r *http.Request) (model.AuditFilter, *model.APIError) {
	q := r.URL.Query()
	filter := model.AuditFilter{
		UserID:    q.Get("user_id"),
		EventType: model.InviteEventType(q.Get("event_type")),
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return filter, model.NewValidationError("since はRFC3339形式で指定してください")
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return filter, model.NewValidationError("until はRFC3339形式で指定してください")
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit <= 0 {
			return filter, model.NewValidationError("limit は正の整数で指定してください")
		}
	}
	return filter, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
