package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/advisorhub/internal/auth"
	"github.com/hitoshi/advisorhub/internal/invite"
	"github.com/hitoshi/advisorhub/internal/middleware"
	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/persona"
	"github.com/hitoshi/advisorhub/internal/user"
)

const (
	testUserID  = "8f14e45f-ceea-4e6b-9b8e-6f1c2d3a4b5c"
	otherUserID = "c9f0f895-fb98-4b91-8a7e-2d1b3c4d5e6f"
)

// withUserID はテスト用にユーザーIDをコンテキストに注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	issueTokenFn     func(ctx context.Context, sessionID string) (*auth.IssuedToken, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) IssueToken(ctx context.Context, sessionID string) (*auth.IssuedToken, error) {
	if m.issueTokenFn != nil {
		return m.issueTokenFn(ctx, sessionID)
	}
	return nil, auth.ErrSessionNotFound
}

type mockProfileService struct {
	getProfileFn func(ctx context.Context, userID string) (*user.Profile, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

type mockInviteService struct {
	createFn func(ctx context.Context, creatorID string) (*invite.CreateResult, error)
	redeemFn func(ctx context.Context, code, redeemerID string) (*model.InviteCode, error)
	listFn   func(ctx context.Context, creatorID string) ([]*model.InviteCode, error)
}

func (m *mockInviteService) CreateInviteCode(ctx context.Context, creatorID string) (*invite.CreateResult, error) {
	return m.createFn(ctx, creatorID)
}

func (m *mockInviteService) RedeemInviteCode(ctx context.Context, code, redeemerID string) (*model.InviteCode, error) {
	return m.redeemFn(ctx, code, redeemerID)
}

func (m *mockInviteService) ListIssuedCodes(ctx context.Context, creatorID string) ([]*model.InviteCode, error) {
	if m.listFn != nil {
		return m.listFn(ctx, creatorID)
	}
	return []*model.InviteCode{}, nil
}

type mockAuditService struct {
	getAuditTrailFn func(ctx context.Context, requesterID string, filter model.AuditFilter) ([]model.InviteEvent, error)
}

func (m *mockAuditService) GetAuditTrail(ctx context.Context, requesterID string, filter model.AuditFilter) ([]model.InviteEvent, error) {
	return m.getAuditTrailFn(ctx, requesterID, filter)
}

type mockPersonaService struct {
	saveFn    func(ctx context.Context, userID string, in persona.Input) (*model.Persona, error)
	getFn     func(ctx context.Context, userID string) (*model.Persona, error)
	requestFn func(ctx context.Context, userID string) (*model.Persona, error)
}

func (m *mockPersonaService) Save(ctx context.Context, userID string, in persona.Input) (*model.Persona, error) {
	return m.saveFn(ctx, userID, in)
}

func (m *mockPersonaService) Get(ctx context.Context, userID string) (*model.Persona, error) {
	return m.getFn(ctx, userID)
}

func (m *mockPersonaService) RequestEnrichment(ctx context.Context, userID string) (*model.Persona, error) {
	return m.requestFn(ctx, userID)
}

type mockStatusGetter struct {
	getStatusFn func(ctx context.Context, userID string) (*model.EnrichmentStatus, error)
}

func (m *mockStatusGetter) GetStatus(ctx context.Context, userID string) (*model.EnrichmentStatus, error) {
	return m.getStatusFn(ctx, userID)
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}
