package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockTokenValidator struct {
	validateFn func(token string) (string, error)
}

func (m *mockTokenValidator) ValidateToken(token string) (string, error) {
	return m.validateFn(token)
}

func sessionRepoWith(sessionID, userID string) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == sessionID {
				return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
}

func acceptToken(valid, userID string) *mockTokenValidator {
	return &mockTokenValidator{
		validateFn: func(token string) (string, error) {
			if token == valid {
				return userID, nil
			}
			return "", errors.New("invalid token")
		},
	}
}

// captureAuth は認証後のユーザーIDと認証方式を記録するハンドラーを返す。
func captureAuth(userID, method *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*userID, _ = UserIDFromContext(r.Context())
		*method = AuthMethodFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// --- テスト ---

func TestSessionMiddleware_ValidCookie_InjectsUserID(t *testing.T) {
	var userID, method string
	handler := NewSessionMiddleware(sessionRepoWith("valid-session-id", "user-123"), nil)(captureAuth(&userID, &method))

	req := httptest.NewRequest(http.MethodGet, "/api/invites", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want %q", userID, "user-123")
	}
	if method != AuthMethodCookie {
		t.Errorf("auth method = %q, want %q", method, AuthMethodCookie)
	}
}

func TestSessionMiddleware_ValidBearer_InjectsUserID(t *testing.T) {
	var userID, method string
	mw := NewSessionMiddleware(&mockSessionRepository{}, acceptToken("good-token", "user-456"))
	handler := mw(captureAuth(&userID, &method))

	req := httptest.NewRequest(http.MethodGet, "/api/persona/enrichment-status", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
	if method != AuthMethodBearer {
		t.Errorf("auth method = %q, want %q", method, AuthMethodBearer)
	}
}

func TestSessionMiddleware_BearerTakesPrecedenceOverCookie(t *testing.T) {
	var userID, method string
	mw := NewSessionMiddleware(sessionRepoWith("cookie-session", "cookie-user"), acceptToken("good-token", "token-user"))
	handler := mw(captureAuth(&userID, &method))

	req := httptest.NewRequest(http.MethodGet, "/api/invites", nil)
	req.Header.Set("Authorization", "bearer good-token")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "cookie-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if userID != "token-user" {
		t.Errorf("userID = %q, want %q", userID, "token-user")
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenValidator
		setup  func(r *http.Request)
	}{
		{
			name:  "no credentials",
			setup: func(r *http.Request) {},
		},
		{
			name: "empty cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_id", Value: ""})
			},
		},
		{
			name: "unknown session",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_id", Value: "expired-session"})
			},
		},
		{
			name:   "invalid bearer token",
			tokens: acceptToken("good-token", "user-1"),
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer forged")
			},
		},
		{
			name: "bearer without validator",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good-token")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mw := NewSessionMiddleware(sessionRepoWith("valid-session", "user-1"), tt.tokens)
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/invites", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if called {
				t.Error("handler should not be called")
			}
			if body := decodeErrorBody(t, w); body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestSessionMiddleware_RepositoryError_Returns401(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	handler := NewSessionMiddleware(repo, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/invites", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "some-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithUserID(context.Background(), "user-abc")
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-abc" {
		t.Errorf("userID = %q, want %q", userID, "user-abc")
	}
	if got := AuthMethodFromContext(ctx); got != AuthMethodCookie {
		t.Errorf("auth method = %q, want %q", got, AuthMethodCookie)
	}
}
