// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/advisorhub/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// authMethodContextKey は認証方式（cookie / bearer）を格納するためのキー。
	authMethodContextKey = contextKey("auth_method")
)

// 認証方式
const (
	AuthMethodCookie = "cookie"
	AuthMethodBearer = "bearer"
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// TokenValidator はアクセストークンの検証インターフェース。auth.TokenIssuer が満たす。
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// NewSessionMiddleware はリクエストを認証し、ユーザーIDをコンテキストに注入するミドルウェアを返す。
// Authorization: Bearer ヘッダーがあればアクセストークンで、なければセッションCookieで認証する。
// tokensがnilの場合はCookieのみ受け付ける。未認証リクエストには401を返す。
func NewSessionMiddleware(sessionFinder SessionFinder, tokens TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if tokens == nil {
					writeUnauthorized(w)
					return
				}
				userID, err := tokens.ValidateToken(token)
				if err != nil {
					slog.Warn("access token rejected",
						slog.String("error", err.Error()),
					)
					writeUnauthorized(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(contextWithAuth(r.Context(), userID, AuthMethodBearer)))
				return
			}

			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w)
				return
			}
			if session == nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(r.Context(), session.UserID, AuthMethodCookie)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがBearer形式でない場合はfalseを返す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

func contextWithAuth(ctx context.Context, userID, method string) context.Context {
	recordUserIDForLog(ctx, userID)
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, authMethodContextKey, method)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// AuthMethodFromContext はリクエストの認証方式を返す。未認証の場合は空文字。
func AuthMethodFromContext(ctx context.Context) string {
	method, _ := ctx.Value(authMethodContextKey).(string)
	return method
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return contextWithAuth(ctx, userID, AuthMethodCookie)
}
