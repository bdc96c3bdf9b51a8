// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, invite, persona, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInviteNotFound     = "INVITE_NOT_FOUND"
	ErrCodeQuotaExhausted     = "QUOTA_EXHAUSTED"
	ErrCodeAlreadyRedeemed    = "ALREADY_REDEEMED"
	ErrCodeSelfRedemption     = "SELF_REDEMPTION"
	ErrCodePersonaNotFound    = "PERSONA_NOT_FOUND"
	ErrCodeEnrichmentInFlight = "ENRICHMENT_IN_FLIGHT"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUnauthorized       = "AUTH_REQUIRED"
	ErrCodeCSRF               = "CSRF_INVALID"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInviteNotFoundError は招待コードが存在しない場合のエラーを生成する。
func NewInviteNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeInviteNotFound,
		Message:  fmt.Sprintf("招待コードが見つかりません: %s", code),
		Category: "invite",
		Action:   "招待コードを正しく入力したか確認してください。",
	}
}

// NewQuotaExhaustedError は招待コードの発行枠を使い切った場合のエラーを生成する。
func NewQuotaExhaustedError() *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExhausted,
		Message:  "招待コードの発行枠を使い切りました。",
		Category: "invite",
		Action:   "発行済みの招待コードを共有してください。追加の発行はできません。",
	}
}

// NewAlreadyRedeemedError は招待コードが使用済みの場合のエラーを生成する。
func NewAlreadyRedeemedError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRedeemed,
		Message:  fmt.Sprintf("招待コードは既に使用されています: %s", code),
		Category: "invite",
		Action:   "招待者に新しい招待コードを依頼してください。",
	}
}

// NewSelfRedemptionError は自分が発行した招待コードを引き換えようとした場合のエラーを生成する。
func NewSelfRedemptionError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfRedemption,
		Message:  "自分が発行した招待コードは使用できません。",
		Category: "validation",
		Action:   "招待コードは他のユーザーに共有してください。",
	}
}

// NewPersonaNotFoundError はペルソナが未作成の場合のエラーを生成する。
func NewPersonaNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePersonaNotFound,
		Message:  "ペルソナが作成されていません。",
		Category: "persona",
		Action:   "オンボーディングでビジネス情報を入力してください。",
	}
}

// NewEnrichmentInFlightError はペルソナ強化が既に実行待ち・実行中の場合のエラーを生成する。
func NewEnrichmentInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeEnrichmentInFlight,
		Message:  "ペルソナの分析は既に進行中です。",
		Category: "persona",
		Action:   "分析が完了するまでお待ちください。",
	}
}

// NewForbiddenError は権限のない操作を行おうとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewUnauthorizedError は未認証・セッション切れの場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーのレスポンス用エラーを生成する。
// 原因はログにのみ記録し、メッセージには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
