package model

import "time"

// EnrichmentState はペルソナ強化ジョブの状態を表す。
type EnrichmentState string

const (
	// EnrichmentNoPersona はペルソナが未作成でジョブが存在しない状態。
	EnrichmentNoPersona EnrichmentState = "no_persona"
	// EnrichmentPending はジョブがキューに入り、未開始の状態。
	EnrichmentPending EnrichmentState = "pending"
	// EnrichmentProcessing はジョブが実行中の状態。
	EnrichmentProcessing EnrichmentState = "processing"
	// EnrichmentCompleted はジョブが成功して終了した状態（終端）。
	EnrichmentCompleted EnrichmentState = "completed"
	// EnrichmentFailed はジョブが失敗して終了した状態（終端）。
	EnrichmentFailed EnrichmentState = "failed"
)

// IsTerminal は状態が終端（completed/failed）かどうかを返す。
func (s EnrichmentState) IsTerminal() bool {
	return s == EnrichmentCompleted || s == EnrichmentFailed
}

// EnrichmentLevel はペルソナ強化の到達レベルを表す。
type EnrichmentLevel string

const (
	EnrichmentLevelQuick     EnrichmentLevel = "quick"
	EnrichmentLevelStrategic EnrichmentLevel = "strategic"
	EnrichmentLevelComplete  EnrichmentLevel = "complete"
)

// Persona はオンボーディングで入力されたユーザーのビジネスペルソナを表す。
// 強化ジョブの状態も同じ行に保持する。
type Persona struct {
	ID           string
	UserID       string
	BusinessName string
	Industry     string
	Audience     string
	Goals        string
	WebsiteURL   string

	EnrichmentStatus     EnrichmentState
	EnrichmentLevel      *EnrichmentLevel
	Completeness         *int
	EnrichmentError      string
	EnrichmentAttempts   int
	EnrichmentStartedAt  *time.Time
	EnrichmentFinishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnrichmentStatus はポーリングクライアントに返す強化ジョブ状態のスナップショット。
type EnrichmentStatus struct {
	Status       EnrichmentState
	PersonaID    *string
	Level        *EnrichmentLevel
	Completeness *int
	UpdatedAt    *time.Time
}

// EnrichmentResult は強化ジョブ1回分の実行結果。
type EnrichmentResult struct {
	Level        EnrichmentLevel
	Completeness int
}
