package enrich

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/hitoshi/advisorhub/internal/enrichment"
)

// メトリクスに記録する実行結果の分類
const (
	outcomeCompleted  = "completed"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
	outcomeStale      = "stale"
	outcomeError      = "error"
	outcomeRejected   = "rejected"
)

// maxReasonLength は enrichment_error に保存する理由の最大文字数。
const maxReasonLength = 500

// FailureReason は強化処理のエラーをユーザーに返せる失敗理由に変換する。
// 外部サービスの詳細はログにのみ残し、ここでは分類だけを返す。
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "enrichment timed out"
	case errors.Is(err, context.Canceled):
		return "enrichment cancelled"
	case errors.Is(err, enrichment.ErrAnalysisRejected):
		return truncate(err.Error(), maxReasonLength)
	default:
		return "analysis service unavailable"
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
