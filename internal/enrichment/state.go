// Package enrichment はペルソナ強化ジョブの状態参照（ポーリング契約）と、
// ジョブ本体である強化処理を提供する。
package enrichment

import "github.com/hitoshi/advisorhub/internal/model"

// ShouldPoll はクライアントがポーリングを続けるべき状態かどうかを返す。
// pending / processing の間だけ継続し、終端状態と no_persona では停止する。
func ShouldPoll(s model.EnrichmentState) bool {
	return s == model.EnrichmentPending || s == model.EnrichmentProcessing
}

// CanTransition は状態遷移が許可されているかどうかを返す。
// トラッカー自身は遷移を起こさない。強化ワーカーが確保した行を書き戻す前の検証と、
// 強化の再要求の事前検証に使う。終端状態からは新しいサイクルとして pending にだけ戻れる。
func CanTransition(from, to model.EnrichmentState) bool {
	switch from {
	case model.EnrichmentNoPersona:
		return to == model.EnrichmentPending
	case model.EnrichmentPending:
		return to == model.EnrichmentProcessing || to == model.EnrichmentPending
	case model.EnrichmentProcessing:
		return to == model.EnrichmentCompleted || to == model.EnrichmentFailed || to == model.EnrichmentPending
	default:
		return from.IsTerminal() && to == model.EnrichmentPending
	}
}
