// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InviteMetrics は招待台帳サービスが記録するメトリクスのインターフェース。
type InviteMetrics interface {
	RecordInviteCreated()
	RecordInviteRedeemed()
	RecordInviteFailure(reason string)
}

// EnrichmentMetrics は強化ワーカーと状態トラッカーが記録するメトリクスのインターフェース。
type EnrichmentMetrics interface {
	RecordEnrichmentRun(outcome string, duration time.Duration)
	RecordStatusPoll(status string)
}

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	InviteMetrics
	EnrichmentMetrics
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	invitesCreated     prometheus.Counter
	invitesRedeemed    prometheus.Counter
	inviteFailures     *prometheus.CounterVec
	enrichmentRuns     *prometheus.CounterVec
	enrichmentDuration prometheus.Histogram
	statusPolls        *prometheus.CounterVec
	sessionsPurged     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		invitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisorhub_invites_created_total",
			Help: "発行された招待コードの合計数",
		}),
		invitesRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisorhub_invites_redeemed_total",
			Help: "引き換えられた招待コードの合計数",
		}),
		inviteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisorhub_invite_failures_total",
			Help: "招待コードの発行・引き換え失敗数（理由別）",
		}, []string{"reason"}),
		enrichmentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisorhub_enrichment_runs_total",
			Help: "ペルソナ強化ジョブの実行数（結果別）",
		}, []string{"outcome"}),
		enrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisorhub_enrichment_duration_seconds",
			Help:    "ペルソナ強化ジョブ1件の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		statusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisorhub_status_polls_total",
			Help: "強化状態の問い合わせ数（返した状態別）",
		}, []string{"status"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisorhub_sessions_purged_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.invitesCreated,
		c.invitesRedeemed,
		c.inviteFailures,
		c.enrichmentRuns,
		c.enrichmentDuration,
		c.statusPolls,
		c.sessionsPurged,
	)

	return c
}

// RecordInviteCreated は招待コードの発行を記録する。
func (c *Collector) RecordInviteCreated() {
	c.invitesCreated.Inc()
}

// RecordInviteRedeemed は招待コードの引き換えを記録する。
func (c *Collector) RecordInviteRedeemed() {
	c.invitesRedeemed.Inc()
}

// RecordInviteFailure は発行・引き換えの失敗を理由（エラーコード）別に記録する。
func (c *Collector) RecordInviteFailure(reason string) {
	c.inviteFailures.WithLabelValues(reason).Inc()
}

// RecordEnrichmentRun は強化ジョブ1件の結果と所要時間を記録する。
// 所要時間が0の場合（回収されたジョブなど）は件数のみ記録する。
func (c *Collector) RecordEnrichmentRun(outcome string, duration time.Duration) {
	c.enrichmentRuns.WithLabelValues(outcome).Inc()
	if duration > 0 {
		c.enrichmentDuration.Observe(duration.Seconds())
	}
}

// RecordStatusPoll は強化状態の問い合わせを記録する。
func (c *Collector) RecordStatusPoll(status string) {
	c.statusPolls.WithLabelValues(status).Inc()
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
