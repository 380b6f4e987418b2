// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 決済サービスやワーカーから利用する。
type MetricsCollector interface {
	RecordSessionCreated()
	RecordWebhookEvent(eventType string, outcome string)
	RecordCapture()
	RecordAmountMismatch()
	RecordSessionsExpired(count int)
	RecordSignedURLIssued(variant string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsCreated prometheus.Counter
	webhookEvents   *prometheus.CounterVec
	captures        prometheus.Counter
	amountMismatch  prometheus.Counter
	sessionsExpired prometheus.Counter
	signedURLs      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otoichi_payment_sessions_created_total",
			Help: "作成された決済セッションの合計数",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otoichi_webhook_events_total",
			Help: "イベント種別・処理結果別のWebhook受信数",
		}, []string{"event_type", "outcome"}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otoichi_payment_captures_total",
			Help: "購入が確定した決済の合計数",
		}),
		amountMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otoichi_payment_amount_mismatch_total",
			Help: "金額不一致で拒否されたWebhookの合計数",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otoichi_payment_sessions_expired_total",
			Help: "期限切れになった決済セッションの合計数",
		}),
		signedURLs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otoichi_signed_urls_issued_total",
			Help: "発行された署名付きURLの合計数（variant: preview/full）",
		}, []string{"variant"}),
	}

	reg.MustRegister(
		c.sessionsCreated,
		c.webhookEvents,
		c.captures,
		c.amountMismatch,
		c.sessionsExpired,
		c.signedURLs,
	)

	return c
}

// RecordSessionCreated は決済セッション作成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordWebhookEvent はWebhook受信をイベント種別と処理結果で記録する。
func (c *Collector) RecordWebhookEvent(eventType string, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordCapture は購入確定を記録する。
func (c *Collector) RecordCapture() {
	c.captures.Inc()
}

// RecordAmountMismatch は金額不一致の拒否を記録する。
func (c *Collector) RecordAmountMismatch() {
	c.amountMismatch.Inc()
}

// RecordSessionsExpired は期限切れ処理されたセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int) {
	c.sessionsExpired.Add(float64(count))
}

// RecordSignedURLIssued は署名付きURL発行を記録する。
func (c *Collector) RecordSignedURLIssued(variant string) {
	c.signedURLs.WithLabelValues(variant).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
