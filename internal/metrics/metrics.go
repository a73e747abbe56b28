// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 説教送信の結果ラベル。
const (
	IntakeAccepted     = "accepted"
	IntakeRejected     = "rejected"
	IntakeInvalid      = "invalid"
	IntakeUnconfigured = "unconfigured"
)

// 所属解決の結果ラベル。
const (
	ResolutionFound        = "found"
	ResolutionNotFound     = "not_found"
	ResolutionError        = "error"
	ResolutionUnconfigured = "unconfigured"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordIntakeSubmission(result string)
	RecordWebhookStatus(statusCode int)
	RecordWebhookLatency(duration time.Duration)
	RecordMembershipResolution(outcome string)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	intakeSubmissions *prometheus.CounterVec
	webhookStatus     *prometheus.CounterVec
	webhookLatency    prometheus.Histogram
	resolutions       *prometheus.CounterVec
	sessionsCleaned   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		intakeSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sermonhub_intake_submissions_total",
			Help: "説教送信の結果別件数",
		}, []string{"result"}),
		webhookStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sermonhub_webhook_status_total",
			Help: "Webhookレスポンスのステータスコード別件数",
		}, []string{"status_code"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sermonhub_webhook_latency_seconds",
			Help:    "Webhook呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sermonhub_membership_resolutions_total",
			Help: "所属解決の結果別件数",
		}, []string{"outcome"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sermonhub_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.intakeSubmissions,
		c.webhookStatus,
		c.webhookLatency,
		c.resolutions,
		c.sessionsCleaned,
	)

	return c
}

// RecordIntakeSubmission は説教送信の結果を記録する。
func (c *Collector) RecordIntakeSubmission(result string) {
	c.intakeSubmissions.WithLabelValues(result).Inc()
}

// RecordWebhookStatus はWebhookのHTTPステータスコードを記録する。
func (c *Collector) RecordWebhookStatus(statusCode int) {
	c.webhookStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookLatency はWebhook呼び出しのレイテンシを記録する。
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// RecordMembershipResolution は所属解決の結果を記録する。
func (c *Collector) RecordMembershipResolution(outcome string) {
	c.resolutions.WithLabelValues(outcome).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordIntakeSubmission(string)      {}
func (Nop) RecordWebhookStatus(int)            {}
func (Nop) RecordWebhookLatency(time.Duration) {}
func (Nop) RecordMembershipResolution(string)  {}
func (Nop) RecordSessionsCleaned(int64)        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
