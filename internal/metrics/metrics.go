// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordIngestSuccess(sourceID string)
	RecordIngestFailure(sourceID string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordIngestLatency(duration time.Duration)
	RecordRowsIngested(count int)
	RecordAuthSuccess(gateID string)
	RecordAuthFailure(gateID string)
	RecordLockout(gateID string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestSuccess prometheus.Counter
	ingestFail    *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	ingestLatency prometheus.Histogram
	rowsIngested  prometheus.Counter
	authSuccess   prometheus.Counter
	authFail      prometheus.Counter
	lockouts      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetgate_ingest_success_total",
			Help: "スプレッドシート取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetgate_ingest_fail_total",
			Help: "スプレッドシート取り込み失敗の合計数（原因別）",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sheetgate_ingest_latency_seconds",
			Help:    "スプレッドシート取り込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetgate_rows_ingested_total",
			Help: "取り込まれたデータ行の合計数",
		}),
		authSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetgate_auth_success_total",
			Help: "ゲート認証成功の合計数",
		}),
		authFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetgate_auth_fail_total",
			Help: "ゲート認証失敗の合計数",
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetgate_auth_lockout_total",
			Help: "ロックアウト遷移の合計数",
		}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.httpStatus,
		c.ingestLatency,
		c.rowsIngested,
		c.authSuccess,
		c.authFail,
		c.lockouts,
	)

	return c
}

// RecordIngestSuccess は取り込み成功を記録する。
func (c *Collector) RecordIngestSuccess(sourceID string) {
	c.ingestSuccess.Inc()
}

// RecordIngestFailure は取り込み失敗を原因カテゴリ付きで記録する。
func (c *Collector) RecordIngestFailure(sourceID string, reason string) {
	c.ingestFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordIngestLatency は取り込みのレイテンシを記録する。
func (c *Collector) RecordIngestLatency(duration time.Duration) {
	c.ingestLatency.Observe(duration.Seconds())
}

// RecordRowsIngested は取り込まれたデータ行数を記録する。
func (c *Collector) RecordRowsIngested(count int) {
	c.rowsIngested.Add(float64(count))
}

// RecordAuthSuccess はゲート認証成功を記録する。
// ゲートIDはカーディナリティ抑制のためラベルには含めない。
func (c *Collector) RecordAuthSuccess(gateID string) {
	c.authSuccess.Inc()
}

// RecordAuthFailure はゲート認証失敗を記録する。
func (c *Collector) RecordAuthFailure(gateID string) {
	c.authFail.Inc()
}

// RecordLockout はロックアウトへの遷移を記録する。
func (c *Collector) RecordLockout(gateID string) {
	c.lockouts.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
