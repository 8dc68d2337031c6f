// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(provider, result string)
	RecordLogout()
	RecordInviteIssued()
	RecordInviteConsumed(result string)
	RecordTeaser(result string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordCleanup(target string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	logouts        prometheus.Counter
	invitesIssued  prometheus.Counter
	inviteConsumes *prometheus.CounterVec
	teaserLatency  *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
	cleanupDeleted *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horo_login_total",
			Help: "IdP別のログイン試行数",
		}, []string{"provider", "result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horo_logout_total",
			Help: "ログアウト（セッション失効）の合計数",
		}),
		invitesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horo_invites_issued_total",
			Help: "発行された招待の合計数",
		}),
		inviteConsumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horo_invite_consume_total",
			Help: "結果別の招待使用数",
		}, []string{"result"}),
		teaserLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "horo_teaser_latency_seconds",
			Help:    "簡易鑑定生成のレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horo_cleanup_deleted_total",
			Help: "クリーンアップで削除された行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.logins,
		c.logouts,
		c.invitesIssued,
		c.inviteConsumes,
		c.teaserLatency,
		c.httpStatus,
		c.cleanupDeleted,
	)

	return c
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(provider, result string) {
	c.logins.WithLabelValues(provider, result).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordInviteIssued は招待の発行を記録する。
func (c *Collector) RecordInviteIssued() {
	c.invitesIssued.Inc()
}

// RecordInviteConsumed は招待使用の結果を記録する。
func (c *Collector) RecordInviteConsumed(result string) {
	c.inviteConsumes.WithLabelValues(result).Inc()
}

// RecordTeaser は簡易鑑定生成のレイテンシを記録する。
func (c *Collector) RecordTeaser(result string, duration time.Duration) {
	c.teaserLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanup はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanup(target string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(deleted))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

var _ MetricsCollector = NopCollector{}

func (NopCollector) RecordLogin(string, string)         {}
func (NopCollector) RecordLogout()                      {}
func (NopCollector) RecordInviteIssued()                {}
func (NopCollector) RecordInviteConsumed(string)        {}
func (NopCollector) RecordTeaser(string, time.Duration) {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordCleanup(string, int64)        {}

// statusRecorder はステータスコードを記録するResponseWriter。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// NewHTTPMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewHTTPMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			c.RecordHTTPStatus(rec.status)
		})
	}
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
