package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// SMTP 连接与命令指标
	SMTPConnectionsTotal  prometheus.Counter
	SMTPConnectionsActive prometheus.Gauge
	SMTPCommandsTotal     *prometheus.CounterVec
	SMTPRepliesTotal      *prometheus.CounterVec

	// 投递指标
	MessagesDelivered prometheus.Counter
	ParseFailures     prometheus.Counter
	DeliveryDuration  prometheus.Histogram

	// 邮箱与清理指标
	MailboxesCreated prometheus.Counter
	MailboxesSwept   prometheus.Counter
	MessagesSwept    prometheus.Counter
}

// NewMetrics 创建监控指标并注册到默认注册表
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewNopMetrics 创建注册到独立注册表的指标，不对外暴露，供测试和禁用场景使用
func NewNopMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith 创建监控指标并注册到指定注册表
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dropmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// SMTP 连接与命令指标
		SMTPConnectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_smtp_connections_total",
				Help: "Total number of accepted SMTP connections",
			},
		),

		SMTPConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dropmail_smtp_connections_active",
				Help: "Number of currently open SMTP connections",
			},
		),

		SMTPCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_smtp_commands_total",
				Help: "Total number of SMTP commands processed",
			},
			[]string{"command"},
		),

		SMTPRepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_smtp_replies_total",
				Help: "Total number of SMTP replies sent",
			},
			[]string{"code"},
		),

		// 投递指标
		MessagesDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_messages_delivered_total",
				Help: "Total number of messages persisted",
			},
		),

		ParseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_parse_failures_total",
				Help: "Total number of bodies the parser rejected",
			},
		),

		DeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dropmail_delivery_duration_seconds",
				Help:    "End-to-end delivery pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// 邮箱与清理指标
		MailboxesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_mailboxes_created_total",
				Help: "Total number of mailboxes created via the API",
			},
		),

		MailboxesSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_mailboxes_swept_total",
				Help: "Total number of mailboxes removed by retention",
			},
		),

		MessagesSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dropmail_messages_swept_total",
				Help: "Total number of messages removed by retention",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSMTPConnection 记录新建立的 SMTP 连接
func (m *Metrics) RecordSMTPConnection() {
	m.SMTPConnectionsTotal.Inc()
	m.SMTPConnectionsActive.Inc()
}

// CloseSMTPConnection 记录关闭的 SMTP 连接
func (m *Metrics) CloseSMTPConnection() {
	m.SMTPConnectionsActive.Dec()
}

// RecordSMTPCommand 记录处理的 SMTP 命令
func (m *Metrics) RecordSMTPCommand(command string) {
	m.SMTPCommandsTotal.WithLabelValues(command).Inc()
}

// RecordSMTPReply 记录发送的 SMTP 应答码
func (m *Metrics) RecordSMTPReply(code string) {
	m.SMTPRepliesTotal.WithLabelValues(code).Inc()
}

// RecordMessageDelivered 记录成功落库的邮件
func (m *Metrics) RecordMessageDelivered() {
	m.MessagesDelivered.Inc()
}

// RecordParseFailure 记录解析失败的邮件
func (m *Metrics) RecordParseFailure() {
	m.ParseFailures.Inc()
}

// RecordDeliveryDuration 记录投递管线耗时
func (m *Metrics) RecordDeliveryDuration(duration time.Duration) {
	m.DeliveryDuration.Observe(duration.Seconds())
}

// RecordMailboxCreated 记录通过 API 显式创建的邮箱
func (m *Metrics) RecordMailboxCreated() {
	m.MailboxesCreated.Inc()
}

// RecordMailboxesSwept 记录清理任务删除的邮箱数
func (m *Metrics) RecordMailboxesSwept(count int) {
	m.MailboxesSwept.Add(float64(count))
}

// RecordMessagesSwept 记录清理任务删除的邮件数
func (m *Metrics) RecordMessagesSwept(count int) {
	m.MessagesSwept.Add(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
