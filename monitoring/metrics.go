// Package monitoring 暴露订单中台的 Prometheus 指标与健康检查
package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "orderdesk"

// CountFunc 返回某类实体的当前数量
type CountFunc func(ctx context.Context) (int, error)

// Collector 实现 prometheus.Collector
//
// 计数与直方图在事件发生时更新；实体数量在抓取时通过注册的 CountFunc 现取。
type Collector struct {
	webhookRequests *prometheus.CounterVec
	webhookStage    *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	publishDuration prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec

	entitiesDesc *prometheus.Desc

	mu       sync.RWMutex
	entities map[string]CountFunc
}

// NewMetricsCollector 创建 Collector
func NewMetricsCollector() *Collector {
	return &Collector{
		webhookRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_requests_total",
				Help:      "The number of processed webhook events by outcome.",
			}, []string{"outcome"},
		),
		webhookStage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_stage_duration_seconds",
				Help:      "The time spent in each reconciliation stage.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}, []string{"stage"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_published_total",
				Help:      "The number of messages handed to the event transport.",
			}, []string{"type", "outcome"},
		),
		publishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "event_publish_duration_seconds",
				Help:      "The time taken to publish a message.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "The number of HTTP requests by route and status.",
			}, []string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "The HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"},
		),
		entitiesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "entities"),
			"The number of stored entities by kind.",
			[]string{"kind"}, nil,
		),
		entities: make(map[string]CountFunc),
	}
}

// TrackEntities 注册实体计数函数
func (c *Collector) TrackEntities(kind string, count CountFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[kind] = count
}

// ObserveWebhook 记录一次 webhook 处理结果
func (c *Collector) ObserveWebhook(err error) {
	c.webhookRequests.WithLabelValues(outcome(err)).Inc()
}

// ObserveStage 记录某个流水线阶段的耗时
func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	c.webhookStage.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObservePublish 记录一次消息发布
func (c *Collector) ObservePublish(messageType string, err error, elapsed time.Duration) {
	c.eventsPublished.WithLabelValues(messageType, outcome(err)).Inc()
	c.publishDuration.Observe(elapsed.Seconds())
}

// ObserveHTTP 记录一次 HTTP 请求
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.webhookRequests.Describe(ch)
	c.webhookStage.Describe(ch)
	c.eventsPublished.Describe(ch)
	c.publishDuration.Describe(ch)
	c.httpRequests.Describe(ch)
	c.httpDuration.Describe(ch)
	ch <- c.entitiesDesc
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.webhookRequests.Collect(ch)
	c.webhookStage.Collect(ch)
	c.eventsPublished.Collect(ch)
	c.publishDuration.Collect(ch)
	c.httpRequests.Collect(ch)
	c.httpDuration.Collect(ch)

	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for kind, count := range c.entities {
		n, err := count(ctx)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.entitiesDesc, prometheus.GaugeValue, float64(n), kind)
	}
}

// NewRegistry 创建包含 Collector 与 Go 运行时指标的注册表
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(prometheus.NewGoCollector())
	return reg
}

// Handler 返回 /metrics 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
