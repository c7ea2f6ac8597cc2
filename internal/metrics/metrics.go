// Package metrics 画布同步层的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/workerpool"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/writequeue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sticky_canvas"

// Metrics 实现 service.Metrics，同时暴露写队列和 worker pool 的状态
type Metrics struct {
	registry *prometheus.Registry

	intents        *prometheus.CounterVec
	writes         *prometheus.HistogramVec
	notes          prometheus.Gauge
	pendingWrites  prometheus.Gauge
	divergentNotes prometheus.Gauge
	taskRuns       *prometheus.CounterVec
}

// New 创建指标集合，使用独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "User intents applied to the note registry.",
		}, []string{"action"}),
		writes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_seconds",
			Help:      "Note store write latency by operation and result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op", "result"}),
		notes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notes",
			Help:      "Notes currently held in memory.",
		}),
		pendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_writes",
			Help:      "Store writes issued but not yet completed.",
		}),
		divergentNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "divergent_notes",
			Help:      "Notes whose stored record differed from memory at the last consistency check.",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Scheduled task runs by task and result.",
		}, []string{"task", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.intents, m.writes, m.notes, m.pendingWrites, m.divergentNotes, m.taskRuns,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveIntent(action string) {
	m.intents.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveWrite(op string, err error, d time.Duration) {
	m.writes.WithLabelValues(op, result(err)).Observe(d.Seconds())
}

func (m *Metrics) SetNotes(n int) {
	m.notes.Set(float64(n))
}

func (m *Metrics) SetPendingWrites(n int64) {
	m.pendingWrites.Set(float64(n))
}

// SetDivergentNotes 记录一致性检查发现的差异数
func (m *Metrics) SetDivergentNotes(n int) {
	m.divergentNotes.Set(float64(n))
}

// ObserveTask 记录定时任务的执行结果
func (m *Metrics) ObserveTask(task string, err error) {
	m.taskRuns.WithLabelValues(task, result(err)).Inc()
}

// WatchWriteQueue 注册写队列指标
func (m *Metrics) WatchWriteQueue(q *writequeue.Manager) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "active_queues",
			Help: "Per-note write queues currently alive.",
		}, func() float64 { return float64(q.GetMetrics().ActiveQueues) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "failed_total",
			Help: "Writes rejected or failed in the write queue.",
		}, func() float64 { return float64(q.GetMetrics().Failed) }),
	)
}

// WatchWorkerPool 注册 worker pool 指标
func (m *Metrics) WatchWorkerPool(p *workerpool.Pool) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker_pool", Name: "active",
			Help: "Background tasks currently running.",
		}, func() float64 { return float64(p.ActiveCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker_pool", Name: "queued",
			Help: "Background tasks waiting for a worker.",
		}, func() float64 { return float64(p.QueuedCount()) }),
	)
}

// WatchGauge 注册任意数值回调，例如 WebSocket 连接数
func (m *Metrics) WatchGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理函数
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
