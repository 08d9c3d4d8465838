// Package stats 定义服务器内部的 prometheus 度量。
//
// 采集器为包级变量，由 cmd/ferry 注册到指标服务的注册表；未注册时更新它们没有副作用。
package stats

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 度量名称。
const (
	ConnectionsActiveKey      = "ferry_connections_active"
	ConnectionsRejectedKey    = "ferry_connections_rejected_total"
	ChannelsIdleClosedKey     = "ferry_channels_idle_closed_total"
	RequestsTotalKey          = "ferry_requests_total"
	RequestDurationSecondsKey = "ferry_request_duration_seconds"
	ResponseBytesTotalKey     = "ferry_response_bytes_total"
	DispatcherThreadsKey      = "ferry_dispatcher_threads"
	DispatcherQueueDepthKey   = "ferry_dispatcher_queue_depth"
	DispatcherQueueSecondsKey = "ferry_dispatcher_queue_wait_seconds"
	DispatcherTaskPanicsKey   = "ferry_dispatcher_task_panics_total"
	BufferOverflowedTotalKey  = "ferry_buffer_overflowed_total"
)

// 度量采集器。
var (
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ConnectionsActiveKey,
		Help: "Number of connections currently served.",
	})
	ConnectionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ConnectionsRejectedKey,
		Help: "Cumulative number of connections closed because connection_limit was reached.",
	})
	ChannelsIdleClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ChannelsIdleClosedKey,
		Help: "Cumulative number of connections closed by the idle sweep.",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RequestsTotalKey,
		Help: "Cumulative number of responses by status code.",
	}, []string{"code"})
	RequestDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    RequestDurationSecondsKey,
		Help:    "Time spent by workers servicing a request.",
		Buckets: prometheus.DefBuckets,
	})
	ResponseBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ResponseBytesTotalKey,
		Help: "Cumulative number of response bytes flushed to clients.",
	})
	DispatcherThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: DispatcherThreadsKey,
		Help: "Number of running worker goroutines.",
	})
	DispatcherQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: DispatcherQueueDepthKey,
		Help: "Number of tasks waiting for a worker.",
	})
	DispatcherQueueSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    DispatcherQueueSecondsKey,
		Help:    "Time tasks spend queued before a worker picks them up.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
	DispatcherTaskPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: DispatcherTaskPanicsKey,
		Help: "Cumulative number of tasks that panicked in a worker.",
	})
	BufferOverflowedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: BufferOverflowedTotalKey,
		Help: "Cumulative number of buffers spilled to a temporary file.",
	})
)

// Collectors 返回全部采集器。
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ConnectionsActive,
		ConnectionsRejected,
		ChannelsIdleClosed,
		RequestsTotal,
		RequestDurationSeconds,
		ResponseBytesTotal,
		DispatcherThreads,
		DispatcherQueueDepth,
		DispatcherQueueSeconds,
		DispatcherTaskPanics,
		BufferOverflowedTotal,
	}
}

// ObserveRequest 记录一次已完成的响应。
func ObserveRequest(code int, started time.Time) {
	RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	RequestDurationSeconds.Observe(time.Since(started).Seconds())
}
