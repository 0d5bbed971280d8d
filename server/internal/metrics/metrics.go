// Package metrics 汇总 chat-drafts 的 prometheus 指标。所有方法对 nil 接收者安全，
// 单元测试和不需要指标的调用方直接传 nil 即可。
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors 持有所有指标。
type Collectors struct {
	queries         *prometheus.CounterVec
	guardRejections *prometheus.CounterVec
	eventsApplied   *prometheus.CounterVec
	records         *prometheus.GaugeVec

	hubConnections prometheus.Gauge
	hubPublished   prometheus.Counter
	hubDropped     prometheus.Counter

	writes         *prometheus.CounterVec
	retentionPurge prometheus.Counter
}

// New 创建并向 reg 注册全部指标。reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collectors{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "manager_queries_total",
			Help:      "Outbound page queries issued by paginated managers.",
		}, []string{"manager", "kind", "outcome"}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "manager_guard_rejections_total",
			Help:      "Reload/next-page calls skipped because one was already in flight or nothing was left to load.",
		}, []string{"manager", "kind"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "manager_events_applied_total",
			Help:      "Push events reconciled into manager state.",
		}, []string{"manager", "type"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chatdrafts",
			Name:      "manager_records",
			Help:      "Records currently held by a manager.",
		}, []string{"manager"}),
		hubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatdrafts",
			Name:      "hub_connections",
			Help:      "Open websocket event connections.",
		}),
		hubPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "hub_events_published_total",
			Help:      "Events published to the hub.",
		}),
		hubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "hub_frames_dropped_total",
			Help:      "Outbound frames dropped because a connection queue was full.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "store_writes_total",
			Help:      "Record writes handled by the backend service.",
		}, []string{"kind", "op"}),
		retentionPurge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatdrafts",
			Name:      "retention_purged_drafts_total",
			Help:      "Drafts removed by the retention sweep.",
		}),
	}

	reg.MustRegister(
		c.queries, c.guardRejections, c.eventsApplied, c.records,
		c.hubConnections, c.hubPublished, c.hubDropped,
		c.writes, c.retentionPurge,
	)
	return c
}

func (c *Collectors) ObserveQuery(manager, kind string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.queries.WithLabelValues(manager, kind, outcome).Inc()
}

func (c *Collectors) GuardRejected(manager, kind string) {
	if c == nil {
		return
	}
	c.guardRejections.WithLabelValues(manager, kind).Inc()
}

func (c *Collectors) EventApplied(manager, eventType string) {
	if c == nil {
		return
	}
	c.eventsApplied.WithLabelValues(manager, eventType).Inc()
}

func (c *Collectors) SetRecords(manager string, n int) {
	if c == nil {
		return
	}
	c.records.WithLabelValues(manager).Set(float64(n))
}

func (c *Collectors) HubConnected() {
	if c == nil {
		return
	}
	c.hubConnections.Inc()
}

func (c *Collectors) HubDisconnected() {
	if c == nil {
		return
	}
	c.hubConnections.Dec()
}

func (c *Collectors) HubPublished() {
	if c == nil {
		return
	}
	c.hubPublished.Inc()
}

func (c *Collectors) HubDropped() {
	if c == nil {
		return
	}
	c.hubDropped.Inc()
}

func (c *Collectors) Write(kind, op string) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(kind, op).Inc()
}

func (c *Collectors) RetentionPurged(n int) {
	if c == nil {
		return
	}
	c.retentionPurge.Add(float64(n))
}
