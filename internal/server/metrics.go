package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rileyhilliard/pifleet/internal/session"
)

// Metrics holds the Prometheus registry and the daemon's meters.
type Metrics struct {
	Registry       *prometheus.Registry
	ProbesTotal    prometheus.Counter
	SnapshotsTotal prometheus.Counter
	DroppedTotal   prometheus.Counter
	Subscribers    *prometheus.GaugeVec
	WSConnects     *prometheus.CounterVec
}

// NewMetrics creates a custom registry with the daemon's meters. states
// feeds the live session gauge at scrape time; nil leaves that series out.
func NewMetrics(states func() []session.Status) *Metrics {
	reg := prometheus.NewRegistry()

	probes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifleet_probes_total",
		Help: "Discovery probes issued.",
	})

	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifleet_snapshots_total",
		Help: "Metrics snapshots served over the API.",
	})

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifleet_stream_dropped_total",
		Help: "Stream events dropped before delivery, detected as sequence gaps.",
	})

	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pifleet_subscribers",
		Help: "Live stream subscribers by kind.",
	}, []string{"kind"})

	wsConnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pifleet_ws_connections_total",
		Help: "WebSocket connections accepted, by endpoint.",
	}, []string{"endpoint"})

	reg.MustRegister(probes, snapshots, dropped, subscribers, wsConnects)
	if states != nil {
		reg.MustRegister(&sessionCollector{
			states: states,
			desc: prometheus.NewDesc("pifleet_sessions",
				"Tracked SSH sessions by state.", []string{"state"}, nil),
		})
	}

	return &Metrics{
		Registry:       reg,
		ProbesTotal:    probes,
		SnapshotsTotal: snapshots,
		DroppedTotal:   dropped,
		Subscribers:    subscribers,
		WSConnects:     wsConnects,
	}
}

// sessionCollector reads the session manager's live state table at scrape
// time instead of mirroring it into a gauge that could go stale.
type sessionCollector struct {
	states func() []session.Status
	desc   *prometheus.Desc
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[string]int{
		session.StateConnecting.String(): 0,
		session.StateReady.String():      0,
		session.StateDegraded.String():   0,
		session.StateClosed.String():     0,
	}
	for _, st := range c.states() {
		counts[st.State.String()]++
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state)
	}
}
