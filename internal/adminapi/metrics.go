package adminapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/letsgo/gateway/internal/daemon"
)

var (
	sessionCountDesc = prometheus.NewDesc(
		"letsgo_session_count", "Number of active per-sender sessions.", nil, nil)
	messagesTotalDesc = prometheus.NewDesc(
		"letsgo_messages_total", "Total inbound messages routed since the daemon started.", nil, nil)
	channelsRunningDesc = prometheus.NewDesc(
		"letsgo_channels_running", "Number of registered channel adapters currently running.", nil, nil)
)

// daemonCollector adapts the daemon's live counters to Prometheus's pull
// model, reporting the same figures handleUsage serves as JSON.
type daemonCollector struct {
	d *daemon.Daemon
}

func (c *daemonCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionCountDesc
	ch <- messagesTotalDesc
	ch <- channelsRunningDesc
}

func (c *daemonCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(sessionCountDesc, prometheus.GaugeValue,
		float64(len(c.d.Sessions().ActiveSessions())))
	ch <- prometheus.MustNewConstMetric(messagesTotalDesc, prometheus.CounterValue,
		float64(c.d.MessageCount()))

	running := 0
	for _, st := range c.d.Manager().StatusAll() {
		if st.IsRunning {
			running++
		}
	}
	ch <- prometheus.MustNewConstMetric(channelsRunningDesc, prometheus.GaugeValue, float64(running))
}
