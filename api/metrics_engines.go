package api

import (
	"querypanel/core/store"

	"github.com/prometheus/client_golang/prometheus"
)

type enginesMetricsCollector struct {
	engines *store.Engines

	listenersDesc *prometheus.Desc
	openDesc      *prometheus.Desc
	inUseDesc     *prometheus.Desc
	waitCountDesc *prometheus.Desc
}

func newEnginesMetricsCollector(engines *store.Engines) prometheus.Collector {
	return &enginesMetricsCollector{
		engines: engines,
		listenersDesc: prometheus.NewDesc(
			"querypanel_engine_listeners",
			"Statement listeners currently registered on the engine.",
			[]string{"engine"},
			nil,
		),
		openDesc: prometheus.NewDesc(
			"querypanel_engine_open_connections",
			"Established connections in the engine pool.",
			[]string{"engine"},
			nil,
		),
		inUseDesc: prometheus.NewDesc(
			"querypanel_engine_in_use_connections",
			"Connections currently in use.",
			[]string{"engine"},
			nil,
		),
		waitCountDesc: prometheus.NewDesc(
			"querypanel_engine_wait_count_total",
			"Total number of connections waited for.",
			[]string{"engine"},
			nil,
		),
	}
}

func (c *enginesMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.listenersDesc
	ch <- c.openDesc
	ch <- c.inUseDesc
	ch <- c.waitCountDesc
}

func (c *enginesMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.engines == nil {
		return
	}
	for _, e := range c.engines.All() {
		st := e.DB().Stats()
		ch <- prometheus.MustNewConstMetric(c.listenersDesc, prometheus.GaugeValue, float64(e.ListenerCount()), e.Name())
		ch <- prometheus.MustNewConstMetric(c.openDesc, prometheus.GaugeValue, float64(st.OpenConnections), e.Name())
		ch <- prometheus.MustNewConstMetric(c.inUseDesc, prometheus.GaugeValue, float64(st.InUse), e.Name())
		ch <- prometheus.MustNewConstMetric(c.waitCountDesc, prometheus.CounterValue, float64(st.WaitCount), e.Name())
	}
}
