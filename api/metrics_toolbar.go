package api

import (
	"querypanel/core/toolbar"

	"github.com/prometheus/client_golang/prometheus"
)

type toolbarMetricsCollector struct {
	store *toolbar.Store

	storedDesc  *prometheus.Desc
	putsDesc    *prometheus.Desc
	evictedDesc *prometheus.Desc
	prunedDesc  *prometheus.Desc
}

func newToolbarMetricsCollector(s *toolbar.Store) prometheus.Collector {
	return &toolbarMetricsCollector{
		store: s,
		storedDesc: prometheus.NewDesc(
			"querypanel_toolbar_stored_requests",
			"Toolbars currently kept in the store.",
			nil, nil,
		),
		putsDesc: prometheus.NewDesc(
			"querypanel_toolbar_requests_total",
			"Total number of requests that got a toolbar.",
			nil, nil,
		),
		evictedDesc: prometheus.NewDesc(
			"querypanel_toolbar_evicted_total",
			"Toolbars dropped because the store was full.",
			nil, nil,
		),
		prunedDesc: prometheus.NewDesc(
			"querypanel_toolbar_pruned_total",
			"Toolbars dropped because they expired.",
			nil, nil,
		),
	}
}

func (c *toolbarMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.storedDesc
	ch <- c.putsDesc
	ch <- c.evictedDesc
	ch <- c.prunedDesc
}

func (c *toolbarMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.store == nil {
		return
	}
	st := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.storedDesc, prometheus.GaugeValue, float64(st.Len))
	ch <- prometheus.MustNewConstMetric(c.putsDesc, prometheus.CounterValue, float64(st.Puts))
	ch <- prometheus.MustNewConstMetric(c.evictedDesc, prometheus.CounterValue, float64(st.Evicted))
	ch <- prometheus.MustNewConstMetric(c.prunedDesc, prometheus.CounterValue, float64(st.Pruned))
}
