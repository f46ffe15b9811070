package fleet

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	metricTotal       = "fleet_robots_total"
	metricOperational = "fleet_robots_operational"
)

// exposition order of the gauge families
var metricOrder = []string{metricTotal, metricOperational}

var (
	totalDesc = prometheus.NewDesc(
		metricTotal,
		"Total number of robots",
		nil, nil,
	)
	operationalDesc = prometheus.NewDesc(
		metricOperational,
		"Number of operational robots",
		nil, nil,
	)
)

// countsCollector exposes one fixed Counts value, so both gauges of a scrape
// always describe the same fleet state.
type countsCollector struct {
	counts Counts
}

var _ prometheus.Collector = countsCollector{}

func (c countsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalDesc
	ch <- operationalDesc
}

func (c countsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.GaugeValue, float64(c.counts.Total))
	ch <- prometheus.MustNewConstMetric(operationalDesc, prometheus.GaugeValue, float64(c.counts.Operational))
}

// MetricsText renders the fleet gauges in the Prometheus text exposition
// format.
func (s *Store) MetricsText() string {
	return renderCounts(s.Counts())
}

func renderCounts(c Counts) string {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(countsCollector{counts: c})

	families, err := reg.Gather()
	if err != nil {
		// const gauges with static descriptors cannot fail to gather
		panic(err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	var buf bytes.Buffer
	for _, name := range metricOrder {
		if _, err := expfmt.MetricFamilyToText(&buf, byName[name]); err != nil {
			panic(err)
		}
	}
	return buf.String()
}
