package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reportixi/models"
)

const namespace = "report_ixi"

var (
	packetsReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "packets_received_total"),
		"Datagrams read from the report socket.", nil, nil)
	nonNeighborInvalidDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "non_neighbor_invalid_total"),
		"Datagrams from sources that are neither a neighbor nor the RCS.", nil, nil)
	nonNeighborPingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "non_neighbor_ping_total"),
		"Signed pings no neighbor key could verify.", nil, nil)
	relayedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "relayed_pings_total"),
		"Ping reports relayed to the RCS.", nil, nil)
	relaySkippedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "relay_skipped_total"),
		"Ping reports dropped because the local UUID was not yet known.", nil, nil)

	neighborPingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "neighbor", "pings_total"),
		"Authenticated pings attributed to a neighbor.", []string{"neighbor"}, nil)
	neighborMetadataDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "neighbor", "metadata_total"),
		"Metadata announcements received from a neighbor.", []string{"neighbor"}, nil)
	neighborInfoDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "neighbor", "info"),
		"Learned neighbor identity (constant 1).", []string{"neighbor", "uuid", "version"}, nil)
)

// Collector exposes Counters and per-neighbor state to prometheus. Values are
// read at scrape time so the receiver only ever touches atomics.
type Collector struct {
	counters *Counters
	registry *models.Registry
}

// NewCollector creates a collector; registry may be nil.
func NewCollector(counters *Counters, registry *models.Registry) *Collector {
	return &Collector{counters: counters, registry: registry}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- packetsReceivedDesc
	ch <- nonNeighborInvalidDesc
	ch <- nonNeighborPingDesc
	ch <- relayedDesc
	ch <- relaySkippedDesc
	ch <- neighborPingDesc
	ch <- neighborMetadataDesc
	ch <- neighborInfoDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.counters.Snapshot()
	ch <- prometheus.MustNewConstMetric(packetsReceivedDesc, prometheus.CounterValue, float64(snap.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(nonNeighborInvalidDesc, prometheus.CounterValue, float64(snap.NonNeighborInvalid))
	ch <- prometheus.MustNewConstMetric(nonNeighborPingDesc, prometheus.CounterValue, float64(snap.NonNeighborPing))
	ch <- prometheus.MustNewConstMetric(relayedDesc, prometheus.CounterValue, float64(snap.Relayed))
	ch <- prometheus.MustNewConstMetric(relaySkippedDesc, prometheus.CounterValue, float64(snap.RelaySkipped))

	for _, n := range c.registry.Snapshots() {
		ch <- prometheus.MustNewConstMetric(neighborPingDesc, prometheus.CounterValue, float64(n.PingCount), n.ReportAddress)
		ch <- prometheus.MustNewConstMetric(neighborMetadataDesc, prometheus.CounterValue, float64(n.MetadataCount), n.ReportAddress)
		ch <- prometheus.MustNewConstMetric(neighborInfoDesc, prometheus.GaugeValue, 1, n.ReportAddress, n.UUID, n.ReportIxiVersion)
	}
}

// NewRegistry builds a prometheus registry holding the collector plus Go
// runtime and process metrics.
func NewRegistry(collector *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
