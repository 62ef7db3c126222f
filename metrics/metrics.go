// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the analyzer.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or out of the system: files, packets, connections.
//   - the success or error status of any of the above.
//   - the distribution of interesting values, such as connection duration.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WarningCount counts the warnings encountered during processing.
	// Provides metrics:
	//    pcapstats_warning_count
	// Example usage:
	//    metrics.WarningCount.WithLabelValues("tcp", "no_flightsize").Inc()
	WarningCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapstats_warning_count",
			Help: "The number of processing warnings encountered.",
		}, []string{"component", "issue"})

	// ErrorCount counts the packet decode errors encountered during processing.
	// Provides metrics:
	//    pcapstats_error_count
	// Example usage:
	//    metrics.ErrorCount.WithLabelValues("tcpip", "truncated_ip_header").Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapstats_error_count",
			Help: "The number of packet decode errors encountered.",
		}, []string{"component", "error"})

	// PacketCount is a histogram of the number of packets per trace.
	// Provides metrics:
	//    pcapstats_packet_count
	// Example usage:
	//    metrics.PacketCount.WithLabelValues("ipv4").Observe(float64(count))
	PacketCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pcapstats_packet_count",
			Help: "Distribution of packet counts per trace",
			Buckets: []float64{
				1, 2, 3, 5,
				10, 18, 32, 56,
				100, 178, 316, 562,
				1000, 1780, 3160, 5620,
				10000, 17800, 31600, 56200, math.Inf(1),
			},
		},
		[]string{"type"},
	)

	// ConnectionDuration is a histogram of the analyzed connection durations.
	// Provides metrics:
	//    pcapstats_connection_duration
	// Example usage:
	//    metrics.ConnectionDuration.WithLabelValues("reported").Observe(duration)
	ConnectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pcapstats_connection_duration",
			Help: "Distribution of analyzed connection durations in seconds",
			Buckets: []float64{
				.1, .2, .3, .5,
				1, 1.8, 3.2, 5.6,
				10, 18, 32, 56,
				100, 178, 316, 562,
				1000, 1780, 3160, 5620, math.Inf(1),
			},
		},
		[]string{"status"},
	)

	// ReorderEventCount counts the reordering events emitted, by detector.
	// Provides metrics:
	//    pcapstats_reorder_event_count
	// Example usage:
	//    metrics.ReorderEventCount.WithLabelValues("sackHole").Inc()
	ReorderEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapstats_reorder_event_count",
			Help: "The number of reordering events emitted, by detection reason.",
		}, []string{"reason"})
)
