// Package metrics declares the gateway's Prometheus metrics using the
// same labeled Counter/Histogram/GaugeVec declaration style used
// throughout the rest of this codebase.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_messages_received_total",
			Help: "Total decoded messages received, by transport and type.",
		},
		[]string{"transport", "type"},
	)

	MessagesFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_messages_filtered_total",
			Help: "Messages dropped by the storage write-path filter, by reason.",
		},
		[]string{"reason"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_decode_errors_total",
			Help: "Frame/JSON decode failures by transport.",
		},
		[]string{"transport"},
	)

	FCSMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_fcs_mismatch_total",
			Help: "MeshCom frames processed despite an FCS mismatch.",
		},
		[]string{"transport"},
	)

	StoreWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcapp_store_write_duration_seconds",
			Help:    "Storage engine write-batch latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	StoreBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcapp_store_batch_size",
			Help:    "Row counts per flushed write batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"op"},
	)

	CommandsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_commands_executed_total",
			Help: "Commands executed by the command engine, by command name and outcome.",
		},
		[]string{"command", "outcome"},
	)

	CommandAbuseBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcapp_command_abuse_blocks_total",
			Help: "Senders placed under the abuse-protection block.",
		},
	)

	SSEClientsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcapp_sse_clients",
			Help: "Currently connected SSE clients.",
		},
	)

	BLEConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcapp_ble_connected",
			Help: "1 if the BLE adapter reports CONNECTED, else 0.",
		},
	)

	RetentionRowsPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcapp_retention_rows_purged_total",
			Help: "Rows purged by the retention pruner, by table.",
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

// Register registers every collector declared in this package in one
// call, safe to invoke multiple times.
func Register() {
	registerOnce.Do(registerAll)
}

func registerAll() {
	prometheus.MustRegister(
		MessagesReceivedTotal,
		MessagesFilteredTotal,
		DecodeErrorsTotal,
		FCSMismatchTotal,
		StoreWriteDuration,
		StoreBatchSize,
		CommandsExecutedTotal,
		CommandAbuseBlocksTotal,
		SSEClientsGauge,
		BLEConnectionState,
		RetentionRowsPurgedTotal,
	)
}

// RegisterStoreMetrics is invoked from internal/store's init so a store
// used outside the main gateway binary (e.g. in tests or the maintenance
// subcommand) never registers duplicate collectors.
func RegisterStoreMetrics() {
	Register()
}
