package climate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muurk/intesis/internal/reconcile"
)

// MetricsCollector exports the controller's cached state. Collect never
// touches the device.
type MetricsCollector struct {
	controller *Controller

	up            prometheus.Gauge
	info          *prometheus.GaugeVec
	datapoint     *prometheus.GaugeVec
	wifiRssiDbm   prometheus.Gauge
	pending       prometheus.Gauge
	lastRefresh   prometheus.Gauge
	reconcileEvts *prometheus.CounterVec

	unsubscribe func()
}

// NewMetricsCollector creates a collector for c and starts counting its
// reconciliation events.
func NewMetricsCollector(c *Controller) *MetricsCollector {
	m := &MetricsCollector{
		controller: c,
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intesis_up",
			Help: "Device reachable at the last refresh (1=yes, 0=no)",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intesis_device_info",
			Help: "Intesis adapter info",
		}, []string{"serial", "model", "firmware"}),
		datapoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intesis_datapoint_value",
			Help: "Exposed datapoint value (raw device units)",
		}, []string{"uid", "name"}),
		wifiRssiDbm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intesis_wifi_rssi_dbm",
			Help: "WiFi signal strength (dBm)",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intesis_pending_changes",
			Help: "Changes waiting for device confirmation",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intesis_last_refresh_timestamp_seconds",
			Help: "Last successful refresh timestamp (epoch seconds)",
		}),
		reconcileEvts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intesis_reconcile_events_total",
			Help: "Reconciliation outcomes by type",
		}, []string{"outcome"}),
	}

	m.unsubscribe = c.OnEvent(func(ev reconcile.Event) {
		if ev.Type == reconcile.EventPolled {
			return
		}
		m.reconcileEvts.WithLabelValues(ev.Type.String()).Inc()
	})
	return m
}

// Close stops counting events
func (m *MetricsCollector) Close() {
	m.unsubscribe()
}

func (m *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	m.up.Describe(ch)
	m.info.Describe(ch)
	m.datapoint.Describe(ch)
	m.wifiRssiDbm.Describe(ch)
	m.pending.Describe(ch)
	m.lastRefresh.Describe(ch)
	m.reconcileEvts.Describe(ch)
}

func (m *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	status := m.controller.Status()

	if status.Available {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}

	m.info.Reset()
	if info := status.DeviceInfo; info != nil {
		m.info.With(prometheus.Labels{
			"serial":   info.Serial(),
			"model":    info.Model,
			"firmware": info.FWVersion,
		}).Set(1)
		m.wifiRssiDbm.Set(float64(info.RSSI))
	}

	m.datapoint.Reset()
	for _, dp := range status.State.Values() {
		m.datapoint.WithLabelValues(strconv.Itoa(int(dp.UID)), dp.UID.Name()).Set(float64(dp.Value))
	}

	m.pending.Set(float64(len(status.Pending)))
	if !status.LastUpdate.IsZero() {
		m.lastRefresh.Set(float64(status.LastUpdate.Unix()))
	}

	m.up.Collect(ch)
	m.info.Collect(ch)
	m.datapoint.Collect(ch)
	m.wifiRssiDbm.Collect(ch)
	m.pending.Collect(ch)
	m.lastRefresh.Collect(ch)
	m.reconcileEvts.Collect(ch)
}
