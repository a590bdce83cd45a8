package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all mirror metrics.
type Registry struct {
	// Event pipeline
	EventsTotal    *prometheus.CounterVec
	DiscardsTotal  *prometheus.CounterVec
	CoalescedTotal prometheus.Counter
	CacheEntries   *prometheus.GaugeVec

	// Wireless correlator
	ScansTotal      prometheus.Counter
	WifiEventsTotal *prometheus.CounterVec

	// Snapshot
	SnapshotsTotal *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmirror_events_total",
		Help: "Change events delivered to the receiver",
	}, []string{"entity", "action"})

	r.DiscardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmirror_discards_total",
		Help: "Messages absorbed as identical to the cached state",
	}, []string{"entity"})

	r.CoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netmirror_coalesced_calls_total",
		Help: "Receiver calls merged away by batch coalescing",
	})

	r.CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netmirror_cache_entries",
		Help: "Current entries per entity cache",
	}, []string{"entity"})

	r.ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netmirror_wifi_scans_total",
		Help: "Wireless scans triggered",
	})

	r.WifiEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmirror_wifi_events_total",
		Help: "nl80211 multicast events processed",
	}, []string{"command"})

	r.SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmirror_snapshots_total",
		Help: "Snapshot exports and imports",
	}, []string{"direction"})

	return r
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	Get()
	return promhttp.Handler()
}

// CountEvent records one delivered change event.
func CountEvent(entity, action string) {
	Get().EventsTotal.WithLabelValues(entity, action).Inc()
}

// CountDiscard records one silently absorbed message.
func CountDiscard(entity string) {
	Get().DiscardsTotal.WithLabelValues(entity).Inc()
}

// CountCoalesced records receiver calls merged away during a batch.
func CountCoalesced(n int) {
	Get().CoalescedTotal.Add(float64(n))
}

// ObserveCacheSize tracks the size of an entity cache.
func ObserveCacheSize(entity string, n int) {
	Get().CacheEntries.WithLabelValues(entity).Set(float64(n))
}

// CountWifiEvent records one processed nl80211 event.
func CountWifiEvent(command string) {
	Get().WifiEventsTotal.WithLabelValues(command).Inc()
}

// CountScan records a triggered wireless scan.
func CountScan() {
	Get().ScansTotal.Inc()
}

// CountSnapshot records a snapshot export ("export") or import
// ("import").
func CountSnapshot(direction string) {
	Get().SnapshotsTotal.WithLabelValues(direction).Inc()
}
