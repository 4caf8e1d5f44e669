package fs

import "github.com/prometheus/client_golang/prometheus"

// metrics is the small set of instrumentation SPEC_FULL.md §9 calls for:
// operations by name, open descriptor count, free block count, and
// allocator-exhaustion count. It never influences engine correctness; it is
// wired purely at operation boundaries. Grounded on
// GoogleCloudPlatform-gcsfuse's (pack member) prometheus exporter usage.
type metrics struct {
	ops           *prometheus.CounterVec
	openFds       prometheus.Gauge
	freeBlocks    prometheus.Gauge
	exhaustions   *prometheus.CounterVec
	savedBytes    prometheus.Counter
}

// newMetrics builds a metrics set registered against reg (left unregistered
// when reg is nil). Pass a fresh
// prometheus.NewRegistry() per Session in tests to avoid collisions; pass
// prometheus.DefaultRegisterer in a long-running process that exposes
// /metrics once per process.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vfisk_operations_total",
			Help: "Count of simulated filesystem operations by name and outcome.",
		}, []string{"op", "outcome"}),
		openFds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vfisk_open_descriptors",
			Help: "Number of currently open file descriptors.",
		}),
		freeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vfisk_free_blocks_cached",
			Help: "Number of free block ids currently cached in the superblock.",
		}),
		exhaustions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vfisk_allocator_exhaustions_total",
			Help: "Count of NoFreeInodes/DiskFull errors raised by the allocators.",
		}, []string{"resource"}),
		savedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vfisk_image_bytes_saved_total",
			Help: "Total bytes written across all image saves.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.openFds, m.freeBlocks, m.exhaustions, m.savedBytes)
	}
	return m
}

func (m *metrics) observeOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}

func (m *metrics) observeExhaustion(resource string) {
	m.exhaustions.WithLabelValues(resource).Inc()
}

func (m *metrics) observeSave(n int) {
	m.savedBytes.Add(float64(n))
}

func (m *metrics) setOpenFds(n int)    { m.openFds.Set(float64(n)) }
func (m *metrics) setFreeBlocks(n int) { m.freeBlocks.Set(float64(n)) }
