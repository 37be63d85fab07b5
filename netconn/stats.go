package netconn

import (
	"io"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Stats holds the per-process connection and request counters.
// Each worker process owns exactly one Stats value, never shared across
// processes.
type Stats struct {
	connectionCount int64
	totalRequest    int64
	sendFail        int64
	throwException  int64
}

// NewStats builds an empty per-worker counter set.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) addConnection()    { atomic.AddInt64(&s.connectionCount, 1) }
func (s *Stats) removeConnection() { atomic.AddInt64(&s.connectionCount, -1) }
func (s *Stats) addRequest()       { atomic.AddInt64(&s.totalRequest, 1) }
func (s *Stats) addSendFail()      { atomic.AddInt64(&s.sendFail, 1) }
func (s *Stats) addException()     { atomic.AddInt64(&s.throwException, 1) }

// ConnectionCount is the number of live Connection objects this worker
// currently owns; it must reach 0 during graceful shutdown before exit.
func (s *Stats) ConnectionCount() int64 { return atomic.LoadInt64(&s.connectionCount) }
func (s *Stats) TotalRequest() int64    { return atomic.LoadInt64(&s.totalRequest) }
func (s *Stats) SendFail() int64        { return atomic.LoadInt64(&s.sendFail) }
func (s *Stats) ThrowException() int64  { return atomic.LoadInt64(&s.throwException) }

var (
	descConnectionCount = prometheus.NewDesc("netcore_connection_count",
		"Live connections owned by this worker.", []string{"worker"}, nil)
	descTotalRequest = prometheus.NewDesc("netcore_total_request",
		"Decoded application messages handled by this worker.", []string{"worker"}, nil)
	descSendFail = prometheus.NewDesc("netcore_send_fail",
		"Send buffer overflows or fatal writes.", []string{"worker"}, nil)
	descThrowException = prometheus.NewDesc("netcore_throw_exception",
		"Application callback errors recorded through addException.", []string{"worker"}, nil)
)

// statsCollector adapts a Stats snapshot to prometheus.Collector so the
// counters render through the standard exposition pipeline.
type statsCollector struct {
	s      *Stats
	worker string
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descConnectionCount
	ch <- descTotalRequest
	ch <- descSendFail
	ch <- descThrowException
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descConnectionCount, prometheus.GaugeValue,
		float64(c.s.ConnectionCount()), c.worker)
	ch <- prometheus.MustNewConstMetric(descTotalRequest, prometheus.CounterValue,
		float64(c.s.TotalRequest()), c.worker)
	ch <- prometheus.MustNewConstMetric(descSendFail, prometheus.CounterValue,
		float64(c.s.SendFail()), c.worker)
	ch <- prometheus.MustNewConstMetric(descThrowException, prometheus.CounterValue,
		float64(c.s.ThrowException()), c.worker)
}

// WriteProm renders the counters in Prometheus text exposition format.
// Each worker is single-threaded and runs no HTTP server of its own;
// status dumps are this module's transport for these values.
func (s *Stats) WriteProm(w io.Writer, workerLabel string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(&statsCollector{s: s, worker: workerLabel}); err != nil {
		return err
	}
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
