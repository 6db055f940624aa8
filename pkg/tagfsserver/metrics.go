package tagfsserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/function61/tagfs/pkg/tagfstypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type operation string

const (
	opGet       operation = "get"
	opPut       operation = "put"
	opRemove    operation = "remove"
	opList      operation = "list"
	opSearch    operation = "search"
	opInfo      operation = "info"
	opIntegrity operation = "integrity"
)

type metricsController struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	operations   *prometheus.CounterVec // by outcome

	readBytes    prometheus.Counter
	writtenBytes prometheus.Counter

	danglingFiles prometheus.Gauge // as of last integrity scan
}

func newMetricsController(node *Node) *metricsController {
	reg := prometheus.NewRegistry()

	m := &metricsController{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagfs_http_requests_total",
			Help: "HTTP server's handled requests",
		}, []string{"code", "method"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagfs_operations_total",
			Help: "Node operations (incl. errors)",
		}, []string{"op", "outcome"}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagfs_read_bytes_total",
			Help: "File content bytes served",
		}),
		writtenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagfs_written_bytes_total",
			Help: "File content bytes stored",
		}),
		danglingFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagfs_integrity_dangling_files",
			Help: "Indexed files whose blob was missing in the last integrity scan",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.operations,
		m.readBytes,
		m.writtenBytes,
		m.danglingFiles,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tagfs_capacity_bytes",
			Help: "Advertised capacity",
		}, func() float64 {
			return float64(node.capacity.Status().Capacity)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tagfs_free_space_bytes",
			Help: "Capacity minus stored file sizes (negative when overcommitted)",
		}, func() float64 {
			return float64(node.capacity.Status().FreeSpace)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tagfs_capacity_overcommitted",
			Help: "1 if stored files exceed capacity",
		}, func() float64 {
			if node.capacity.Overcommitted() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tagfs_writes_in_flight",
			Help: "Hashes currently locked by put/remove (incl. waiters)",
		}, func() float64 {
			return float64(node.hashLocks.Len())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tagfs_files",
			Help: "Indexed files",
		}, func() float64 {
			count, err := node.fileCount()
			if err != nil {
				return 0
			}
			return float64(count)
		}),
	)

	return m
}

func (m *metricsController) observe(op operation, err error) {
	m.operations.With(prometheus.Labels{
		"op":      string(op),
		"outcome": outcomeOf(err),
	}).Inc()
}

func (m *metricsController) MetricsHTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instruments a HTTP handler
func (m *metricsController) WrapHTTPServer(actual http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := httpsnoop.CaptureMetrics(actual, w, r)

		m.httpRequests.With(prometheus.Labels{
			"code":   strconv.Itoa(stats.Code),
			"method": r.Method,
		}).Inc()
	})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tagfstypes.ErrNotFound):
		return "not_found"
	case errors.Is(err, tagfstypes.ErrDataIntegrity):
		return "data_integrity"
	case tagfstypes.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}
