// Package metrics exposes Prometheus counters for a mirror run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mordilloSan/dirdump/listing"
)

// Recorder implements listing.Observer and mirror.Reporter on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	foldersDiscovered prometheus.Counter
	filesDiscovered   prometheus.Counter
	emptyFolders      prometheus.Counter
	filesTotal        *prometheus.CounterVec
	bytesDownloaded   prometheus.Counter
	treeFolders       prometheus.Gauge
	phaseDuration     *prometheus.HistogramVec
}

// New registers the mirror collectors plus the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		foldersDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirdump_folders_discovered_total",
			Help: "Folder listings fetched and parsed",
		}),
		filesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirdump_files_discovered_total",
			Help: "File entries found in folder listings",
		}),
		emptyFolders: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirdump_empty_folders_skipped_total",
			Help: "Folders skipped during materialization because they list no files",
		}),
		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirdump_files_total",
			Help: "Files handled during materialization by outcome",
		}, []string{"outcome"}),
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirdump_bytes_downloaded_total",
			Help: "Bytes written to the destination",
		}),
		treeFolders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dirdump_tree_folders",
			Help: "Folders in the tree of the current run",
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dirdump_phase_duration_seconds",
			Help:    "Duration of the discovery and materialization phases",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObservePhase records how long a phase took, in seconds.
func (r *Recorder) ObservePhase(phase string, seconds float64) {
	r.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

func (r *Recorder) FolderDiscovered(_ string, rec listing.FolderRecord) error {
	r.foldersDiscovered.Inc()
	r.treeFolders.Inc()
	r.filesDiscovered.Add(float64(len(rec.Files)))
	return nil
}

func (r *Recorder) FolderSkipped(string) error {
	r.emptyFolders.Inc()
	return nil
}

func (r *Recorder) FileSkipped(_, _, _ string) error {
	r.filesTotal.WithLabelValues("skipped").Inc()
	return nil
}

func (r *Recorder) FileDownloaded(_, _, _ string, size int64) error {
	r.filesTotal.WithLabelValues("downloaded").Inc()
	r.bytesDownloaded.Add(float64(size))
	return nil
}

func (r *Recorder) FileFailed(_, _ string, _ error) error {
	r.filesTotal.WithLabelValues("failed").Inc()
	return nil
}
