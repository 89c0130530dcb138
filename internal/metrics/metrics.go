// Package metrics exposes the Prometheus counters/gauges and pprof
// endpoints used to observe a running fetch pipeline.
package metrics

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	FetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fetch_requests_total", Help: "Fetch attempts by outcome"},
		[]string{"outcome"},
	)
	ImagesSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "images_saved_total", Help: "Images successfully decoded, resized, and written"},
	)
	ImagesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "images_failed_total", Help: "Per-record failures by stage"},
		[]string{"stage"},
	)
	SavingInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "saving_inflight", Help: "Image pipeline runs (decode through write) currently in progress"},
	)
	ImageBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "image_bytes_total", Help: "Total source bytes fetched"},
	)
	FetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "fetch_duration_seconds", Help: "Time spent per fetch attempt", Buckets: prometheus.DefBuckets},
	)
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FetchRequestsTotal,
			ImagesSavedTotal,
			ImagesFailedTotal,
			SavingInflight,
			ImageBytesTotal,
			FetchDurationSeconds,
		)
	})
}

// Serve starts a background HTTP server exposing /metrics and the pprof
// debug endpoints at addr. A no-op when addr is empty.
func Serve(addr string) {
	if addr == "" {
		return
	}
	register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		slog.Info("metrics/pprof listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "err", err)
		}
	}()
}
