// Package metrics writes a one-shot Prometheus textfile-collector file
// after each pass, rather than running an in-process exporter — this tool
// never stays resident, so there is no /metrics endpoint to scrape.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// PassMetrics is the set of gauges/counters one pass reports.
type PassMetrics struct {
	Tuples    int
	Renamed   int
	Uploaded  int
	Destroyed int
	Deleted   int
	Warnings  int
	Failed    bool
	Duration  float64
}

// WriteTextfile renders m as a textfile-collector-compatible file at path,
// writing to a temp file in the same directory and renaming into place so
// a concurrent scrape never observes a partially written file.
func WriteTextfile(path string, m PassMetrics) error {
	reg := prometheus.NewRegistry()

	tuples := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_tuples", Help: "Source/remote tuples assessed in the last pass."})
	renamed := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_renamed_total", Help: "Snapshots renamed in the last pass."})
	uploaded := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_uploaded_total", Help: "Backups uploaded in the last pass."})
	destroyed := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_destroyed_total", Help: "Snapshots destroyed in the last pass."})
	deleted := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_deleted_total", Help: "Backups deleted in the last pass."})
	warnings := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_warnings", Help: "Non-fatal warnings raised in the last pass."})
	failed := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_failed", Help: "1 if the last pass ended in an unhandled error, else 0."})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapvault_pass_duration_seconds", Help: "Wall-clock duration of the last pass."})

	reg.MustRegister(tuples, renamed, uploaded, destroyed, deleted, warnings, failed, duration)

	tuples.Set(float64(m.Tuples))
	renamed.Set(float64(m.Renamed))
	uploaded.Set(float64(m.Uploaded))
	destroyed.Set(float64(m.Destroyed))
	deleted.Set(float64(m.Deleted))
	warnings.Set(float64(m.Warnings))
	duration.Set(m.Duration)
	if m.Failed {
		failed.Set(1)
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*.tmp")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := expfmt.NewEncoder(tmp, expfmt.FmtText)
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			tmp.Close()
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("metrics: rename into place: %w", err)
	}
	return nil
}
