package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// WriteText prints the summary for a terminal.
func (s *Summary) WriteText(w io.Writer) error {
	status := "ok"
	if s.Error != "" {
		status = "FAILED"
	}
	mode := ""
	if s.Simulate {
		mode = " (simulated)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s%s: %s in %s\n", s.Command, mode, status, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  run %s, started %s\n\n", s.RunID, humanize.Time(s.StartedAt))

	names := s.Names()
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  %-*s %s\n", width, name, humanize.Comma(int64(s.Counts[name])))
		if sample := s.Samples[name]; len(sample) > 0 {
			more := ""
			if s.Counts[name] > len(sample) {
				more = fmt.Sprintf(" and %s more", humanize.Comma(int64(s.Counts[name]-len(sample))))
			}
			fmt.Fprintf(&b, "  %-*s   e.g. %s%s\n", width, "", strings.Join(sample, ", "), more)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "\n  error: %s\n", s.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Registry returns a registry holding the summary as gauges:
// kbsync_count{command,counter}, kbsync_run_duration_seconds and
// kbsync_run_success.
func (s *Summary) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	counts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kbsync_count",
		Help: "Per-category entity counts of the last run.",
	}, []string{"command", "counter"})
	for name, n := range s.Counts {
		counts.WithLabelValues(s.Command, name).Set(float64(n))
	}

	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kbsync_run_duration_seconds",
		Help: "Wall time of the last run.",
	}, []string{"command"})
	duration.WithLabelValues(s.Command).Set(s.Duration().Seconds())

	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kbsync_run_success",
		Help: "1 if the last run finished without a fatal error.",
	}, []string{"command"})
	ok := 1.0
	if s.Error != "" {
		ok = 0
	}
	success.WithLabelValues(s.Command).Set(ok)

	reg.MustRegister(counts, duration, success)
	return reg
}

// WriteMetrics writes the summary in the node-exporter textfile format.
func (s *Summary) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, s.Registry()); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
