package util

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PerfEnabled turns stage timing on. It follows debug mode.
var PerfEnabled bool

// StageMetric accumulates the time spent in one pipeline stage.
type StageMetric struct {
	Name  string
	Count int64
	Total time.Duration
	Last  time.Duration
}

func (m StageMetric) Average() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Count)
}

// PerfTracker records stage timings for one batch.
type PerfTracker struct {
	mu      sync.Mutex
	metrics map[string]*StageMetric
	started time.Time
}

func NewPerfTracker() *PerfTracker {
	return &PerfTracker{
		metrics: make(map[string]*StageMetric),
		started: time.Now(),
	}
}

// Timer is an in-flight measurement. A nil Timer is a no-op.
type Timer struct {
	name    string
	start   time.Time
	tracker *PerfTracker
}

// Start begins timing name. It returns nil when profiling is off.
func (pt *PerfTracker) Start(name string) *Timer {
	if pt == nil || !PerfEnabled {
		return nil
	}
	return &Timer{name: name, start: time.Now(), tracker: pt}
}

// Stop records the elapsed time and logs it at debug level.
func (t *Timer) Stop() time.Duration {
	if t == nil {
		return 0
	}
	d := time.Since(t.start)
	t.tracker.Record(t.name, d)
	Debugf("[PERF] %s took %v", t.name, d.Round(time.Millisecond))
	return d
}

func (pt *PerfTracker) Record(name string, d time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	m, ok := pt.metrics[name]
	if !ok {
		m = &StageMetric{Name: name}
		pt.metrics[name] = m
	}
	m.Count++
	m.Total += d
	m.Last = d
}

// Metrics returns a copy of every stage, slowest total first.
func (pt *PerfTracker) Metrics() []StageMetric {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	out := make([]StageMetric, 0, len(pt.metrics))
	for _, m := range pt.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].Name < out[j].Name
		}
		return out[i].Total > out[j].Total
	})
	return out
}

var (
	perfTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	perfMetricStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1D3"))

	perfSlowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	perfValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	perfSeparatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#636E72"))
)

// PrintReport writes the stage table to w. Nothing is written when profiling
// is off or no stage ran.
func (pt *PerfTracker) PrintReport(w io.Writer) {
	if pt == nil || !PerfEnabled {
		return
	}
	metrics := pt.Metrics()
	if len(metrics) == 0 {
		return
	}

	var report strings.Builder
	report.WriteString("\n")
	report.WriteString(perfTitleStyle.Render("⚡ STAGE TIMINGS"))
	report.WriteString("\n")
	report.WriteString(perfSeparatorStyle.Render(strings.Repeat("─", 60)))
	report.WriteString("\n")
	fmt.Fprintf(&report, "   %-20s %10s %8s %12s\n", "Stage", "Total", "Count", "Avg")

	for _, m := range metrics {
		avg := m.Average().Round(time.Millisecond).String()
		if m.Average() > 30*time.Second {
			avg = perfSlowStyle.Render(avg)
		} else {
			avg = perfValueStyle.Render(avg)
		}
		fmt.Fprintf(&report, "   %-20s %10s %8d %12s\n",
			perfMetricStyle.Render(m.Name),
			m.Total.Round(time.Millisecond),
			m.Count,
			avg)
	}

	report.WriteString(perfSeparatorStyle.Render(strings.Repeat("─", 60)))
	report.WriteString("\n")
	fmt.Fprintf(&report, "   Batch time: %s\n", time.Since(pt.started).Round(time.Millisecond))

	_, _ = io.WriteString(w, report.String())
}
