package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

type statusMsg string

type tickMsg time.Time

// progressMsg carries a byte count reported by the engine.
type progressMsg struct {
	received   int64
	totalBytes int64
	fragment   int
	fragments  int
}

// progressModel renders one download's progress bar.
type progressModel struct {
	progress   progress.Model
	label      string
	totalBytes int64
	received   int64
	fragment   int
	fragments  int
	status     string
	done       bool
	mu         sync.Mutex
}

func newProgressModel(label string) *progressModel {
	return &progressModel{
		progress: progress.New(progress.WithDefaultGradient()),
		label:    label,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.mu.Lock()
		done := m.done
		m.mu.Unlock()
		if done {
			return m, tea.Quit
		}
		return m, tickCmd()
	case statusMsg:
		m.mu.Lock()
		m.status = string(msg)
		m.mu.Unlock()
		return m, nil
	case progressMsg:
		m.mu.Lock()
		m.received = msg.received
		m.totalBytes = msg.totalBytes
		m.fragment = msg.fragment
		m.fragments = msg.fragments
		percent := m.percent()
		m.mu.Unlock()
		return m, m.progress.SetPercent(percent)
	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		m.progress = newModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// percent prefers fragment counts: HLS byte totals are estimates that grow as
// fragments arrive. Callers hold mu.
func (m *progressModel) percent() float64 {
	switch {
	case m.fragments > 0:
		return float64(m.fragment) / float64(m.fragments)
	case m.totalBytes > 0:
		return float64(m.received) / float64(m.totalBytes)
	default:
		return 0
	}
}

func (m *progressModel) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.status
	if status == "" {
		status = fmt.Sprintf("%.1f%%", m.percent()*100)
		if m.totalBytes > 0 {
			status += " of " + formatBytes(m.totalBytes)
		}
		if m.fragments > 0 {
			status += fmt.Sprintf(" (fragment %d/%d)", m.fragment, m.fragments)
		}
	}

	return fmt.Sprintf("%s\n%s\n%s\n", m.label, m.progress.View(), status)
}

func (m *progressModel) finish() {
	m.mu.Lock()
	m.done = true
	m.mu.Unlock()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// showProgress runs download in the background while a bubbletea program
// renders what it reports. The program does not read the keyboard so Ctrl+C
// still reaches the process as SIGINT and cancels ctx.
func showProgress(ctx context.Context, label string, download func(report func(progressMsg)) error) error {
	m := newProgressModel(label)
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	downloadComplete := make(chan error, 1)
	go func() {
		err := download(func(msg progressMsg) { p.Send(msg) })
		if err == nil {
			p.Send(statusMsg("Download completed!"))
		} else {
			p.Send(statusMsg("Download failed"))
		}
		m.finish()
		downloadComplete <- err
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		util.Debugf("progress display error: %v", err)
	}
	return <-downloadComplete
}
