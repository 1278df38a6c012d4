package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget(dir string) Target {
	return Target{
		BaseDir:   dir,
		Title:     "Attack/Titan",
		Total:     24,
		Container: "mp4",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Referer:   "https://filemoon.sx/",
		Retry:     DefaultRetryPolicy(),
	}
}

func TestTargetJob(t *testing.T) {
	job := testTarget("downloads").Job(3, "https://cdn.example.com/master.m3u8")

	assert.Equal(t, 3, job.Episode)
	assert.Equal(t, "https://cdn.example.com/master.m3u8", job.ManifestURL)
	assert.Equal(t, "downloads/Attack Titan/Attack Titan - 03.mp4", filepath.ToSlash(job.OutputPath))
	assert.Equal(t, map[string]string{
		"User-Agent": "Mozilla/5.0 (X11; Linux x86_64)",
		"Referer":    "https://filemoon.sx/",
	}, job.Headers)
	assert.Equal(t, RetryPolicy{Attempts: 30, FragmentAttempts: 30, Backoff: time.Second}, job.Retry)
}

func TestTargetJobsAreIndependent(t *testing.T) {
	target := testTarget("")
	first := target.Job(1, "a")
	first.Headers["Referer"] = "changed"

	second := target.Job(2, "b")

	assert.Equal(t, "https://filemoon.sx/", second.Headers["Referer"])
}

func TestTargetLabel(t *testing.T) {
	assert.Equal(t, "Attack Titan - 07", testTarget("").Label(7))
}

func TestHeaderLines(t *testing.T) {
	job := Job{Headers: map[string]string{
		"Referer":    "https://filemoon.sx/",
		"Origin":     "https://filemoon.sx",
		"User-Agent": "UA",
	}}

	assert.Equal(t, []string{
		"User-Agent:UA",
		"Referer:https://filemoon.sx/",
		"Origin:https://filemoon.sx",
	}, job.HeaderLines())
}

func TestOutputTemplate(t *testing.T) {
	assert.Equal(t, "100%% Pure/100%% Pure - 01.mp4", outputTemplate("100% Pure/100% Pure - 01.mp4"))
	assert.Equal(t, "plain.mp4", outputTemplate("plain.mp4"))
}

func TestCommandFlags(t *testing.T) {
	job := testTarget("out").Job(12, "https://cdn.example.com/master.m3u8")

	cfg := command(job).GetFlagConfig()

	require.NotNil(t, cfg.Filesystem.Output)
	assert.Equal(t, filepath.Join("out", "Attack Titan", "Attack Titan - 12.mp4"), *cfg.Filesystem.Output)
	require.NotNil(t, cfg.Download.Retries)
	assert.Equal(t, "30", *cfg.Download.Retries)
	require.NotNil(t, cfg.Download.FragmentRetries)
	assert.Equal(t, "30", *cfg.Download.FragmentRetries)
	assert.Equal(t, []string{"http:1", "fragment:1"}, cfg.Download.RetrySleep)
	require.NotNil(t, cfg.Download.AbortOnUnavailableFragments)
	assert.True(t, *cfg.Download.AbortOnUnavailableFragments)
	assert.Nil(t, cfg.Download.SkipUnavailableFragments)
	assert.Equal(t, []string{
		"User-Agent:Mozilla/5.0 (X11; Linux x86_64)",
		"Referer:https://filemoon.sx/",
	}, cfg.Workarounds.AddHeaders)
}

func TestCommandFlagsCustomPolicy(t *testing.T) {
	job := Job{
		OutputPath: "a.mp4",
		Retry: RetryPolicy{
			Attempts:                 3,
			FragmentAttempts:         5,
			Backoff:                  1500 * time.Millisecond,
			SkipUnavailableFragments: true,
		},
	}

	cfg := command(job).GetFlagConfig()

	assert.Equal(t, "3", *cfg.Download.Retries)
	assert.Equal(t, "5", *cfg.Download.FragmentRetries)
	assert.Equal(t, []string{"http:1.5", "fragment:1.5"}, cfg.Download.RetrySleep)
	assert.Nil(t, cfg.Download.AbortOnUnavailableFragments)
	require.NotNil(t, cfg.Download.SkipUnavailableFragments)
	assert.Empty(t, cfg.Workarounds.AddHeaders)
}

type fakeEngine struct {
	jobs []Job
	err  error
}

func (f *fakeEngine) Download(_ context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func TestDispatch(t *testing.T) {
	engine := &fakeEngine{}
	d := &Dispatcher{Engine: engine, Target: testTarget("dl")}

	path, err := d.Dispatch(context.Background(), 2, "https://cdn.example.com/2.m3u8")

	require.NoError(t, err)
	assert.Equal(t, "dl/Attack Titan/Attack Titan - 02.mp4", filepath.ToSlash(path))
	require.Len(t, engine.jobs, 1)
	assert.Equal(t, "https://cdn.example.com/2.m3u8", engine.jobs[0].ManifestURL)
}

func TestDispatchWrapsEngineFailure(t *testing.T) {
	boom := errors.New("exit code 1")
	d := &Dispatcher{Engine: &fakeEngine{err: boom}, Target: testTarget("dl")}

	_, err := d.Dispatch(context.Background(), 5, "https://cdn.example.com/5.m3u8")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownload))
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "episode 5")
}

func TestExisting(t *testing.T) {
	dir := t.TempDir()
	target := testTarget(dir)
	done := target.Job(1, "").OutputPath
	require.NoError(t, os.MkdirAll(filepath.Dir(done), 0700))
	require.NoError(t, os.WriteFile(done, []byte("media"), 0600))

	d := &Dispatcher{Target: target, SkipExisting: true}

	path, ok := d.Existing(1)
	assert.True(t, ok)
	assert.Equal(t, done, path)

	_, ok = d.Existing(2)
	assert.False(t, ok)

	d.SkipExisting = false
	_, ok = d.Existing(1)
	assert.False(t, ok)
}

func TestYtDlpRejectsEmptyManifest(t *testing.T) {
	err := NewYtDlp(false).Download(context.Background(), Job{OutputPath: "x.mp4"})
	assert.EqualError(t, err, "empty manifest URL")
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel("Attack Titan - 01.mp4")

	_, cmd := m.Update(progressMsg{received: 512 * 1024, totalBytes: 2 * 1024 * 1024})
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Attack Titan - 01.mp4")
	assert.Contains(t, view, "25.0% of 2.0 MiB")

	m.Update(progressMsg{received: 100, totalBytes: 1000, fragment: 30, fragments: 40})
	assert.Contains(t, m.View(), "75.0%")
	assert.Contains(t, m.View(), "fragment 30/40")

	m.Update(statusMsg("Download completed!"))
	assert.True(t, strings.HasSuffix(m.View(), "Download completed!\n"))

	_, cmd = m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)

	m.finish()
	_, cmd = m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, _ = m.Update(progress.FrameMsg{})
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.n))
	}
}
