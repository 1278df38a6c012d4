package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/downloader"
	"github.com/alvarorichard/9anime-dl/internal/scraper"
	"github.com/alvarorichard/9anime-dl/internal/unpacker"
	"github.com/alvarorichard/9anime-dl/internal/util"
	"github.com/alvarorichard/9anime-dl/internal/waitfor"
)

type fakeResolver struct {
	failures map[int]error
	calls    []int
	// onResolve runs before the result is returned.
	onResolve func(ep int)
}

func (f *fakeResolver) Resolve(_ context.Context, ep int) (string, error) {
	f.calls = append(f.calls, ep)
	if f.onResolve != nil {
		f.onResolve(ep)
	}
	if err := f.failures[ep]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.example.com/%d/master.m3u8", ep), nil
}

type fakeDownloader struct {
	existing   map[int]bool
	failures   map[int]error
	dispatched []int
}

func (f *fakeDownloader) Existing(ep int) (string, bool) {
	return fmt.Sprintf("show - %02d.mp4", ep), f.existing[ep]
}

func (f *fakeDownloader) Dispatch(_ context.Context, ep int, url string) (string, error) {
	f.dispatched = append(f.dispatched, ep)
	if err := f.failures[ep]; err != nil {
		return "", fmt.Errorf("episode %d: %w: %w", ep, downloader.ErrDownload, err)
	}
	return fmt.Sprintf("show - %02d.mp4", ep), nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{name: "nil", err: nil, want: Soft},
		{name: "server unavailable", err: fmt.Errorf("%w: no sub server", scraper.ErrServerUnavailable), want: Soft},
		{name: "navigation", err: fmt.Errorf("episode 2: %w: %w", scraper.ErrNavigation, waitfor.ErrTimeout), want: Soft},
		{name: "extraction", err: fmt.Errorf("%w: %w", scraper.ErrExtraction, unpacker.ErrNotPacked), want: Soft},
		{name: "timeout", err: errors.Wrap(waitfor.ErrTimeout, "player iframe"), want: Soft},
		{name: "download", err: fmt.Errorf("%w: exit status 1", downloader.ErrDownload), want: Soft},
		{name: "session closed", err: fmt.Errorf("episode 2: %w: %w", scraper.ErrNavigation, browser.ErrSessionClosed), want: Fatal},
		{name: "cancelled", err: errors.Wrap(context.Canceled, "download"), want: Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRunIsolatesSoftFailures(t *testing.T) {
	tests := []struct {
		name       string
		resolver   *fakeResolver
		downloader *fakeDownloader
		dispatched []int
	}{
		{
			name: "server unavailable",
			resolver: &fakeResolver{failures: map[int]error{
				2: fmt.Errorf("%w: no dub server matching \"Filemoon\"", scraper.ErrServerUnavailable),
			}},
			downloader: &fakeDownloader{},
			dispatched: []int{1, 3},
		},
		{
			name:     "download error",
			resolver: &fakeResolver{},
			downloader: &fakeDownloader{failures: map[int]error{
				2: errors.New("fragment 17 not found"),
			}},
			dispatched: []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Runner{Resolver: tt.resolver, Downloader: tt.downloader}

			summary, err := r.Run(context.Background(), []int{1, 2, 3})

			require.NoError(t, err)
			assert.Equal(t, []int{1, 2, 3}, tt.resolver.calls)
			assert.Equal(t, tt.dispatched, tt.downloader.dispatched)
			assert.Equal(t, []string{"show - 01.mp4", "show - 03.mp4"}, summary.Downloaded)
			require.Len(t, summary.Failed, 1)
			assert.Equal(t, 2, summary.Failed[0].Episode)
			assert.Equal(t, "2 downloaded, 0 skipped, 1 failed", summary.String())
		})
	}
}

func TestRunSkipsExistingBeforeResolving(t *testing.T) {
	res := &fakeResolver{}
	dl := &fakeDownloader{existing: map[int]bool{1: true}}
	r := &Runner{Resolver: res, Downloader: dl}

	summary, err := r.Run(context.Background(), []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.calls)
	assert.Equal(t, []int{1}, summary.Skipped)
	assert.Equal(t, []string{"show - 02.mp4"}, summary.Downloaded)
}

func TestRunStopsOnClosedSession(t *testing.T) {
	res := &fakeResolver{failures: map[int]error{
		2: fmt.Errorf("episode 2: %w: %w", scraper.ErrNavigation, browser.ErrSessionClosed),
	}}
	dl := &fakeDownloader{}
	r := &Runner{Resolver: res, Downloader: dl}

	summary, err := r.Run(context.Background(), []int{1, 2, 3})

	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrSessionClosed))
	assert.Equal(t, []int{1, 2}, res.calls)
	assert.Equal(t, []string{"show - 01.mp4"}, summary.Downloaded)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 2, summary.Failed[0].Episode)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := &fakeResolver{
		failures: map[int]error{2: errors.Wrap(waitfor.ErrTimeout, "player iframe")},
		onResolve: func(ep int) {
			if ep == 2 {
				cancel()
			}
		},
	}
	r := &Runner{Resolver: res, Downloader: &fakeDownloader{}}

	_, err := r.Run(ctx, []int{1, 2, 3})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []int{1, 2}, res.calls)
}

func TestRunRecordsStageTimings(t *testing.T) {
	util.PerfEnabled = true
	t.Cleanup(func() { util.PerfEnabled = false })

	perf := util.NewPerfTracker()
	r := &Runner{Resolver: &fakeResolver{}, Downloader: &fakeDownloader{}, Perf: perf}

	_, err := r.Run(context.Background(), []int{1, 2})
	require.NoError(t, err)

	metrics := perf.Metrics()
	require.Len(t, metrics, 2)
	names := []string{metrics[0].Name, metrics[1].Name}
	assert.ElementsMatch(t, []string{"resolve", "download"}, names)
	for _, m := range metrics {
		assert.Equal(t, int64(2), m.Count)
		assert.GreaterOrEqual(t, m.Total, time.Duration(0))
	}
}
