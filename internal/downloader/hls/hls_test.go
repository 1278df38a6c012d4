package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const master = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
high/index.m3u8
`

const media = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXTINF:4.5,
seg2.ts
#EXT-X-ENDLIST
`

type streamServer struct {
	*httptest.Server
	missing   map[string]bool
	flaky     atomic.Int32 // 503s served for seg1.ts before it succeeds
	mu        sync.Mutex
	userAgent []string
}

func newStreamServer(t *testing.T) *streamServer {
	s := &streamServer{missing: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/hls/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, master)
	})
	mux.HandleFunc("/hls/high/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, media)
	})
	mux.HandleFunc("/hls/high/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.userAgent = append(s.userAgent, r.Header.Get("User-Agent"))
		s.mu.Unlock()

		name := filepath.Base(r.URL.Path)
		if s.missing[name] {
			http.NotFound(w, r)
			return
		}
		if name == "seg1.ts" && s.flaky.Load() > 0 {
			s.flaky.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprintf(w, "[%s]", name)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestDownloader(s *streamServer) *Downloader {
	d := NewDownloader()
	d.Client = s.Client()
	d.Backoff = 0
	d.Workers = 2
	return d
}

var headers = map[string]string{"User-Agent": "test-agent", "Referer": "https://filemoon.sx/"}

func TestSegmentsFollowsBestVariant(t *testing.T) {
	s := newStreamServer(t)
	d := newTestDownloader(s)

	segments, err := d.Segments(context.Background(), s.URL+"/hls/master.m3u8", headers)

	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, s.URL+"/hls/high/seg0.ts", segments[0].URL)
	assert.Equal(t, s.URL+"/hls/high/seg2.ts", segments[2].URL)
	assert.Equal(t, 2, segments[2].Index)
	assert.InDelta(t, 4.5, segments[2].Duration, 0.001)
}

func TestDownloadConcatenatesInOrder(t *testing.T) {
	s := newStreamServer(t)
	d := newTestDownloader(s)
	output := filepath.Join(t.TempDir(), "Show", "Show - 01.ts")

	var last [2]int
	err := d.Download(context.Background(), s.URL+"/hls/master.m3u8", output, headers, func(done, total int) {
		last = [2]int{done, total}
	})

	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "[seg0.ts][seg1.ts][seg2.ts]", string(data))
	assert.Equal(t, [2]int{3, 3}, last)
	assert.NoFileExists(t, output+".part")
	for _, ua := range s.userAgent {
		assert.Equal(t, "test-agent", ua)
	}
}

func TestDownloadRetriesTransientSegmentErrors(t *testing.T) {
	s := newStreamServer(t)
	s.flaky.Store(2)
	d := newTestDownloader(s)
	output := filepath.Join(t.TempDir(), "out.ts")

	require.NoError(t, d.Download(context.Background(), s.URL+"/hls/master.m3u8", output, headers, nil))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "[seg0.ts][seg1.ts][seg2.ts]", string(data))
}

func TestDownloadUnavailableSegment(t *testing.T) {
	t.Run("fails the job", func(t *testing.T) {
		s := newStreamServer(t)
		s.missing["seg1.ts"] = true
		d := newTestDownloader(s)
		output := filepath.Join(t.TempDir(), "out.ts")

		err := d.Download(context.Background(), s.URL+"/hls/master.m3u8", output, headers, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSegmentUnavailable))
		assert.NoFileExists(t, output)
		assert.NoFileExists(t, output+".part")
	})

	t.Run("skipped when allowed", func(t *testing.T) {
		s := newStreamServer(t)
		s.missing["seg1.ts"] = true
		d := newTestDownloader(s)
		d.SkipUnavailable = true
		output := filepath.Join(t.TempDir(), "out.ts")

		require.NoError(t, d.Download(context.Background(), s.URL+"/hls/master.m3u8", output, headers, nil))

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, "[seg0.ts][seg2.ts]", string(data))
	})
}

func TestSegmentsRejectsMissingPlaylist(t *testing.T) {
	s := newStreamServer(t)
	d := newTestDownloader(s)

	_, err := d.Segments(context.Background(), s.URL+"/hls/nope.m3u8", headers)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
