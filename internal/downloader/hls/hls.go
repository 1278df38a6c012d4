// Package hls fetches an HLS stream and concatenates its segments into a
// single transport stream file.
package hls

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/failsafehttp"
	"github.com/grafov/m3u8"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

var (
	ErrNoVariant          = errors.New("master playlist has no variants")
	ErrNoSegments         = errors.New("playlist has no segments")
	ErrEncrypted          = errors.New("encrypted streams are not supported")
	ErrSegmentUnavailable = errors.New("segment unavailable")
)

// Segment is one media segment in playback order.
type Segment struct {
	URL      string
	Index    int
	Duration float64
}

// Progress reports finished and total segment counts.
type Progress func(done, total int)

// Downloader fetches segments with a small worker pool.
type Downloader struct {
	Client  *http.Client
	Workers int
	// Attempts bounds retries of the playlist requests.
	Attempts int
	// FragmentAttempts bounds retries of each segment request.
	FragmentAttempts int
	Backoff          time.Duration
	// SkipUnavailable drops segments that keep failing instead of failing
	// the whole download.
	SkipUnavailable bool
}

// NewDownloader returns a Downloader that speaks HTTP/1.1 only. CDNs tend
// to reset multiplexed HTTP/2 streams under many parallel segment fetches.
func NewDownloader() *Downloader {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Downloader{
		Client: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: transport,
		},
		Workers:          8,
		Attempts:         3,
		FragmentAttempts: 5,
		Backoff:          time.Second,
	}
}

// get performs a GET with headers, retrying transient failures up to
// retries times with a flat backoff. Non-200 responses are errors.
func (d *Downloader) get(ctx context.Context, rawURL string, headers map[string]string, retries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	policy := failsafehttp.NewRetryPolicyBuilder().
		WithMaxRetries(retries).
		WithDelay(d.Backoff).
		ReturnLastFailure().
		Build()

	resp, err := failsafehttp.NewRequest(req, d.Client, policy).Do()
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return io.ReadAll(resp.Body)
}

// Segments resolves manifestURL to the segment list of its best variant.
// A master playlist is followed to the variant with the highest bandwidth.
func (d *Downloader) Segments(ctx context.Context, manifestURL string, headers map[string]string) ([]Segment, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid manifest url")
	}

	for range 2 {
		body, err := d.get(ctx, base.String(), headers, d.Attempts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch playlist")
		}

		playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode playlist")
		}

		switch listType {
		case m3u8.MASTER:
			next, err := bestVariant(playlist.(*m3u8.MasterPlaylist), base)
			if err != nil {
				return nil, err
			}
			util.Debug("selected variant", "url", next.String())
			base = next
		case m3u8.MEDIA:
			return mediaSegments(playlist.(*m3u8.MediaPlaylist), base)
		}
	}
	return nil, errors.New("nested master playlists")
}

func bestVariant(master *m3u8.MasterPlaylist, base *url.URL) (*url.URL, error) {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return nil, ErrNoVariant
	}
	return base.Parse(best.URI)
}

func mediaSegments(media *m3u8.MediaPlaylist, base *url.URL) ([]Segment, error) {
	if media.Key != nil && media.Key.Method != "" && media.Key.Method != "NONE" {
		return nil, ErrEncrypted
	}

	var segments []Segment
	for _, s := range media.Segments {
		if s == nil {
			continue
		}
		if s.Key != nil && s.Key.Method != "" && s.Key.Method != "NONE" {
			return nil, ErrEncrypted
		}
		u, err := base.Parse(s.URI)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid segment uri %q", s.URI)
		}
		segments = append(segments, Segment{URL: u.String(), Index: len(segments), Duration: s.Duration})
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return segments, nil
}

// Download writes every segment of manifestURL, in order, to output.
func (d *Downloader) Download(ctx context.Context, manifestURL, output string, headers map[string]string, progress Progress) error {
	segments, err := d.Segments(ctx, manifestURL, headers)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0700); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	part := output + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}

	err = d.fetchAll(ctx, segments, headers, out, progress)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, output)
}

type result struct {
	index int
	data  []byte
	err   error
}

func (d *Downloader) fetchAll(ctx context.Context, segments []Segment, headers map[string]string, out io.Writer, progress Progress) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := max(d.Workers, 1)
	jobs := make(chan Segment)
	results := make(chan result, workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				data, err := d.get(ctx, seg.URL, headers, d.FragmentAttempts)
				select {
				case results <- result{index: seg.Index, data: data, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, seg := range segments {
			select {
			case jobs <- seg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	total := len(segments)
	if progress != nil {
		progress(0, total)
	}

	pending := make(map[int][]byte)
	next, done, skipped := 0, 0, 0
	for res := range results {
		if res.err != nil {
			if !d.SkipUnavailable {
				return fmt.Errorf("segment %d: %w: %w", res.index, ErrSegmentUnavailable, res.err)
			}
			util.Debug("skipping segment", "index", res.index, "err", res.err)
			skipped++
			res.data = nil
		}
		pending[res.index] = res.data

		for {
			data, ok := pending[next]
			if !ok {
				break
			}
			if _, err := out.Write(data); err != nil {
				return errors.Wrapf(err, "failed to write segment %d", next)
			}
			delete(pending, next)
			next++
		}

		done++
		if progress != nil {
			progress(done, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if done < total {
		return errors.Errorf("download stopped after %d/%d segments", done, total)
	}
	if skipped > 0 {
		util.Warnf("%d/%d segments were unavailable and skipped", skipped, total)
	}
	return nil
}
