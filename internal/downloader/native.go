package downloader

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/downloader/hls"
	"github.com/alvarorichard/9anime-dl/internal/util"
)

const (
	EngineYtDlp  = "ytdlp"
	EngineNative = "native"
)

// NativeContainer is the only container the native engine produces: it
// writes the transport stream segments as they arrive, without remuxing.
const NativeContainer = "ts"

// Native downloads HLS manifests in-process without yt-dlp or ffmpeg.
type Native struct {
	Interactive bool
	// newDownloader is replaced in tests.
	newDownloader func() *hls.Downloader
}

func NewNative(interactive bool) *Native {
	return &Native{Interactive: interactive, newDownloader: hls.NewDownloader}
}

// NewEngine returns the engine registered under name.
func NewEngine(name string, interactive bool) (Engine, error) {
	switch name {
	case "", EngineYtDlp:
		return NewYtDlp(interactive), nil
	case EngineNative:
		return NewNative(interactive), nil
	default:
		return nil, errors.Errorf("unknown download engine %q", name)
	}
}

func (n *Native) downloader(policy RetryPolicy) *hls.Downloader {
	d := n.newDownloader()
	d.Attempts = policy.Attempts
	d.FragmentAttempts = policy.FragmentAttempts
	d.Backoff = policy.Backoff
	d.SkipUnavailable = policy.SkipUnavailableFragments
	return d
}

func (n *Native) Download(ctx context.Context, job Job) error {
	if job.ManifestURL == "" {
		return errors.New("empty manifest URL")
	}
	d := n.downloader(job.Retry)

	if !n.Interactive {
		err := d.Download(ctx, job.ManifestURL, job.OutputPath, job.Headers, func(done, total int) {
			if done == total || done%50 == 0 {
				util.Debug("segments", "episode", job.Episode, "done", done, "total", total)
			}
		})
		return errors.Wrap(err, "hls")
	}

	err := showProgress(ctx, filepath.Base(job.OutputPath), func(report func(progressMsg)) error {
		return d.Download(ctx, job.ManifestURL, job.OutputPath, job.Headers, func(done, total int) {
			report(progressMsg{fragment: done, fragments: total})
		})
	})
	return errors.Wrap(err, "hls")
}
