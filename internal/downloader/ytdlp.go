package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

// Engine fetches a job's manifest and writes the media file.
type Engine interface {
	Download(ctx context.Context, job Job) error
}

// YtDlp downloads HLS manifests with yt-dlp, installing it on first use.
type YtDlp struct {
	// Interactive renders a live progress bar instead of log lines.
	Interactive bool

	installOnce sync.Once
	installErr  error
}

func NewYtDlp(interactive bool) *YtDlp {
	return &YtDlp{Interactive: interactive}
}

func (y *YtDlp) install(ctx context.Context) error {
	y.installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			y.installErr = errors.Wrap(err, "failed to install yt-dlp")
			return
		}
		// hlsnative output is remuxed by ffmpeg; a system copy works too
		if _, err := ytdlp.InstallFFmpeg(ctx, nil); err != nil {
			util.Debugf("ffmpeg not installed by yt-dlp helper: %v", err)
		}
	})
	return y.installErr
}

// command maps a job onto yt-dlp flags.
func command(job Job) *ytdlp.Command {
	cmd := ytdlp.New().
		Output(outputTemplate(job.OutputPath)).
		Retries(strconv.Itoa(job.Retry.Attempts)).
		FragmentRetries(strconv.Itoa(job.Retry.FragmentAttempts))

	if job.Retry.Backoff > 0 {
		secs := strconv.FormatFloat(job.Retry.Backoff.Seconds(), 'f', -1, 64)
		cmd = cmd.RetrySleep("http:" + secs).RetrySleep("fragment:" + secs)
	}
	if job.Retry.SkipUnavailableFragments {
		cmd = cmd.SkipUnavailableFragments()
	} else {
		cmd = cmd.AbortOnUnavailableFragments()
	}

	for _, header := range job.HeaderLines() {
		cmd = cmd.AddHeaders(header)
	}
	return cmd
}

func (y *YtDlp) Download(ctx context.Context, job Job) error {
	if job.ManifestURL == "" {
		return errors.New("empty manifest URL")
	}
	if err := y.install(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0700); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	cmd := command(job)
	var err error
	if y.Interactive {
		err = runWithProgress(ctx, cmd, job)
	} else {
		err = runQuiet(ctx, cmd, job)
	}
	if err != nil {
		return err
	}

	if _, err := os.Stat(job.OutputPath); err != nil {
		return errors.Errorf("file was not created at %s", job.OutputPath)
	}
	return nil
}

func runQuiet(ctx context.Context, cmd *ytdlp.Command, job Job) error {
	cmd = cmd.ProgressFunc(5*time.Second, func(u ytdlp.ProgressUpdate) {
		util.Debug("yt-dlp progress", "episode", job.Episode, "status", u.Status, "percent", u.PercentString())
	})
	if _, err := cmd.Run(ctx, job.ManifestURL); err != nil {
		return errors.Wrap(err, "yt-dlp")
	}
	return nil
}

func runWithProgress(ctx context.Context, cmd *ytdlp.Command, job Job) error {
	err := showProgress(ctx, filepath.Base(job.OutputPath), func(report func(progressMsg)) error {
		cmd = cmd.ProgressFunc(200*time.Millisecond, func(u ytdlp.ProgressUpdate) {
			report(progressMsg{
				received:   int64(u.DownloadedBytes),
				totalBytes: int64(u.TotalBytes),
				fragment:   u.FragmentIndex,
				fragments:  u.FragmentCount,
			})
		})
		_, err := cmd.Run(ctx, job.ManifestURL)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "yt-dlp")
	}
	return nil
}
