package downloader

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

var ErrDownload = errors.New("download failed")

// Dispatcher builds one job per episode and hands it to the engine.
type Dispatcher struct {
	Engine       Engine
	Target       Target
	SkipExisting bool
}

// Existing returns the episode's output path and whether a finished file is
// already there. It is always false when SkipExisting is off.
func (d *Dispatcher) Existing(episode int) (string, bool) {
	path := util.EpisodePath(d.Target.BaseDir, d.Target.Title, episode, d.Target.Total, d.Target.Container)
	if !d.SkipExisting {
		return path, false
	}
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}

// Dispatch downloads episode from manifestURL and returns the written path.
// Engine failures are reported as ErrDownload.
func (d *Dispatcher) Dispatch(ctx context.Context, episode int, manifestURL string) (string, error) {
	job := d.Target.Job(episode, manifestURL)
	util.Debug("dispatching download", "episode", episode, "output", job.OutputPath)

	if err := d.Engine.Download(ctx, job); err != nil {
		return "", fmt.Errorf("episode %d: %w: %w", episode, ErrDownload, err)
	}
	return job.OutputPath, nil
}
