// Package pipeline runs the per-episode stages over a batch and decides which
// failures skip an episode and which end the run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/util"
)

// Resolver turns an episode number into a manifest URL.
type Resolver interface {
	Resolve(ctx context.Context, episode int) (string, error)
}

// Downloader fetches a resolved episode to disk.
type Downloader interface {
	Existing(episode int) (string, bool)
	Dispatch(ctx context.Context, episode int, manifestURL string) (string, error)
}

type Severity int

const (
	// Soft failures skip the episode.
	Soft Severity = iota
	// Fatal failures stop the batch.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "soft"
}

// Classify reports how the batch treats err. A closed browser session and a
// cancelled run are fatal; every stage error is soft.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return Soft
	case errors.Is(err, browser.ErrSessionClosed), errors.Is(err, context.Canceled):
		return Fatal
	default:
		return Soft
	}
}

type Failure struct {
	Episode int
	Err     error
}

// Summary is the outcome of one batch.
type Summary struct {
	Downloaded []string
	Skipped    []int
	Failed     []Failure
}

func (s Summary) String() string {
	return fmt.Sprintf("%d downloaded, %d skipped, %d failed", len(s.Downloaded), len(s.Skipped), len(s.Failed))
}

type Runner struct {
	Resolver   Resolver
	Downloader Downloader
	Perf       *util.PerfTracker
}

// Run processes episodes in order. Soft failures are logged and recorded in
// the summary; the first fatal failure, or cancellation of ctx, stops the
// batch and is returned together with the partial summary.
func (r *Runner) Run(ctx context.Context, episodes []int) (Summary, error) {
	var summary Summary

	for i, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		util.Infof("Episode %d (%d/%d)", ep, i+1, len(episodes))

		if path, ok := r.Downloader.Existing(ep); ok {
			util.Info("Already downloaded, skipping", "episode", ep, "path", path)
			summary.Skipped = append(summary.Skipped, ep)
			continue
		}

		path, err := r.episode(ctx, ep)
		if err == nil {
			util.Info("Downloaded", "episode", ep, "path", path)
			summary.Downloaded = append(summary.Downloaded, path)
			continue
		}

		if ctx.Err() != nil || Classify(err) == Fatal {
			util.Error("Stopping batch", "episode", ep, "err", err)
			summary.Failed = append(summary.Failed, Failure{Episode: ep, Err: err})
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				return summary, errors.Wrap(ctxErr, err.Error())
			}
			return summary, err
		}

		util.Warn("Skipping episode", "episode", ep, "err", err)
		summary.Failed = append(summary.Failed, Failure{Episode: ep, Err: err})
	}

	return summary, nil
}

func (r *Runner) episode(ctx context.Context, ep int) (string, error) {
	timer := r.Perf.Start("resolve")
	manifestURL, err := r.Resolver.Resolve(ctx, ep)
	timer.Stop()
	if err != nil {
		return "", err
	}
	util.Debug("manifest resolved", "episode", ep, "url", manifestURL)

	timer = r.Perf.Start("download")
	path, err := r.Downloader.Dispatch(ctx, ep, manifestURL)
	timer.Stop()
	return path, err
}
