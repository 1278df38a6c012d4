// Package downloader turns a resolved manifest URL into a media file on disk.
package downloader

import (
	"fmt"
	"strings"
	"time"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

// RetryPolicy bounds how hard the engine tries before failing a job.
type RetryPolicy struct {
	Attempts         int
	FragmentAttempts int
	// Backoff is a flat pause between attempts.
	Backoff time.Duration
	// SkipUnavailableFragments keeps going when a fragment is gone for good.
	// Off by default: a missing fragment fails the job.
	SkipUnavailableFragments bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:         30,
		FragmentAttempts: 30,
		Backoff:          time.Second,
	}
}

// Job is everything the engine needs to fetch one episode.
type Job struct {
	Episode     int
	ManifestURL string
	OutputPath  string
	Headers     map[string]string
	Retry       RetryPolicy
}

// HeaderLines renders Headers as "Name:value" pairs in a stable order.
func (j Job) HeaderLines() []string {
	lines := make([]string, 0, len(j.Headers))
	for _, name := range []string{"User-Agent", "Referer"} {
		if v, ok := j.Headers[name]; ok {
			lines = append(lines, name+":"+v)
		}
	}
	for name, v := range j.Headers {
		if name == "User-Agent" || name == "Referer" {
			continue
		}
		lines = append(lines, name+":"+v)
	}
	return lines
}

// Target describes where and how every episode of one show is saved.
type Target struct {
	BaseDir   string
	Title     string
	Total     int
	Container string
	UserAgent string
	Referer   string
	Retry     RetryPolicy
}

// Job builds a fresh job for episode.
func (t Target) Job(episode int, manifestURL string) Job {
	return Job{
		Episode:     episode,
		ManifestURL: manifestURL,
		OutputPath:  util.EpisodePath(t.BaseDir, t.Title, episode, t.Total, t.Container),
		Headers: map[string]string{
			"User-Agent": t.UserAgent,
			"Referer":    t.Referer,
		},
		Retry: t.Retry,
	}
}

// Label is the short episode name shown in progress output.
func (t Target) Label(episode int) string {
	return fmt.Sprintf("%s - %s", util.SanitizeTitle(t.Title), util.PadEpisode(episode, t.Total))
}

// outputTemplate escapes a literal path for yt-dlp's output template syntax.
func outputTemplate(path string) string {
	return strings.ReplaceAll(path, "%", "%%")
}
