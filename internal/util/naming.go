package util

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var separatorRun = regexp.MustCompile(`[/\\]+`)

// SanitizeTitle replaces path separators in a show title with spaces so the
// title can be used as a single directory and file name component.
func SanitizeTitle(title string) string {
	return strings.TrimSpace(separatorRun.ReplaceAllString(title, " "))
}

// PadEpisode zero-pads the episode number to the digit count of total.
func PadEpisode(episode, total int) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("%0*d", width, episode)
}

// EpisodeFilename returns "<title> - <NN>.<container>".
func EpisodeFilename(title string, episode, total int, container string) string {
	return fmt.Sprintf("%s - %s.%s", SanitizeTitle(title), PadEpisode(episode, total), container)
}

// EpisodePath returns "<title>/<title> - <NN>.<container>" relative to baseDir.
func EpisodePath(baseDir, title string, episode, total int, container string) string {
	return filepath.Join(baseDir, SanitizeTitle(title), EpisodeFilename(title, episode, total, container))
}
