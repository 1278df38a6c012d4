// Package scraper walks the anime page's player UI in a real browser: it
// switches episodes, picks the streaming server, brings up the embedded
// player and reads the manifest URL out of its packed setup script.
package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/pacing"
	"github.com/alvarorichard/9anime-dl/internal/unpacker"
	"github.com/alvarorichard/9anime-dl/internal/util"
	"github.com/alvarorichard/9anime-dl/internal/waitfor"
)

var (
	ErrServerUnavailable = errors.New("server unavailable")
	ErrNavigation        = errors.New("episode navigation failed")
	ErrMissingElement    = errors.New("element not found")
)

// Kind is the audio track of a server list.
type Kind string

const (
	Sub Kind = "sub"
	Dub Kind = "dub"
)

// Selectors locate the parts of the page the scraper interacts with.
type Selectors struct {
	Title          string
	EpisodeLinks   string
	ActiveEpisode  string
	EpisodeFilter  string
	EpisodeMatch   string
	ServerEntries  string // %s is replaced by the Kind
	Player         string
	PlayerFrame    string
	PackedScript   string
	EpisodeNumAttr string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Title:          "h1.title",
		EpisodeLinks:   "a[data-num]",
		ActiveEpisode:  "a.active",
		EpisodeFilter:  "div.filter.name > input",
		EpisodeMatch:   "a.highlight",
		ServerEntries:  "div.servers > div[data-type='%s'] > ul > li",
		Player:         "div#player",
		PlayerFrame:    "div#player > iframe",
		PackedScript:   unpacker.ScriptSelector,
		EpisodeNumAttr: "data-num",
	}
}

// Options tune a Scraper. Zero pauses are valid; waits with a zero Timeout
// poll until the context is done.
type Options struct {
	Selectors Selectors
	Provider  string
	Kind      Kind

	InputPause time.Duration
	ClickPause time.Duration
	Settle     waitfor.Config
	Frame      waitfor.Config

	// Pause defaults to pacing.Sleep.
	Pause func(context.Context, time.Duration) error
}

func DefaultOptions() Options {
	return Options{
		Selectors:  DefaultSelectors(),
		Provider:   "Filemoon",
		Kind:       Sub,
		InputPause: pacing.Seconds(1.5),
		ClickPause: pacing.Seconds(2.5),
		Settle:     waitfor.Config{Timeout: 30 * time.Second, Interval: pacing.Seconds(1.5)},
		Frame:      waitfor.Config{Timeout: 2 * time.Minute, Interval: pacing.Seconds(2.5)},
	}
}

// Scraper drives one browser tab. It is not safe for concurrent use.
type Scraper struct {
	driver browser.Driver
	opts   Options
	// typed is set once the episode filter has been filled in.
	typed bool
}

func New(driver browser.Driver, opts Options) *Scraper {
	if opts.Pause == nil {
		opts.Pause = pacing.Sleep
	}
	if opts.Settle.Pause == nil {
		opts.Settle.Pause = opts.Pause
	}
	if opts.Frame.Pause == nil {
		opts.Frame.Pause = opts.Pause
	}
	if opts.Kind == "" {
		opts.Kind = Sub
	}
	return &Scraper{driver: driver, opts: opts}
}

// Title returns the show title from the page heading.
func (s *Scraper) Title() (string, error) {
	el, err := s.require(s.opts.Selectors.Title)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// TotalEpisodes returns the highest episode number in the episode list.
func (s *Scraper) TotalEpisodes() (int, error) {
	links, err := s.driver.FindAll(s.opts.Selectors.EpisodeLinks)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, link := range links {
		n, ok, err := s.episodeNumber(link)
		if err != nil {
			return 0, err
		}
		if ok && n > total {
			total = n
		}
	}
	if total == 0 {
		return 0, errors.Wrap(ErrMissingElement, "episode list")
	}
	return total, nil
}

func (s *Scraper) episodeNumber(el browser.Element) (int, bool, error) {
	v, ok, err := el.Attribute(s.opts.Selectors.EpisodeNumAttr)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		util.Debugf("ignoring episode link with %s=%q", s.opts.Selectors.EpisodeNumAttr, v)
		return 0, false, nil
	}
	return n, true, nil
}

// require finds selector in the current scope and fails when it is absent.
func (s *Scraper) require(selector string) (browser.Element, error) {
	el, err := s.driver.Find(selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, errors.Wrap(ErrMissingElement, selector)
	}
	return el, nil
}

func (s *Scraper) pause(ctx context.Context, d time.Duration) error {
	return s.opts.Pause(ctx, d)
}

func (s *Scraper) serverSelector() string {
	return fmt.Sprintf(s.opts.Selectors.ServerEntries, s.opts.Kind)
}
