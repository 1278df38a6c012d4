package scraper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/util"
	"github.com/alvarorichard/9anime-dl/internal/waitfor"
)

// Open loads the show page and waits settle for its scripts to run.
func (s *Scraper) Open(ctx context.Context, url string, settle time.Duration) error {
	if err := s.driver.Navigate(ctx, url); err != nil {
		return err
	}
	return s.pause(ctx, settle)
}

// ActiveEpisode reports the episode currently highlighted in the list.
func (s *Scraper) ActiveEpisode() (int, bool, error) {
	el, err := s.driver.Find(s.opts.Selectors.ActiveEpisode)
	if err != nil || el == nil {
		return 0, false, err
	}
	return s.episodeNumber(el)
}

// GoToEpisode switches the player to episode target using the episode filter
// box. It returns without touching the page when target is already active.
func (s *Scraper) GoToEpisode(ctx context.Context, target int) error {
	current, ok, err := s.ActiveEpisode()
	if err != nil {
		return navigationErr(target, err)
	}
	if ok && current == target {
		util.Debugf("episode %d already active", target)
		return nil
	}

	if err := s.submitEpisode(ctx, target); err != nil {
		return navigationErr(target, err)
	}

	err = waitfor.Until(ctx, s.opts.Settle, fmt.Sprintf("episode %d to become active", target),
		func() (bool, error) {
			current, ok, err := s.ActiveEpisode()
			return ok && current == target, err
		}, nil)
	if err != nil {
		return navigationErr(target, err)
	}
	return nil
}

func (s *Scraper) submitEpisode(ctx context.Context, target int) error {
	input, err := s.require(s.opts.Selectors.EpisodeFilter)
	if err != nil {
		return err
	}

	if stale, err := s.hasValue(input); err != nil {
		return err
	} else if stale {
		if err := input.Clear(); err != nil {
			return err
		}
		if err := s.pause(ctx, s.opts.InputPause); err != nil {
			return err
		}
	}

	if err := input.Type(strconv.Itoa(target)); err != nil {
		return err
	}
	s.typed = true
	if err := s.pause(ctx, s.opts.InputPause); err != nil {
		return err
	}

	match, err := s.require(s.opts.Selectors.EpisodeMatch)
	if err != nil {
		return err
	}
	if err := match.Click(); err != nil {
		return err
	}
	return s.pause(ctx, s.opts.ClickPause)
}

// hasValue reports whether the filter box still holds an earlier entry.
func (s *Scraper) hasValue(input browser.Element) (bool, error) {
	v, ok, err := input.Attribute("value")
	if err != nil {
		return false, err
	}
	return s.typed || (ok && v != ""), nil
}

func navigationErr(episode int, err error) error {
	return fmt.Errorf("episode %d: %w: %w", episode, ErrNavigation, err)
}
