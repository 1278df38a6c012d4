package scraper

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/browser"
	"github.com/alvarorichard/9anime-dl/internal/unpacker"
	"github.com/alvarorichard/9anime-dl/internal/util"
	"github.com/alvarorichard/9anime-dl/internal/waitfor"
)

var ErrExtraction = errors.New("manifest extraction failed")

// SelectServer makes the configured provider the active server for the
// configured kind. Entries are matched in page order by a case-sensitive
// substring of their label.
func (s *Scraper) SelectServer(ctx context.Context) error {
	entries, err := s.driver.FindAll(s.serverSelector())
	if err != nil {
		return err
	}

	for _, entry := range entries {
		label, err := entry.Text()
		if err != nil {
			return err
		}
		if !strings.Contains(label, s.opts.Provider) {
			continue
		}

		class, _, err := entry.Attribute("class")
		if err != nil {
			return err
		}
		if slices.Contains(strings.Fields(class), "active") {
			util.Debugf("%s (%s) already active", s.opts.Provider, s.opts.Kind)
			return nil
		}

		if err := entry.Click(); err != nil {
			return err
		}
		return s.pause(ctx, s.opts.ClickPause)
	}

	return fmt.Errorf("%w: no %s server matching %q", ErrServerUnavailable, s.opts.Kind, s.opts.Provider)
}

// MaterializePlayer returns the player iframe, clicking the player container
// until the iframe is injected.
func (s *Scraper) MaterializePlayer(ctx context.Context) (browser.Element, error) {
	var frame browser.Element
	err := waitfor.Until(ctx, s.opts.Frame, "player iframe",
		func() (bool, error) {
			el, err := s.driver.Find(s.opts.Selectors.PlayerFrame)
			frame = el
			return el != nil, err
		},
		func() error {
			player, err := s.require(s.opts.Selectors.Player)
			if err != nil {
				return err
			}
			util.Debug("clicking player to load iframe")
			return player.Click()
		})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// LocateManifest reads the packed setup script inside frame and returns the
// manifest URL. The driver is always switched back to the top document.
func (s *Scraper) LocateManifest(frame browser.Element) (url string, err error) {
	if err := s.driver.EnterFrame(frame); err != nil {
		return "", err
	}
	defer func() {
		if exitErr := s.driver.ExitFrame(); exitErr != nil && err == nil {
			err = exitErr
		}
	}()

	scripts, err := s.driver.FindAll(s.opts.Selectors.PackedScript)
	if err != nil {
		return "", err
	}

	bodies := make([]string, 0, len(scripts))
	for _, script := range scripts {
		body, err := script.Text()
		if err != nil {
			return "", err
		}
		bodies = append(bodies, body)
	}

	url, err = unpacker.FindManifest(bodies)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return url, nil
}

// Resolve runs every stage for one episode and returns its manifest URL.
func (s *Scraper) Resolve(ctx context.Context, episode int) (string, error) {
	if err := s.GoToEpisode(ctx, episode); err != nil {
		return "", err
	}
	if err := s.SelectServer(ctx); err != nil {
		return "", err
	}
	frame, err := s.MaterializePlayer(ctx)
	if err != nil {
		return "", err
	}
	return s.LocateManifest(frame)
}

func (s *Scraper) UserAgent() (string, error) {
	return s.driver.UserAgent()
}
