// Package browser drives a real Chromium instance through a small capability
// set so the scraper never depends on a specific automation library.
package browser

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

var (
	ErrSessionClosed  = errors.New("browser session closed")
	ErrNoFrame        = errors.New("element has no content frame")
	ErrForeignElement = errors.New("element belongs to another session")
	ErrUnknownEngine  = errors.New("unknown browser engine")
)

// Element is a handle to a rendered DOM element. Handles are only valid while
// the page that produced them is current.
type Element interface {
	Click() error
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	// Text returns the element's textContent.
	Text() (string, error)
	Clear() error
	Type(text string) error
}

// Driver is a single browser tab. Find and FindAll search the current scope,
// which is the top document unless EnterFrame switched into an iframe.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Find returns nil without an error when nothing matches.
	Find(selector string) (Element, error)
	FindAll(selector string) ([]Element, error)
	EnterFrame(frame Element) error
	ExitFrame() error
	UserAgent() (string, error)
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

// Options configures Launch.
type Options struct {
	Engine       string
	Headless     bool
	ExtensionDir string
}

// Launch starts a browser with the configured engine.
func Launch(ctx context.Context, opts Options) (Driver, error) {
	switch opts.Engine {
	case "", EnginePlaywright:
		return launchPlaywright(ctx, opts)
	case EngineRod:
		return launchRod(ctx, opts)
	default:
		return nil, errors.Wrap(ErrUnknownEngine, opts.Engine)
	}
}

// extensionArgs returns the chromium switches that side-load an unpacked
// extension.
func extensionArgs(dir string) []string {
	if dir == "" {
		return nil
	}
	return []string{
		"--disable-extensions-except=" + dir,
		"--load-extension=" + dir,
	}
}

var closedMarkers = []string{
	"target closed",
	"has been closed",
	"browser has disconnected",
	"context canceled",
	"use of closed network connection",
}

// wrapErr tags errors that mean the browser itself is gone so callers can tell
// them apart from a missing element.
func wrapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range closedMarkers {
		if strings.Contains(lower, marker) {
			return errors.Wrapf(ErrSessionClosed, "%s: %v", msg, err)
		}
	}
	return errors.Wrap(err, msg)
}
