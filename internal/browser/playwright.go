package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

const (
	actionTimeoutMs = 15000
	typeDelayMs     = 90
)

type playwrightDriver struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	scope   playwright.Frame

	closeOnce sync.Once
	closeErr  error
}

func launchPlaywright(_ context.Context, opts Options) (Driver, error) {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  util.IsDebug,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to install playwright chromium")
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start playwright")
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: append([]string{
			"--disable-blink-features=AutomationControlled",
		}, extensionArgs(opts.ExtensionDir)...),
	}
	if opts.Headless && opts.ExtensionDir != "" {
		// the headless shell cannot load extensions, the full chromium channel can
		launchOpts.Channel = playwright.String("chromium")
	}

	// empty user data dir: playwright creates and removes a temporary profile
	bctx, err := pw.Chromium.LaunchPersistentContext("", launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, errors.Wrap(err, "failed to launch chromium")
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		_ = bctx.Close()
		_ = pw.Stop()
		return nil, errors.Wrap(err, "failed to open page")
	}

	return &playwrightDriver{
		pw:      pw,
		context: bctx,
		page:    page,
		scope:   page.MainFrame(),
	}, nil
}

func (d *playwrightDriver) Navigate(_ context.Context, url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return wrapErr(err, "navigate "+url)
	}
	d.scope = d.page.MainFrame()
	return nil
}

func (d *playwrightDriver) Find(selector string) (Element, error) {
	h, err := d.scope.QuerySelector(selector)
	if err != nil {
		return nil, wrapErr(err, "find "+selector)
	}
	if h == nil {
		return nil, nil
	}
	return &playwrightElement{h: h}, nil
}

func (d *playwrightDriver) FindAll(selector string) ([]Element, error) {
	handles, err := d.scope.QuerySelectorAll(selector)
	if err != nil {
		return nil, wrapErr(err, "find all "+selector)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{h: h})
	}
	return elements, nil
}

func (d *playwrightDriver) EnterFrame(frame Element) error {
	el, ok := frame.(*playwrightElement)
	if !ok {
		return ErrForeignElement
	}
	f, err := el.h.ContentFrame()
	if err != nil {
		return wrapErr(err, "enter frame")
	}
	if f == nil {
		return ErrNoFrame
	}
	d.scope = f
	return nil
}

func (d *playwrightDriver) ExitFrame() error {
	d.scope = d.page.MainFrame()
	return nil
}

func (d *playwrightDriver) UserAgent() (string, error) {
	v, err := d.page.Evaluate("() => navigator.userAgent")
	if err != nil {
		return "", wrapErr(err, "read user agent")
	}
	ua, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected user agent value %T", v)
	}
	return ua, nil
}

func (d *playwrightDriver) Close() error {
	d.closeOnce.Do(func() {
		if err := d.context.Close(); err != nil {
			d.closeErr = errors.Wrap(err, "failed to close browser")
		}
		if err := d.pw.Stop(); err != nil && d.closeErr == nil {
			d.closeErr = errors.Wrap(err, "failed to stop playwright")
		}
	})
	return d.closeErr
}

type playwrightElement struct {
	h playwright.ElementHandle
}

func (e *playwrightElement) Click() error {
	return wrapErr(e.h.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(actionTimeoutMs),
	}), "click")
}

func (e *playwrightElement) Attribute(name string) (string, bool, error) {
	// GetAttribute cannot tell a missing attribute from an empty one
	v, err := e.h.Evaluate("(el, name) => el.getAttribute(name)", name)
	if err != nil {
		return "", false, wrapErr(err, "read attribute "+name)
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (e *playwrightElement) Text() (string, error) {
	text, err := e.h.TextContent()
	if err != nil {
		return "", wrapErr(err, "read text")
	}
	return text, nil
}

func (e *playwrightElement) Clear() error {
	return wrapErr(e.h.Fill("", playwright.ElementHandleFillOptions{
		Timeout: playwright.Float(actionTimeoutMs),
	}), "clear")
}

func (e *playwrightElement) Type(text string) error {
	return wrapErr(e.h.Type(text, playwright.ElementHandleTypeOptions{
		Delay:   playwright.Float(typeDelayMs),
		Timeout: playwright.Float(actionTimeoutMs),
	}), "type")
}
