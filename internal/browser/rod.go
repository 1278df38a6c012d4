package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/ysmood/gson"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

const rodActionTimeout = actionTimeoutMs * time.Millisecond

type rodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	scope    *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func launchRod(_ context.Context, opts Options) (Driver, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if opts.ExtensionDir != "" {
		if opts.Headless {
			// old headless mode ignores --load-extension
			l = l.HeadlessNew(true)
		}
		l = l.Set("disable-extensions-except", opts.ExtensionDir).
			Set("load-extension", opts.ExtensionDir)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch chromium")
	}
	util.Debugf("rod control url: %s", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "failed to connect to chromium")
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, errors.Wrap(err, "failed to open page")
	}

	return &rodDriver{launcher: l, browser: b, page: page, scope: page}, nil
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return wrapErr(err, "navigate "+url)
	}
	if err := d.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		util.Debugf("dom did not settle after navigating to %s: %v", url, err)
	}
	d.scope = d.page
	return nil
}

func (d *rodDriver) Find(selector string) (Element, error) {
	has, el, err := d.scope.Has(selector)
	if err != nil {
		return nil, wrapErr(err, "find "+selector)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (d *rodDriver) FindAll(selector string) ([]Element, error) {
	found, err := d.scope.Elements(selector)
	if err != nil {
		return nil, wrapErr(err, "find all "+selector)
	}
	elements := make([]Element, 0, len(found))
	for _, el := range found {
		elements = append(elements, &rodElement{el: el})
	}
	return elements, nil
}

func (d *rodDriver) EnterFrame(frame Element) error {
	el, ok := frame.(*rodElement)
	if !ok {
		return ErrForeignElement
	}
	f, err := el.el.Frame()
	if err != nil {
		return wrapErr(err, "enter frame")
	}
	if f == nil {
		return ErrNoFrame
	}
	d.scope = f
	return nil
}

func (d *rodDriver) ExitFrame() error {
	d.scope = d.page
	return nil
}

func (d *rodDriver) UserAgent() (string, error) {
	obj, err := d.page.Eval(`() => navigator.userAgent`)
	if err != nil {
		return "", wrapErr(err, "read user agent")
	}
	return jsonString(obj.Value), nil
}

func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		if err := d.browser.Close(); err != nil {
			d.closeErr = errors.Wrap(err, "failed to close browser")
			d.launcher.Kill()
		}
		// waits for the process and removes the temporary profile
		d.launcher.Cleanup()
	})
	return d.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return wrapErr(e.el.Timeout(rodActionTimeout).Click(proto.InputMouseButtonLeft, 1), "click")
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, wrapErr(err, "read attribute "+name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Text() (string, error) {
	v, err := e.el.Property("textContent")
	if err != nil {
		return "", wrapErr(err, "read text")
	}
	return jsonString(v), nil
}

func (e *rodElement) Clear() error {
	el := e.el.Timeout(rodActionTimeout)
	if err := el.SelectAllText(); err != nil {
		return wrapErr(err, "clear")
	}
	return wrapErr(el.Input(""), "clear")
}

func (e *rodElement) Type(text string) error {
	return wrapErr(e.el.Timeout(rodActionTimeout).Input(text), "type")
}

func jsonString(v gson.JSON) string {
	if v.Nil() {
		return ""
	}
	return v.Str()
}
