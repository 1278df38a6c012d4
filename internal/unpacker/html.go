package unpacker

import (
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// ScriptSelector matches the inline scripts the embed page excludes from
// Cloudflare's Rocket Loader; the packed player setup is one of them.
const ScriptSelector = "script[data-cfasync='false']"

// ScriptsFromHTML returns the bodies of the scripts in an HTML document that
// match selector, in document order.
func ScriptsFromHTML(r io.Reader, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	var scripts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})
	return scripts, nil
}

// ManifestFromHTML locates the packed player script in a saved embed page and
// returns its manifest URL.
func ManifestFromHTML(r io.Reader) (string, error) {
	scripts, err := ScriptsFromHTML(r, ScriptSelector)
	if err != nil {
		return "", err
	}
	return FindManifest(scripts)
}
