package unpacker

import (
	"regexp"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

var manifestPattern = regexp.MustCompile(`file:"([^"]+)"`)

// ExtractManifest returns the quoted value of the first `file:"..."` in an
// unpacked script.
func ExtractManifest(unpacked string) (string, error) {
	m := manifestPattern.FindStringSubmatch(unpacked)
	if m == nil {
		return "", ErrNoManifest
	}
	return m[1], nil
}

// FindManifest tries each packed script in order and returns the first
// manifest URL found. Scripts that are not packed are ignored.
func FindManifest(scripts []string) (string, error) {
	candidates := 0
	for i, script := range scripts {
		if !IsPacked(script) {
			continue
		}
		candidates++

		unpacked, err := Unpack(script)
		if err != nil {
			util.Debugf("script %d: %v", i, err)
			continue
		}
		url, err := ExtractManifest(unpacked)
		if err != nil {
			util.Debugf("script %d unpacked without a manifest", i)
			continue
		}
		return url, nil
	}

	if candidates == 0 {
		return "", ErrNotPacked
	}
	return "", ErrNoManifest
}
