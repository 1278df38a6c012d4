// Package unpacker reverses the p,a,c,k,e,d script packer used by embedded
// players and pulls the manifest URL out of the result.
package unpacker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// digits renders indexes in bases up to 62, matching the packer's encoder.
const digits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	ErrNotPacked  = errors.New("script is not packed")
	ErrBadRadix   = errors.New("unsupported radix")
	ErrNoManifest = errors.New("no manifest url in script")

	packedArgs = regexp.MustCompile(`(?s)\}\(\s*'(.*)',\s*(\d+),\s*(\d+),\s*'(.*?)'\.split\('\|'\)`)
	wordToken  = regexp.MustCompile(`\b\w+\b`)
)

// Packed holds the arguments the packer passes to its eval'd decoder.
type Packed struct {
	Payload    string
	Radix      int
	Count      int
	Dictionary []string
}

// IsPacked reports whether the script body starts with the eval invocation
// the packer emits.
func IsPacked(script string) bool {
	return strings.HasPrefix(strings.TrimSpace(script), "eval(")
}

// Parse pulls the packer arguments out of a script.
func Parse(script string) (*Packed, error) {
	m := packedArgs.FindStringSubmatch(script)
	if m == nil {
		return nil, ErrNotPacked
	}

	radix, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, errors.Wrap(ErrNotPacked, "radix")
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, errors.Wrap(ErrNotPacked, "count")
	}

	return &Packed{
		Payload:    unescape(m[1]),
		Radix:      radix,
		Count:      count,
		Dictionary: strings.Split(unescape(m[4]), "|"),
	}, nil
}

// Unpack parses and decodes a packed script.
func Unpack(script string) (string, error) {
	p, err := Parse(script)
	if err != nil {
		return "", err
	}
	return Decode(p.Payload, p.Radix, p.Count, p.Dictionary)
}

// Decode substitutes every word in payload that is the base-radix rendering
// of an index below count with the dictionary entry at that index. Empty or
// missing entries leave the word as it is.
func Decode(payload string, radix, count int, dictionary []string) (string, error) {
	if radix < 2 || radix > len(digits) {
		return "", errors.Wrapf(ErrBadRadix, "%d", radix)
	}

	symbols := make(map[string]string, count)
	for i := count - 1; i >= 0; i-- {
		if i < len(dictionary) && dictionary[i] != "" {
			symbols[Encode(i, radix)] = dictionary[i]
		}
	}

	return wordToken.ReplaceAllStringFunc(payload, func(word string) string {
		if s, ok := symbols[word]; ok {
			return s
		}
		return word
	}), nil
}

// Encode renders n in the packer's numeral form for the given radix.
func Encode(n, radix int) string {
	if n == 0 {
		return digits[:1]
	}
	var b []byte
	for ; n > 0; n /= radix {
		b = append(b, digits[n%radix])
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// unescape undoes the escaping of a single-quoted JS string literal for the
// characters the packer escapes.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\', '\'', '"':
				sb.WriteByte(s[i+1])
				i++
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
