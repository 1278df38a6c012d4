// Package episodes parses the episode selection typed by the user.
package episodes

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBelowMinimum   = errors.New("episode number below 1")
	ErrAboveMaximum   = errors.New("episode number above available episodes")
	ErrInvertedRange  = errors.New("range start is bigger than range end")
)

// RangeError reports which token of the selection was rejected.
type RangeError struct {
	Kind  error
	Token string
	Total int
}

func (e *RangeError) Error() string {
	switch e.Kind {
	case ErrAboveMaximum:
		return fmt.Sprintf("%q: %v (%d)", e.Token, e.Kind, e.Total)
	default:
		return fmt.Sprintf("%q: %v", e.Token, e.Kind)
	}
}

func (e *RangeError) Unwrap() error { return e.Kind }

// Parse expands a selection such as "1,3,5-8" into a sorted list of unique
// episode numbers within [1, total]. Blank input selects every episode.
// Any invalid token rejects the whole selection.
func Parse(text string, total int) ([]int, error) {
	if strings.TrimSpace(text) == "" {
		return All(total), nil
	}

	selected := make(map[int]struct{})
	for _, raw := range strings.Split(text, ",") {
		token := strings.TrimSpace(raw)

		if strings.Contains(token, "-") {
			begin, end, err := parseSpan(token)
			if err != nil {
				return nil, err
			}
			switch {
			case begin > end:
				return nil, &RangeError{Kind: ErrInvertedRange, Token: token, Total: total}
			case begin < 1:
				return nil, &RangeError{Kind: ErrBelowMinimum, Token: token, Total: total}
			case end > total:
				return nil, &RangeError{Kind: ErrAboveMaximum, Token: token, Total: total}
			}
			for n := begin; n <= end; n++ {
				selected[n] = struct{}{}
			}
			continue
		}

		n, err := parseNumber(token)
		if err != nil {
			return nil, err
		}
		switch {
		case n < 1:
			return nil, &RangeError{Kind: ErrBelowMinimum, Token: token, Total: total}
		case n > total:
			return nil, &RangeError{Kind: ErrAboveMaximum, Token: token, Total: total}
		}
		selected[n] = struct{}{}
	}

	result := make([]int, 0, len(selected))
	for n := range selected {
		result = append(result, n)
	}
	sort.Ints(result)
	return result, nil
}

// All returns 1..total.
func All(total int) []int {
	result := make([]int, 0, total)
	for n := 1; n <= total; n++ {
		result = append(result, n)
	}
	return result
}

// DefaultLabel is the selection shown as the prompt default.
func DefaultLabel(total int) string {
	if total == 1 {
		return "1"
	}
	return fmt.Sprintf("1-%d", total)
}

func parseSpan(token string) (int, int, error) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return 0, 0, &RangeError{Kind: ErrMalformedToken, Token: token}
	}
	begin, err := parseNumber(parts[0])
	if err != nil {
		return 0, 0, &RangeError{Kind: ErrMalformedToken, Token: token}
	}
	end, err := parseNumber(parts[1])
	if err != nil {
		return 0, 0, &RangeError{Kind: ErrMalformedToken, Token: token}
	}
	return begin, end, nil
}

func parseNumber(token string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return 0, &RangeError{Kind: ErrMalformedToken, Token: token}
	}
	return n, nil
}
