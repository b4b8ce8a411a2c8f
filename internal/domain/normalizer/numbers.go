package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	plainInt   = regexp.MustCompile(`^-?\d+$`)
	groupedInt = regexp.MustCompile(`^-?\d{1,3}([.,']\d{3})+$`)
)

// ParseCount reads a beneficiary count. Spaces and thousands separators
// ("," "." "'" in groups of three) are stripped. ok is false for a blank cell
// or a dash placeholder.
func ParseCount(raw string) (value int, ok bool, err error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t', '\n', '\r':
			return -1
		}
		return r
	}, raw)
	if blankNumber(s) {
		return 0, false, nil
	}

	switch {
	case plainInt.MatchString(s):
	case groupedInt.MatchString(s):
		s = strings.NewReplacer(",", "", ".", "", "'", "").Replace(s)
	default:
		return 0, false, fmt.Errorf("not an integer: %q", raw)
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("not an integer: %q: %w", raw, err)
	}
	return v, true, nil
}

// blankNumber reports whether a numeric cell holds no figure.
func blankNumber(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "-", "–", "—", "--":
		return true
	}
	return false
}
