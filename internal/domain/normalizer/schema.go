// Package normalizer turns tagged raw tables into canonical aggregate records.
// Header synonyms are matched per category; tables whose header cannot be
// matched fall back to a positional column map when one is configured.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// Role is the meaning of a column within an aggregate table.
type Role int

const (
	RoleNone Role = iota
	RoleKey
	RoleNew
	RoleContinuing
	RoleTotal
	RoleAmount

	numRoles
)

var roleNames = [numRoles]string{"", "key", "new", "continuing", "total", "amount"}

// Roles lists every assignable role in resolution order.
var Roles = []Role{RoleKey, RoleNew, RoleContinuing, RoleTotal, RoleAmount}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("role(%d)", int(r))
	}
	if r == RoleNone {
		return "none"
	}
	return roleNames[r]
}

// numeric reports whether the role carries a count or an amount.
func (r Role) numeric() bool {
	return r == RoleNew || r == RoleContinuing || r == RoleTotal || r == RoleAmount
}

// ParseRole resolves a role by name. "", "-" and "skip" map to RoleNone.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "", "-", "skip", "none":
		return RoleNone, nil
	}
	for i, n := range roleNames {
		if i > 0 && n == name {
			return Role(i), nil
		}
	}
	return RoleNone, fmt.Errorf("unknown column role %q", s)
}

// Schema describes how one category's tables map onto canonical records.
type Schema struct {
	Category dataset.Category
	// KeyField receives the key cell of each row as a real dimension.
	KeyField dataset.Field
	// Fixed dimensions are stamped on every record of the category.
	Fixed map[dataset.Field]string
	// Aliases are accepted header synonyms per role.
	Aliases map[Role][]string
	// Positional is the fallback column order; RoleNone skips a column.
	Positional []Role
}

// positionalColumns returns the column index per role, -1 when absent.
func (s Schema) positionalColumns() columns {
	cols := newColumns()
	for i, r := range s.Positional {
		if r != RoleNone && cols[r] < 0 {
			cols[r] = i
		}
	}
	return cols
}

// columns holds the resolved column index per role, -1 when absent.
type columns [numRoles]int

func newColumns() columns {
	var c columns
	for i := range c {
		c[i] = -1
	}
	return c
}

func (c columns) has(r Role) bool { return c[r] >= 0 }

// usable reports whether the columns identify a key and at least one figure.
func (c columns) usable() bool {
	if !c.has(RoleKey) {
		return false
	}
	for _, r := range Roles {
		if r.numeric() && c.has(r) {
			return true
		}
	}
	return false
}

// hits counts resolved roles.
func (c columns) hits() int {
	n := 0
	for _, r := range Roles {
		if c.has(r) {
			n++
		}
	}
	return n
}

// width is the minimum row length the columns need.
func (c columns) width() int {
	w := 0
	for _, r := range Roles {
		if c[r]+1 > w {
			w = c[r] + 1
		}
	}
	return w
}

// Layout says how a table's columns were resolved.
type Layout string

const (
	LayoutAliases    Layout = "aliases"
	LayoutPositional Layout = "positional"
)

const (
	DefaultHeaderScan    = 3
	DefaultFuzzyDistance = 2
)

// DefaultTotalMarkers are the key values that mark summary rows.
var DefaultTotalMarkers = []string{"total", "total general"}

// Options tune normalization.
type Options struct {
	// HeaderScan is how many leading rows are tried as the header row.
	HeaderScan int
	// FuzzyDistance is the maximum Levenshtein distance for a fuzzy header
	// match. Negative disables fuzzy matching.
	FuzzyDistance int
	// TotalMarkers are key values (compared folded) that mark total rows.
	TotalMarkers []string
}

func (o Options) withDefaults() Options {
	if o.HeaderScan <= 0 {
		o.HeaderScan = DefaultHeaderScan
	}
	if o.FuzzyDistance == 0 {
		o.FuzzyDistance = DefaultFuzzyDistance
	}
	if len(o.TotalMarkers) == 0 {
		o.TotalMarkers = DefaultTotalMarkers
	}
	return o
}
