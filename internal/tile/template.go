package tile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadTemplate is returned for URL templates missing a required placeholder.
var ErrBadTemplate = errors.New("invalid tile URL template")

// subdomains rotated into the optional {s} placeholder.
const subdomains = "abc"

// ValidateTemplate checks that tmpl carries the {z}, {x} and {y} placeholders.
func ValidateTemplate(tmpl string) error {
	var missing []string
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(tmpl, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q is missing %s", ErrBadTemplate, tmpl, strings.Join(missing, ", "))
	}
	return nil
}

// ExpandURL substitutes zoom and tile index into tmpl as decimal integers.
// A {s} placeholder is replaced by one of a, b, c chosen from the tile
// position, so neighbouring tiles spread over the mirror hosts.
func ExpandURL(tmpl string, zoom int, idx Index) string {
	s := (idx.X + idx.Y) % len(subdomains)
	if s < 0 {
		s += len(subdomains)
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(zoom),
		"{x}", strconv.Itoa(idx.X),
		"{y}", strconv.Itoa(idx.Y),
		"{s}", subdomains[s:s+1],
	)
	return r.Replace(tmpl)
}
