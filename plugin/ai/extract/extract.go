// Package extract maps free-text user replies onto the 0..4 rating scale
// used by the screening instruments. It is deliberately conservative: a
// nil result means "no answer detected", which callers must never coerce
// to zero.
package extract

import (
	"regexp"
	"strings"
)

var digitPattern = regexp.MustCompile(`(^|[^0-9.])([0-4])($|[^0-9.])`)

// bucket maps a natural-language phrase to a rating value. The list is
// ordered: more specific phrases come before phrases they contain, since
// the vocabularies overlap ("very often" vs "often", "almost always" vs
// "always").
type bucket struct {
	pattern *regexp.Regexp
	value   int
}

func phrase(p string, value int) bucket {
	return bucket{
		pattern: regexp.MustCompile(`\b` + p + `\b`),
		value:   value,
	}
}

var buckets = []bucket{
	phrase(`not at all`, 0),
	phrase(`nearly every day`, 3),
	phrase(`almost every day`, 3),
	phrase(`most of the time`, 3),
	phrase(`more than half`, 2),
	phrase(`almost always`, 3),
	phrase(`very often`, 3),
	phrase(`all the time`, 4),
	phrase(`a little`, 1),
	phrase(`a lot`, 3),
	phrase(`several days`, 1),
	phrase(`quite often`, 3),
	phrase(`extremely`, 4),
	phrase(`always`, 4),
	phrase(`constantly`, 4),
	phrase(`severely`, 4),
	phrase(`never`, 0),
	phrase(`not really`, 0),
	phrase(`nope`, 0),
	phrase(`moderately`, 2),
	phrase(`often`, 2),
	phrase(`frequently`, 2),
	phrase(`somewhat`, 2),
	phrase(`very`, 3),
	phrase(`sometimes`, 1),
	phrase(`occasionally`, 1),
	phrase(`rarely`, 1),
	phrase(`slightly`, 1),
	phrase(`barely`, 1),
}

// Extract recovers a 0..4 rating from free text. A bare digit wins over
// any phrase match. Returns nil when nothing in the text reads as a
// rating.
func Extract(text string) *int {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return nil
	}

	if m := digitPattern.FindStringSubmatch(lowered); m != nil {
		v := int(m[2][0] - '0')
		return &v
	}

	for _, b := range buckets {
		if b.pattern.MatchString(lowered) {
			v := b.value
			return &v
		}
	}

	return nil
}
