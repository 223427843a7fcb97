// Package anchor derives URL-fragment identifiers from heading text.
package anchor

import (
	"regexp"
	"strconv"
	"strings"
)

// Fallback is issued for headings whose text normalises to nothing.
const Fallback = "section"

var (
	stripRegex      = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Slugify lowercases text, strips every rune that is not a letter, number,
// underscore, hyphen or whitespace, and collapses whitespace runs to a
// single hyphen. It is the only normalisation used for heading anchors.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = stripRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, "-")
}

// Issuer hands out anchor ids that are unique within one document.
// The zero value is not usable; use NewIssuer.
type Issuer struct {
	issued map[string]struct{}
}

func NewIssuer() *Issuer {
	return &Issuer{issued: make(map[string]struct{})}
}

// Issue returns Slugify(text), suffixed with -2, -3, ... when the id was
// already handed out by this issuer.
func (i *Issuer) Issue(text string) string {
	base := Slugify(text)
	if base == "" {
		base = Fallback
	}

	id := base
	for n := 2; i.taken(id); n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	i.issued[id] = struct{}{}
	return id
}

func (i *Issuer) taken(id string) bool {
	_, ok := i.issued[id]
	return ok
}
