// Package outline extracts headings from markdown and projects them into a
// navigable table of contents.
package outline

import (
	"regexp"
	"strings"

	"github.com/debemdeboas/atelier/internal/anchor"
)

var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)

type Heading struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	AnchorID string `json:"anchor_id"`
}

// Scan returns the ATX headings of body in document order. Heading text is
// kept verbatim, inline markdown included. Anchor ids are unique within body.
func Scan(body string) []Heading {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	headings := make([]Heading, 0)
	issuer := anchor.NewIssuer()
	for _, m := range headingRegex.FindAllStringSubmatch(body, -1) {
		text := strings.TrimRight(m[2], " \t")
		if text == "" {
			continue
		}
		headings = append(headings, Heading{
			Level:    len(m[1]),
			Text:     text,
			AnchorID: issuer.Issue(text),
		})
	}
	return headings
}
