package editor

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/debemdeboas/atelier/internal/anchor"
	"github.com/debemdeboas/atelier/internal/model"
)

// Cursor is a selection in the body, in runes. Start == End is a caret.
type Cursor struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// clamp orders the ends and keeps both inside [0, n].
func (c Cursor) clamp(n int) Cursor {
	if c.Start > c.End {
		c.Start, c.End = c.End, c.Start
	}
	c.Start = max(0, min(c.Start, n))
	c.End = max(0, min(c.End, n))
	return c
}

// splice replaces the selection with text. A nil cursor appends. It returns
// the new body and a caret just after the inserted text.
func splice(body, text string, cursor *Cursor) (string, Cursor) {
	runes := []rune(body)
	if cursor == nil {
		pos := len(runes) + len([]rune(text))
		return body + text, Cursor{Start: pos, End: pos}
	}

	c := cursor.clamp(len(runes))
	var b strings.Builder
	b.WriteString(string(runes[:c.Start]))
	b.WriteString(text)
	b.WriteString(string(runes[c.End:]))

	pos := c.Start + len([]rune(text))
	return b.String(), Cursor{Start: pos, End: pos}
}

// wrap surrounds the selection with before and after and returns the
// selection moved onto the original text.
func wrap(body, before, after string, cursor Cursor) (string, Cursor) {
	runes := []rune(body)
	c := cursor.clamp(len(runes))
	selected := string(runes[c.Start:c.End])

	var b strings.Builder
	b.WriteString(string(runes[:c.Start]))
	b.WriteString(before)
	b.WriteString(selected)
	b.WriteString(after)
	b.WriteString(string(runes[c.End:]))

	start := c.Start + len([]rune(before))
	return b.String(), Cursor{Start: start, End: start + (c.End - c.Start)}
}

// ImageMarkdown is the text spliced into the body for an inline image.
func ImageMarkdown(alt, url string) string {
	return "\n![" + alt + "](" + url + ")\n"
}

// resizeImage rewrites the first image reference pointing at imageURL so its
// URL carries w and h query parameters. Zero leaves a dimension out.
func resizeImage(body, imageURL string, width, height int) (string, bool) {
	pattern := regexp.MustCompile(`!\[([^\]]*)\]\(` + regexp.QuoteMeta(imageURL) + `\)`)
	loc := pattern.FindStringSubmatchIndex(body)
	if loc == nil {
		return body, false
	}

	base, _, _ := strings.Cut(imageURL, "?")
	q := url.Values{}
	if width > 0 {
		q.Set("w", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("h", strconv.Itoa(height))
	}
	newURL := base
	if enc := q.Encode(); enc != "" {
		newURL += "?" + enc
	}

	alt := body[loc[2]:loc[3]]
	return body[:loc[0]] + "![" + alt + "](" + newURL + ")" + body[loc[1]:], true
}

// DateSlug is the slug given to posts saved without one.
func DateSlug(now time.Time) string {
	return now.Format("20060102")
}

// prepare validates d and builds the record handed to the post store.
// wasPublished reports whether the stored post was already published, so a
// republish keeps its original timestamp.
func prepare(d *Draft, wasPublished bool, now time.Time) (model.PostRecord, error) {
	if strings.TrimSpace(d.Title) == "" {
		return model.PostRecord{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(d.Body) == "" {
		return model.PostRecord{}, fmt.Errorf("%w: body is required", ErrValidation)
	}

	slug := d.Slug
	if !d.Persisted() {
		slug = anchor.URLSlug(slug)
		if slug == "" {
			slug = DateSlug(now)
		}
	}

	rec := model.PostRecord{
		Title:         strings.TrimSpace(d.Title),
		Slug:          slug,
		Body:          d.Body,
		Excerpt:       strings.TrimSpace(d.Excerpt),
		CoverImageURL: d.CoverImageURL,
		Category:      strings.TrimSpace(d.Category),
		Tags:          d.clone().Tags,
		Status:        d.Status(),
		PublishedAt:   d.clone().PublishedAt,
		Owner:         d.AuthorID,
	}

	if rec.Status == model.StatusPublished && (!wasPublished || rec.PublishedAt == nil) {
		t := now.UTC()
		rec.PublishedAt = &t
	}

	return rec, nil
}
