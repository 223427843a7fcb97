// Package model defines core data structures and types for the blog application.
package model

import (
	"strings"
	"time"
)

type PostID string

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
)

// ParsePostStatus accepts the persisted status names. Anything else is a draft.
func ParsePostStatus(s string) PostStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusPublished)) {
		return StatusPublished
	}
	return StatusDraft
}

type Post struct {
	ID PostID `json:"id"`

	Title         string   `json:"title"`
	Slug          string   `json:"slug"`
	Body          string   `json:"content"`
	Excerpt       string   `json:"excerpt,omitempty"`
	CoverImageURL string   `json:"featured_image,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags"`

	Status      PostStatus `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// Used for change detection between cache reloads.
	MDContentHash string `json:"-"`

	CreatedDate  time.Time `json:"created_at"`
	ModifiedDate time.Time `json:"updated_at"`

	Owner UserID `json:"author_id"`
}

func (p *Post) IsPublished() bool {
	return p.Status == StatusPublished
}

// Record returns the editable part of the post.
func (p *Post) Record() PostRecord {
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)

	return PostRecord{
		Title:         p.Title,
		Slug:          p.Slug,
		Body:          p.Body,
		Excerpt:       p.Excerpt,
		CoverImageURL: p.CoverImageURL,
		Category:      p.Category,
		Tags:          tags,
		Status:        p.Status,
		PublishedAt:   p.PublishedAt,
		Owner:         p.Owner,
	}
}

// PostRecord is what the editor hands to the post store on save. It always
// carries every editable field; the store owns ids and timestamps.
type PostRecord struct {
	Title         string
	Slug          string
	Body          string
	Excerpt       string
	CoverImageURL string
	Category      string
	Tags          []string
	Status        PostStatus
	PublishedAt   *time.Time
	Owner         UserID
}
