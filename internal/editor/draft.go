// Package editor owns the post being authored: the draft and its editing
// session, autosave scheduling and the view/edit mode gate.
package editor

import (
	"fmt"
	"slices"
	"time"

	"github.com/debemdeboas/atelier/internal/model"
	"github.com/rs/zerolog"
)

var editorLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

type State int

const (
	StateUnloaded State = iota
	StateNewDraft
	StateLoadedForEdit
	StateSaving
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateNewDraft:
		return "new_draft"
	case StateLoadedForEdit:
		return "loaded_for_edit"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	default:
		return "unloaded"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateUnloaded; st <= StateSaved; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown editor state %q", b)
}

type Field string

const (
	FieldTitle         Field = "title"
	FieldSlug          Field = "slug"
	FieldBody          Field = "body"
	FieldExcerpt       Field = "excerpt"
	FieldCoverImageURL Field = "cover_image_url"
	FieldCategory      Field = "category"
	FieldStatus        Field = "status"
)

// Draft is the working copy of a post. ID is empty until the first save.
type Draft struct {
	ID            model.PostID `json:"id,omitempty"`
	Title         string       `json:"title"`
	Slug          string       `json:"slug"`
	Body          string       `json:"body"`
	Excerpt       string       `json:"excerpt"`
	CoverImageURL string       `json:"cover_image_url"`
	Category      string       `json:"category"`
	Tags          []string     `json:"tags"`
	IsDraft       bool         `json:"is_draft"`
	Dirty         bool         `json:"dirty"`

	CreatedAt   time.Time    `json:"created_at,omitzero"`
	UpdatedAt   time.Time    `json:"updated_at,omitzero"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	AuthorID    model.UserID `json:"author_id,omitempty"`
}

func (d *Draft) Persisted() bool {
	return d.ID != ""
}

func (d *Draft) Status() model.PostStatus {
	if d.IsDraft {
		return model.StatusDraft
	}
	return model.StatusPublished
}

func (d Draft) clone() Draft {
	d.Tags = slices.Clone(d.Tags)
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		d.PublishedAt = &t
	}
	return d
}

func newDraft(owner model.UserID) Draft {
	return Draft{
		Tags:     []string{},
		IsDraft:  true,
		AuthorID: owner,
	}
}

func draftFromPost(p *model.Post) Draft {
	d := Draft{
		ID:            p.ID,
		Title:         p.Title,
		Slug:          p.Slug,
		Body:          p.Body,
		Excerpt:       p.Excerpt,
		CoverImageURL: p.CoverImageURL,
		Category:      p.Category,
		Tags:          p.Tags,
		IsDraft:       !p.IsPublished(),
		CreatedAt:     p.CreatedDate,
		UpdatedAt:     p.ModifiedDate,
		PublishedAt:   p.PublishedAt,
		AuthorID:      p.Owner,
	}
	return d.clone()
}
