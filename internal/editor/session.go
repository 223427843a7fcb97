package editor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/outline"
)

// Store is the part of the post repository a session persists through.
type Store interface {
	CreatePost(ctx context.Context, rec model.PostRecord) (*model.Post, error)
	UpdatePost(ctx context.Context, id model.PostID, rec model.PostRecord) (*model.Post, error)
	GetPostByID(ctx context.Context, id model.PostID) (*model.Post, error)
}

type Options struct {
	// TagPolicy is config.TagPolicyAllow or config.TagPolicyDedupe.
	TagPolicy string
	Now       func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Session is the single owner of a Draft. Every method may be called from
// any goroutine; calls are serialised internally.
type Session struct {
	mu    sync.Mutex
	store Store
	opts  Options

	draft        Draft
	state        State
	wasPublished bool
	closed       bool

	// version counts mutations. A save only clears dirty when no mutation
	// happened while it was in flight.
	version uint64
	saveMu  sync.Mutex

	headings  []outline.Heading
	projector *outline.Projector

	onMutate func()
}

func newSession(store Store, d Draft, state State, opts Options) *Session {
	s := &Session{
		store:        store,
		opts:         opts,
		draft:        d,
		state:        state,
		wasPublished: !d.IsDraft && d.Persisted(),
		projector:    outline.NewProjector(),
	}
	s.rescan()
	return s
}

// OpenNew starts a fresh, unsaved draft.
func OpenNew(store Store, owner model.UserID, opts Options) *Session {
	return newSession(store, newDraft(owner), StateNewDraft, opts)
}

// OpenExisting loads a stored post for editing.
func OpenExisting(ctx context.Context, store Store, id model.PostID, opts Options) (*Session, error) {
	post, err := store.GetPostByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading post %s: %w", id, err)
	}
	return newSession(store, draftFromPost(post), StateLoadedForEdit, opts), nil
}

// SetMutationHook registers f to be called after every successful mutation.
// It is called without the session lock held.
func (s *Session) SetMutationHook(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = f
}

func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Dirty
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) PostID() model.PostID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.ID
}

// Headings returns every heading of the current body.
func (s *Session) Headings() []outline.Heading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.headings)
}

// TOC returns the navigable outline with the active marker.
func (s *Session) TOC() *outline.Projector {
	return s.projector
}

func (s *Session) rescan() {
	s.headings = outline.Scan(s.draft.Body)
	s.projector.Replace(s.headings)
}

// mutate runs f under the lock and, when it succeeds, marks the draft dirty
// and notifies the mutation hook.
func (s *Session) mutate(f func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := f(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.draft.Dirty = true
	s.version++
	if s.state == StateSaved {
		s.state = StateLoadedForEdit
	}
	hook := s.onMutate
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (s *Session) UpdateField(name Field, value string) error {
	return s.mutate(func() error {
		switch name {
		case FieldTitle:
			s.draft.Title = value
		case FieldSlug:
			// The slug is fixed once the post exists, and a first save in
			// flight is about to fix it.
			if s.draft.Persisted() || s.state == StateSaving {
				return ErrSlugImmutable
			}
			s.draft.Slug = value
		case FieldBody:
			s.draft.Body = value
			s.rescan()
		case FieldExcerpt:
			s.draft.Excerpt = value
		case FieldCoverImageURL:
			s.draft.CoverImageURL = value
		case FieldCategory:
			s.draft.Category = value
		case FieldStatus:
			switch model.PostStatus(value) {
			case model.StatusDraft:
				s.draft.IsDraft = true
			case model.StatusPublished:
				s.draft.IsDraft = false
			default:
				return fmt.Errorf("%w: status must be %q or %q", ErrValidation, model.StatusDraft, model.StatusPublished)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		return nil
	})
}

func (s *Session) AddTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("%w: tag is empty", ErrValidation)
	}

	err := s.mutate(func() error {
		if s.opts.TagPolicy == config.TagPolicyDedupe && slices.Contains(s.draft.Tags, tag) {
			return errNoChange
		}
		s.draft.Tags = append(s.draft.Tags, tag)
		return nil
	})
	if err == errNoChange {
		return nil
	}
	return err
}

// RemoveTag removes the first exact match. It reports whether a tag was
// removed; nothing changes otherwise.
func (s *Session) RemoveTag(tag string) (bool, error) {
	removed := false
	err := s.mutate(func() error {
		i := slices.Index(s.draft.Tags, tag)
		if i < 0 {
			return errNoChange
		}
		s.draft.Tags = slices.Delete(s.draft.Tags, i, i+1)
		removed = true
		return nil
	})
	if err == errNoChange {
		return false, nil
	}
	return removed, err
}

func (s *Session) SetCoverImage(url string) error {
	return s.mutate(func() error {
		s.draft.CoverImageURL = url
		return nil
	})
}

// InsertAtCursor splices text into the body at cursor, or appends it when
// cursor is nil, and returns the caret after the inserted text.
func (s *Session) InsertAtCursor(text string, cursor *Cursor) (Cursor, error) {
	var out Cursor
	err := s.mutate(func() error {
		s.draft.Body, out = splice(s.draft.Body, text, cursor)
		s.rescan()
		return nil
	})
	return out, err
}

// WrapSelection surrounds the selection with before and after, as the
// markdown toolbar does for bold, links and code.
func (s *Session) WrapSelection(before, after string, cursor Cursor) (Cursor, error) {
	var out Cursor
	err := s.mutate(func() error {
		s.draft.Body, out = wrap(s.draft.Body, before, after, cursor)
		s.rescan()
		return nil
	})
	return out, err
}

// ResizeImage adds size parameters to the first image that references url.
// It reports false when no such image exists.
func (s *Session) ResizeImage(url string, width, height int) (bool, error) {
	if width < 0 || height < 0 || (width == 0 && height == 0) {
		return false, fmt.Errorf("%w: width or height is required", ErrValidation)
	}

	err := s.mutate(func() error {
		body, ok := resizeImage(s.draft.Body, url, width, height)
		if !ok {
			return errNoChange
		}
		s.draft.Body = body
		s.rescan()
		return nil
	})
	if err == errNoChange {
		return false, nil
	}
	return err == nil, err
}

// Recover replaces the editable fields with those of a local snapshot and
// marks the draft dirty so the next save persists them.
func (s *Session) Recover(snap *Snapshot) error {
	return s.mutate(func() error {
		d := snap.Draft.clone()
		s.draft.Title = d.Title
		if !s.draft.Persisted() {
			s.draft.Slug = d.Slug
		}
		s.draft.Body = d.Body
		s.draft.Excerpt = d.Excerpt
		s.draft.CoverImageURL = d.CoverImageURL
		s.draft.Category = d.Category
		s.draft.Tags = d.Tags
		s.draft.IsDraft = d.IsDraft
		s.rescan()
		return nil
	})
}

// PrepareForSave validates the draft and returns the record to persist.
func (s *Session) PrepareForSave(now time.Time) (model.PostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prepare(&s.draft, s.wasPublished, now)
}

// Save persists the draft when it is dirty and reports whether a write
// happened. Saves are serialised; a mutation made while a save is in flight
// keeps the draft dirty.
func (s *Session) Save(ctx context.Context) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	if !s.draft.Dirty {
		s.mu.Unlock()
		return false, nil
	}

	rec, err := prepare(&s.draft, s.wasPublished, s.opts.now())
	if err != nil {
		s.mu.Unlock()
		return false, err
	}

	id := s.draft.ID
	version := s.version
	prev := s.state
	s.state = StateSaving
	s.mu.Unlock()

	var post *model.Post
	if id == "" {
		post, err = s.store.CreatePost(ctx, rec)
	} else {
		post, err = s.store.UpdatePost(ctx, id, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSessionClosed
	}

	if err != nil {
		s.state = prev
		if s.state == StateSaved || s.state == StateSaving {
			s.state = StateLoadedForEdit
		}
		editorLogger.Warn().Err(err).Str("post_id", string(id)).Msg("Draft save failed")
		return false, fmt.Errorf("%w: %w", ErrSave, err)
	}

	s.draft.ID = post.ID
	s.draft.Slug = post.Slug
	s.draft.CreatedAt = post.CreatedDate
	s.draft.UpdatedAt = post.ModifiedDate
	s.draft.PublishedAt = post.PublishedAt
	s.draft.AuthorID = post.Owner
	s.wasPublished = post.IsPublished()

	if s.version == version {
		s.draft.Dirty = false
		s.state = StateSaved
	} else {
		s.state = StateLoadedForEdit
	}

	editorLogger.Info().Str("post_id", string(post.ID)).Bool("dirty", s.draft.Dirty).Msg("Draft saved")
	return true, nil
}

// Close ends the session. With flush set, a dirty draft gets one last
// best-effort save first. Later calls return ErrSessionClosed.
func (s *Session) Close(ctx context.Context, flush bool) error {
	var err error
	if flush {
		_, err = s.Save(ctx)
		if err != nil {
			editorLogger.Warn().Err(err).Msg("Final save before close failed")
		}
	}

	s.saveMu.Lock()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.saveMu.Unlock()

	if err == ErrSessionClosed {
		return nil
	}
	return err
}

// Discard ends the session without saving.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
