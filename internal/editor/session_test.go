package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/repository"
)

func fixedNow(t time.Time) Options {
	return Options{Now: func() time.Time { return t }}
}

func TestOpenSession(t *testing.T) {
	store := newFakeStore()
	store.seed(existingPost())
	ctx := context.Background()

	t.Run("New draft", func(t *testing.T) {
		s := OpenNew(store, "admin", Options{})
		d := s.Draft()
		if s.State() != StateNewDraft || d.Dirty || d.Persisted() || !d.IsDraft {
			t.Errorf("Unexpected new draft %+v in state %s", d, s.State())
		}
		if d.AuthorID != "admin" {
			t.Errorf("Expected author admin, got %q", d.AuthorID)
		}
	})

	t.Run("Existing post", func(t *testing.T) {
		s, err := OpenExisting(ctx, store, "post-existing", Options{})
		if err != nil {
			t.Fatalf("OpenExisting failed: %v", err)
		}
		d := s.Draft()
		if s.State() != StateLoadedForEdit || d.Dirty {
			t.Errorf("Expected clean loaded draft, got dirty=%v state=%s", d.Dirty, s.State())
		}
		if d.Title != "Existing" || len(s.Headings()) != 1 {
			t.Errorf("Expected fields and headings from the store, got %+v", d)
		}
	})

	t.Run("Missing post", func(t *testing.T) {
		if _, err := OpenExisting(ctx, store, "nope", Options{}); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestDirtyFlag(t *testing.T) {
	store := newFakeStore()
	store.seed(existingPost())
	ctx := context.Background()

	s, err := OpenExisting(ctx, store, "post-existing", Options{})
	if err != nil {
		t.Fatalf("OpenExisting failed: %v", err)
	}

	if s.Dirty() {
		t.Fatal("Expected clean draft before any mutation")
	}

	mutations := []struct {
		field Field
		value string
	}{
		{FieldTitle, "New title"},
		{FieldExcerpt, "Short"},
		{FieldBody, "# One\n## Two"},
		{FieldCoverImageURL, "https://cdn.example.com/c.png"},
		{FieldCategory, " Go "},
		{FieldStatus, "published"},
	}
	for _, m := range mutations {
		if err := s.UpdateField(m.field, m.value); err != nil {
			t.Fatalf("UpdateField(%s) failed: %v", m.field, err)
		}
		if !s.Dirty() {
			t.Errorf("Expected dirty after updating %s", m.field)
		}
	}

	saved, err := s.Save(ctx)
	if err != nil || !saved {
		t.Fatalf("Expected save to succeed, got saved=%v err=%v", saved, err)
	}
	if s.Dirty() {
		t.Error("Expected save acknowledgement to clear dirty")
	}
	if s.State() != StateSaved {
		t.Errorf("Expected state saved, got %s", s.State())
	}
	if post, _ := store.GetPostByID(ctx, "post-existing"); post == nil || post.Category != "Go" {
		t.Errorf("Expected the trimmed category to be stored, got %+v", post)
	}

	t.Run("Clean save is a no-op", func(t *testing.T) {
		saved, err := s.Save(ctx)
		if err != nil || saved {
			t.Errorf("Expected no write, got saved=%v err=%v", saved, err)
		}
		if _, updates := store.counts(); updates != 1 {
			t.Errorf("Expected 1 update, got %d", updates)
		}
	})

	t.Run("Mutation after save", func(t *testing.T) {
		if err := s.UpdateField(FieldTitle, "Again"); err != nil {
			t.Fatal(err)
		}
		if !s.Dirty() || s.State() != StateLoadedForEdit {
			t.Errorf("Expected dirty loaded draft, got dirty=%v state=%s", s.Dirty(), s.State())
		}
	})
}

func TestUpdateFieldErrors(t *testing.T) {
	store := newFakeStore()
	store.seed(existingPost())

	s, _ := OpenExisting(context.Background(), store, "post-existing", Options{})

	tests := []struct {
		name  string
		field Field
		value string
		want  error
	}{
		{"Slug after save", FieldSlug, "other", ErrSlugImmutable},
		{"Unknown field", Field("author"), "x", ErrUnknownField},
		{"Bad status", FieldStatus, "archived", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.UpdateField(tt.field, tt.value); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if s.Dirty() {
		t.Error("Expected rejected updates to leave the draft clean")
	}

	t.Run("Slug on new draft", func(t *testing.T) {
		n := OpenNew(store, "admin", Options{})
		if err := n.UpdateField(FieldSlug, "my-post"); err != nil {
			t.Errorf("Expected slug to be editable before save, got %v", err)
		}
	})
}

func TestPrepareForSave(t *testing.T) {
	day := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		title    string
		slug     string
		body     string
		status   string
		wantSlug string
		wantErr  error
	}{
		{name: "Blank slug uses the date", title: "Post", body: "Body", wantSlug: "20240307"},
		{name: "User slug is normalised", title: "Post", slug: "My Café Post!", body: "Body", wantSlug: "my-cafe-post"},
		{name: "Slug with nothing usable", title: "Post", slug: "!!!", body: "Body", wantSlug: "20240307"},
		{name: "Blank title", title: "   ", body: "Body", wantErr: ErrValidation},
		{name: "Blank body", title: "Post", body: " \n\t", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := OpenNew(newFakeStore(), "admin", Options{})
			s.UpdateField(FieldTitle, tt.title)
			s.UpdateField(FieldSlug, tt.slug)
			s.UpdateField(FieldBody, tt.body)

			rec, err := s.PrepareForSave(day)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rec.Slug != tt.wantSlug {
				t.Errorf("Expected slug %q, got %q", tt.wantSlug, rec.Slug)
			}
			if rec.Status != model.StatusDraft || rec.PublishedAt != nil {
				t.Errorf("Expected unpublished draft record, got %+v", rec)
			}
		})
	}

	t.Run("Publishing stamps published_at once", func(t *testing.T) {
		store := newFakeStore()
		s := OpenNew(store, "admin", fixedNow(day))
		s.UpdateField(FieldTitle, "Post")
		s.UpdateField(FieldBody, "Body")
		s.UpdateField(FieldStatus, "published")

		rec, err := s.PrepareForSave(day)
		if err != nil {
			t.Fatal(err)
		}
		if rec.PublishedAt == nil || !rec.PublishedAt.Equal(day) {
			t.Fatalf("Expected published_at %v, got %v", day, rec.PublishedAt)
		}

		if _, err := s.Save(context.Background()); err != nil {
			t.Fatal(err)
		}
		s.UpdateField(FieldTitle, "Edited")

		later := day.Add(48 * time.Hour)
		rec, _ = s.PrepareForSave(later)
		if rec.PublishedAt == nil || !rec.PublishedAt.Equal(day) {
			t.Errorf("Expected republish to keep %v, got %v", day, rec.PublishedAt)
		}
	})
}

func TestSaveAdoptsStoreFields(t *testing.T) {
	store := newFakeStore()
	s := OpenNew(store, "admin", fixedNow(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)))
	s.UpdateField(FieldTitle, "First")
	s.UpdateField(FieldBody, "Hello")

	if _, err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	d := s.Draft()
	if d.ID != "post-1" || d.Slug != "20240307" || d.UpdatedAt.IsZero() {
		t.Errorf("Expected id, slug and timestamps from the store, got %+v", d)
	}
	if err := s.UpdateField(FieldSlug, "late"); !errors.Is(err, ErrSlugImmutable) {
		t.Errorf("Expected slug to be frozen after the first save, got %v", err)
	}

	s.UpdateField(FieldBody, "Hello again")
	s.Save(context.Background())
	if creates, updates := store.counts(); creates != 1 || updates != 1 {
		t.Errorf("Expected 1 create then 1 update, got %d and %d", creates, updates)
	}
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	store := newFakeStore()
	store.seed(existingPost())
	s, _ := OpenExisting(context.Background(), store, "post-existing", Options{})
	s.UpdateField(FieldTitle, "Changed")

	cause := errors.New("connection reset")
	store.err = cause

	saved, err := s.Save(context.Background())
	if saved || !errors.Is(err, ErrSave) || !errors.Is(err, cause) {
		t.Fatalf("Expected wrapped save error, got saved=%v err=%v", saved, err)
	}
	if !s.Dirty() {
		t.Error("Expected dirty to survive a failed save")
	}
	if s.State() != StateLoadedForEdit {
		t.Errorf("Expected state loaded_for_edit, got %s", s.State())
	}
	if d := s.Draft(); d.Title != "Changed" {
		t.Errorf("Expected draft to be untouched, got title %q", d.Title)
	}

	t.Run("Validation failure leaves state alone", func(t *testing.T) {
		n := OpenNew(store, "admin", Options{})
		n.UpdateField(FieldBody, "no title yet")
		if _, err := n.Save(context.Background()); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected ErrValidation, got %v", err)
		}
		if n.State() != StateNewDraft || !n.Dirty() {
			t.Errorf("Expected dirty new draft, got state=%s dirty=%v", n.State(), n.Dirty())
		}
	})
}

func TestSaveSingleFlight(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 2)
	store.release = make(chan struct{})

	s := OpenNew(store, "admin", Options{})
	s.UpdateField(FieldTitle, "Racing")
	s.UpdateField(FieldBody, "v1")

	first := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		first <- err
	}()
	<-store.started

	if s.State() != StateSaving {
		t.Errorf("Expected state saving, got %s", s.State())
	}

	// Typing continues while the first save is in flight.
	if err := s.UpdateField(FieldBody, "v2"); err != nil {
		t.Fatal(err)
	}

	second := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		second <- err
	}()

	select {
	case <-store.started:
		t.Fatal("Expected the second save to wait for the first")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.release)
	if err := <-first; err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	<-store.started
	if err := <-second; err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	creates, updates := store.counts()
	if creates != 1 || updates != 1 {
		t.Errorf("Expected one create and one update, got %d and %d", creates, updates)
	}
	if s.Dirty() {
		t.Error("Expected draft clean after the second save")
	}
	post, _ := store.GetPostByID(context.Background(), s.PostID())
	if post.Body != "v2" {
		t.Errorf("Expected stored body v2, got %q", post.Body)
	}
}

func TestStaleAcknowledgementKeepsDirty(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})

	s := OpenNew(store, "admin", Options{})
	s.UpdateField(FieldTitle, "T")
	s.UpdateField(FieldBody, "v1")

	done := make(chan struct{})
	go func() {
		s.Save(context.Background())
		close(done)
	}()
	<-store.started
	s.UpdateField(FieldBody, "v2")
	close(store.release)
	<-done

	if !s.Dirty() {
		t.Error("Expected dirty to stay set when the draft changed during the save")
	}
	if s.State() != StateLoadedForEdit {
		t.Errorf("Expected loaded_for_edit, got %s", s.State())
	}
}

func TestSlugEditDuringFirstSave(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 2)
	store.release = make(chan struct{})

	s := OpenNew(store, "admin", Options{})
	s.UpdateField(FieldTitle, "T")
	s.UpdateField(FieldBody, "body")

	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		done <- err
	}()
	<-store.started

	if err := s.UpdateField(FieldSlug, "my-slug"); !errors.Is(err, ErrSlugImmutable) {
		t.Errorf("Expected ErrSlugImmutable while the post is being created, got %v", err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	d := s.Draft()
	if d.Slug == "my-slug" {
		t.Errorf("Expected the rejected slug to not be applied, got %q", d.Slug)
	}
	if d.Dirty {
		t.Error("Expected a rejected edit to leave the draft clean")
	}
}

func TestDedupeTagsConcurrently(t *testing.T) {
	s := OpenNew(newFakeStore(), "admin", Options{TagPolicy: config.TagPolicyDedupe})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.AddTag("go"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if tags := s.Draft().Tags; len(tags) != 1 {
		t.Errorf("Expected a single tag, got %v", tags)
	}
}

func TestTags(t *testing.T) {
	t.Run("Allow duplicates", func(t *testing.T) {
		s := OpenNew(newFakeStore(), "admin", Options{TagPolicy: config.TagPolicyAllow})
		for _, tag := range []string{" go ", "go", "sql"} {
			if err := s.AddTag(tag); err != nil {
				t.Fatal(err)
			}
		}
		if got := s.Draft().Tags; len(got) != 3 || got[0] != "go" {
			t.Errorf("Expected [go go sql], got %v", got)
		}

		removed, err := s.RemoveTag("go")
		if err != nil || !removed {
			t.Fatalf("Expected removal, got %v %v", removed, err)
		}
		if got := s.Draft().Tags; len(got) != 2 || got[0] != "go" || got[1] != "sql" {
			t.Errorf("Expected only the first match removed, got %v", got)
		}
	})

	t.Run("Dedupe", func(t *testing.T) {
		s := OpenNew(newFakeStore(), "admin", Options{TagPolicy: config.TagPolicyDedupe})
		s.AddTag("go")
		s.AddTag("go")
		if got := s.Draft().Tags; len(got) != 1 {
			t.Errorf("Expected one tag, got %v", got)
		}
	})

	t.Run("Empty tag", func(t *testing.T) {
		s := OpenNew(newFakeStore(), "admin", Options{})
		if err := s.AddTag("   "); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected ErrValidation, got %v", err)
		}
		if s.Dirty() {
			t.Error("Expected rejected tag to leave the draft clean")
		}
	})

	t.Run("Remove missing tag", func(t *testing.T) {
		s := OpenNew(newFakeStore(), "admin", Options{})
		removed, err := s.RemoveTag("nope")
		if err != nil || removed || s.Dirty() {
			t.Errorf("Expected no-op, got removed=%v err=%v dirty=%v", removed, err, s.Dirty())
		}
	})
}

func TestBodyEditsRescan(t *testing.T) {
	s := OpenNew(newFakeStore(), "admin", Options{})
	s.UpdateField(FieldBody, "# A\n## B\n### C")

	if n := len(s.Headings()); n != 3 {
		t.Errorf("Expected 3 headings, got %d", n)
	}
	items := s.TOC().Items()
	if len(items) != 2 || items[0].Text != "A" || items[1].Text != "B" {
		t.Errorf("Expected TOC [A B], got %+v", items)
	}

	cur, err := s.InsertAtCursor("\n# D\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.TOC().Items()) != 3 {
		t.Errorf("Expected inserted heading in the TOC, got %+v", s.TOC().Items())
	}
	if cur.Start != len([]rune(s.Draft().Body)) {
		t.Errorf("Expected caret at the end, got %+v", cur)
	}
}

func TestInsertWrapResize(t *testing.T) {
	s := OpenNew(newFakeStore(), "admin", Options{})
	s.UpdateField(FieldBody, "héllo world")

	cur, err := s.InsertAtCursor(ImageMarkdown("image", "/media/a.png"), &Cursor{Start: 5, End: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := "héllo\n![image](/media/a.png)\n world"
	if got := s.Draft().Body; got != want {
		t.Fatalf("Expected %q, got %q", want, got)
	}
	if cur.Start != 5+len([]rune("\n![image](/media/a.png)\n")) || cur.Start != cur.End {
		t.Errorf("Unexpected caret %+v", cur)
	}

	t.Run("Selection is replaced", func(t *testing.T) {
		n := OpenNew(newFakeStore(), "admin", Options{})
		n.UpdateField(FieldBody, "abcdef")
		n.InsertAtCursor("X", &Cursor{Start: 4, End: 1})
		if got := n.Draft().Body; got != "aXef" {
			t.Errorf("Expected aXef, got %q", got)
		}
	})

	t.Run("Out of range cursor is clamped", func(t *testing.T) {
		n := OpenNew(newFakeStore(), "admin", Options{})
		n.UpdateField(FieldBody, "ab")
		n.InsertAtCursor("!", &Cursor{Start: 99, End: 120})
		if got := n.Draft().Body; got != "ab!" {
			t.Errorf("Expected ab!, got %q", got)
		}
	})

	t.Run("Wrap selection", func(t *testing.T) {
		n := OpenNew(newFakeStore(), "admin", Options{})
		n.UpdateField(FieldBody, "make this bold")
		sel, _ := n.WrapSelection("**", "**", Cursor{Start: 10, End: 14})
		if got := n.Draft().Body; got != "make this **bold**" {
			t.Errorf("Unexpected body %q", got)
		}
		if sel.Start != 12 || sel.End != 16 {
			t.Errorf("Expected selection on the wrapped word, got %+v", sel)
		}
	})

	t.Run("Resize image", func(t *testing.T) {
		ok, err := s.ResizeImage("/media/a.png", 640, 0)
		if err != nil || !ok {
			t.Fatalf("Expected resize, got %v %v", ok, err)
		}
		if got := s.Draft().Body; got != "héllo\n![image](/media/a.png?w=640)\n world" {
			t.Errorf("Unexpected body %q", got)
		}

		ok, err = s.ResizeImage("/media/a.png?w=640", 320, 200)
		if err != nil || !ok {
			t.Fatalf("Expected second resize, got %v %v", ok, err)
		}
		if got := s.Draft().Body; got != "héllo\n![image](/media/a.png?h=200&w=320)\n world" {
			t.Errorf("Unexpected body %q", got)
		}

		if ok, _ := s.ResizeImage("/media/missing.png", 1, 1); ok {
			t.Error("Expected no change for an unknown image")
		}
		if _, err := s.ResizeImage("/media/a.png", 0, 0); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected ErrValidation, got %v", err)
		}
	})
}

func TestCloseAndDiscard(t *testing.T) {
	ctx := context.Background()

	t.Run("Close flushes a dirty draft", func(t *testing.T) {
		store := newFakeStore()
		s := OpenNew(store, "admin", Options{})
		s.UpdateField(FieldTitle, "T")
		s.UpdateField(FieldBody, "B")

		if err := s.Close(ctx, true); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if creates, _ := store.counts(); creates != 1 {
			t.Errorf("Expected the final save to create the post, got %d creates", creates)
		}
		if err := s.UpdateField(FieldTitle, "late"); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Expected ErrSessionClosed, got %v", err)
		}
	})

	t.Run("Close without flush", func(t *testing.T) {
		store := newFakeStore()
		s := OpenNew(store, "admin", Options{})
		s.UpdateField(FieldTitle, "T")
		s.UpdateField(FieldBody, "B")

		s.Close(ctx, false)
		if creates, _ := store.counts(); creates != 0 {
			t.Errorf("Expected no save, got %d creates", creates)
		}
	})

	t.Run("Completion after discard is ignored", func(t *testing.T) {
		store := newFakeStore()
		store.started = make(chan struct{}, 1)
		store.release = make(chan struct{})

		s := OpenNew(store, "admin", Options{})
		s.UpdateField(FieldTitle, "T")
		s.UpdateField(FieldBody, "B")

		result := make(chan error, 1)
		go func() {
			_, err := s.Save(ctx)
			result <- err
		}()
		<-store.started
		s.Discard()
		close(store.release)

		if err := <-result; !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Expected ErrSessionClosed, got %v", err)
		}
		if s.PostID() != "" {
			t.Errorf("Expected discarded draft to ignore the store id, got %q", s.PostID())
		}
	})
}

func TestRecover(t *testing.T) {
	store := newFakeStore()
	store.seed(existingPost())
	s, _ := OpenExisting(context.Background(), store, "post-existing", Options{})

	snap := &Snapshot{Draft: Draft{Title: "Recovered", Slug: "ignored", Body: "# New", Tags: []string{"x"}, IsDraft: true}}
	if err := s.Recover(snap); err != nil {
		t.Fatal(err)
	}

	d := s.Draft()
	if d.Title != "Recovered" || d.Body != "# New" || !d.Dirty {
		t.Errorf("Expected recovered dirty draft, got %+v", d)
	}
	if d.Slug != "existing" {
		t.Errorf("Expected persisted slug to be kept, got %q", d.Slug)
	}
	if items := s.TOC().Items(); len(items) != 1 || items[0].AnchorID != "new" {
		t.Errorf("Expected TOC from the recovered body, got %+v", items)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateUnloaded:      "unloaded",
		StateNewDraft:      "new_draft",
		StateLoadedForEdit: "loaded_for_edit",
		StateSaving:        "saving",
		StateSaved:         "saved",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("Expected %q, got %q", want, s.String())
		}
	}
}
