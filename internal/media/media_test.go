package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/storage"
)

// countingStore records every call made to the object store.
type countingStore struct {
	mu      sync.Mutex
	uploads int
	lists   int
	keys    []string
	err     error
}

func (c *countingStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads++
	if c.err != nil {
		return storage.Object{}, c.err
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return storage.Object{}, err
	}
	c.keys = append(c.keys, key)
	return storage.Object{Key: key, Size: n, URL: c.PublicURL(key)}, nil
}

func (c *countingStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (c *countingStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	var out []storage.Object
	for _, k := range c.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, URL: c.PublicURL(k)})
		}
	}
	return out, nil
}

func (c *countingStore) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads + c.lists
}

var uploadTime = time.UnixMilli(1709802000123)

func newTestIngestor(store storage.ObjectStore) *Ingestor {
	return NewIngestor(store, WithClock(func() time.Time { return uploadTime }))
}

func pngUpload(name string, size int) Upload {
	return Upload{
		Filename:    name,
		ContentType: "image/png",
		Size:        int64(size),
		Body:        strings.NewReader(strings.Repeat("x", size)),
	}
}

// untouchedDraft fails the test if the draft is touched.
type untouchedDraft struct {
	t *testing.T
}

func (u untouchedDraft) PostID() model.PostID { return "" }

func (u untouchedDraft) SetCoverImage(string) error {
	u.t.Error("Expected the cover image to stay untouched")
	return nil
}

func (u untouchedDraft) InsertAtCursor(string, *editor.Cursor) (editor.Cursor, error) {
	u.t.Error("Expected the body to stay untouched")
	return editor.Cursor{}, nil
}

func TestValidationHappensBeforeUpload(t *testing.T) {
	tests := []struct {
		name   string
		up     Upload
		target Target
		want   error
	}{
		{
			name: "Too large",
			up:   Upload{Filename: "big.png", ContentType: "image/png", Size: 60 * 1024 * 1024, Body: strings.NewReader("")},
			want: ErrFileTooLarge,
		},
		{
			name: "Not an image",
			up:   Upload{Filename: "doc.pdf", ContentType: "application/pdf", Size: 10, Body: strings.NewReader("")},
			want: ErrInvalidType,
		},
		{
			name: "Missing type",
			up:   Upload{Filename: "x", Size: 10, Body: strings.NewReader("")},
			want: ErrInvalidType,
		},
		{
			name:   "Unknown target",
			up:     pngUpload("a.png", 1),
			target: Target("banner"),
			want:   editor.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{}
			ing := newTestIngestor(store)

			target := tt.target
			if target == "" {
				target = TargetInline
			}
			_, err := ing.Ingest(context.Background(), untouchedDraft{t}, tt.up, target, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if n := store.calls(); n != 0 {
				t.Errorf("Expected zero store calls, got %d", n)
			}
		})
	}
}

func TestMaxUploadSizeOption(t *testing.T) {
	store := &countingStore{}
	ing := NewIngestor(store, WithMaxUploadSize(4))

	if ing.MaxUploadSize() != 4 {
		t.Fatalf("Expected limit 4, got %d", ing.MaxUploadSize())
	}
	if err := ing.Validate(pngUpload("a.png", 5), TargetInline); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge, got %v", err)
	}
	if err := ing.Validate(pngUpload("a.png", 4), TargetInline); err != nil {
		t.Errorf("Expected upload at the limit to pass, got %v", err)
	}

	if NewIngestor(store, WithMaxUploadSize(0)).MaxUploadSize() != DefaultMaxUploadSize {
		t.Error("Expected a zero limit to keep the default")
	}
}

func TestIngestInline(t *testing.T) {
	store := &countingStore{}
	ing := newTestIngestor(store)
	s := editor.OpenNew(nil, "admin", editor.Options{})
	s.UpdateField(editor.FieldBody, "before after")

	res, err := ing.Ingest(context.Background(), s, pngUpload("My Photo (1).png", 3), TargetInline, &editor.Cursor{Start: 6, End: 6})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	wantKey := "temp/1709802000123-My_Photo__1_.png"
	if res.Key != wantKey {
		t.Errorf("Expected key %q, got %q", wantKey, res.Key)
	}
	snippet := "\n![image](https://cdn.example.com/" + wantKey + ")\n"
	if got := s.Draft().Body; got != "before"+snippet+" after" {
		t.Errorf("Unexpected body %q", got)
	}
	if res.Cursor == nil || res.Cursor.Start != 6+len([]rune(snippet)) {
		t.Errorf("Expected caret after the snippet, got %+v", res.Cursor)
	}
}

func TestIngestCoverForSavedPost(t *testing.T) {
	store := &countingStore{}
	ing := newTestIngestor(store)
	d := &fakeDraft{id: "abc"}

	up := pngUpload("cover.jpg", 2)
	up.ContentType = "image/jpeg"
	res, err := ing.Ingest(context.Background(), d, up, TargetCover, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if res.Key != "posts/abc/1709802000123-cover.jpg" {
		t.Errorf("Unexpected key %q", res.Key)
	}
	if d.cover != res.URL || d.inserted != "" {
		t.Errorf("Expected only the cover to change, got cover=%q inserted=%q", d.cover, d.inserted)
	}
	if res.Cursor != nil {
		t.Error("Expected no cursor for a cover upload")
	}

	objs, err := ing.List(context.Background(), "abc")
	if err != nil || len(objs) != 1 || objs[0].Key != res.Key {
		t.Errorf("Expected the upload to be listed, got %+v %v", objs, err)
	}
}

type fakeDraft struct {
	id       model.PostID
	cover    string
	inserted string
}

func (f *fakeDraft) PostID() model.PostID { return f.id }

func (f *fakeDraft) SetCoverImage(url string) error {
	f.cover = url
	return nil
}

func (f *fakeDraft) InsertAtCursor(text string, c *editor.Cursor) (editor.Cursor, error) {
	f.inserted += text
	return editor.Cursor{}, nil
}

func TestIngestUploadFailure(t *testing.T) {
	cause := errors.New("bucket unavailable")
	store := &countingStore{err: cause}
	ing := newTestIngestor(store)

	s := editor.OpenNew(nil, "admin", editor.Options{})
	_, err := ing.Ingest(context.Background(), s, pngUpload("a.png", 1), TargetInline, nil)
	if !errors.Is(err, ErrUpload) || !errors.Is(err, cause) {
		t.Fatalf("Expected ErrUpload wrapping the cause, got %v", err)
	}
	if s.Dirty() || s.Draft().Body != "" {
		t.Error("Expected the draft to stay clean after a failed upload")
	}
}

func TestIngestClosedSession(t *testing.T) {
	ing := newTestIngestor(&countingStore{})
	s := editor.OpenNew(nil, "admin", editor.Options{})
	s.Discard()

	_, err := ing.Ingest(context.Background(), s, pngUpload("a.png", 1), TargetCover, nil)
	if !errors.Is(err, editor.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	tests := map[string]Target{"cover": TargetCover, "inline": TargetInline, "": TargetInline}
	for in, want := range tests {
		got, err := ParseTarget(in)
		if err != nil || got != want {
			t.Errorf("ParseTarget(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTarget("banner"); !errors.Is(err, editor.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.png", "photo.png"},
		{"my photo.png", "my_photo.png"},
		{"café.jpg", "caf_.jpg"},
		{`C:\Users\me\shot.png`, "shot.png"},
		{"../../etc/passwd", "passwd"},
		{"", "upload"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNamespace(t *testing.T) {
	if got := Namespace(""); got != "temp" {
		t.Errorf("Expected temp, got %q", got)
	}
	if got := Namespace("p1"); got != "posts/p1" {
		t.Errorf("Expected posts/p1, got %q", got)
	}
}
