// Package media validates uploaded images, stores them in the object store
// and splices the resulting references into the draft being edited.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/storage"
)

var (
	ErrInvalidType  = errors.New("only image uploads are accepted")
	ErrFileTooLarge = errors.New("file too large")
	ErrUpload       = errors.New("upload failed")
)

// DefaultMaxUploadSize applies when an Ingestor is built without a limit.
const DefaultMaxUploadSize int64 = 50 * 1024 * 1024

// DefaultAlt is the alt text of inline images uploaded without one.
const DefaultAlt = "image"

var mediaLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	mediaLogger = l
}

type Target string

const (
	TargetCover  Target = "cover"
	TargetInline Target = "inline"
)

func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetCover, TargetInline:
		return t, nil
	case "":
		return TargetInline, nil
	default:
		return "", fmt.Errorf("%w: unknown upload target %q", editor.ErrValidation, s)
	}
}

// Upload is one file picked by the author.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Alt         string
}

// Draft is the part of an editing session an upload lands in.
type Draft interface {
	PostID() model.PostID
	SetCoverImage(url string) error
	InsertAtCursor(text string, cursor *editor.Cursor) (editor.Cursor, error)
}

type Result struct {
	Key    string         `json:"key"`
	URL    string         `json:"url"`
	Target Target         `json:"target"`
	Cursor *editor.Cursor `json:"cursor,omitempty"`
}

type Ingestor struct {
	store         storage.ObjectStore
	maxUploadSize int64
	now           func() time.Time
}

type Option func(*Ingestor)

func WithMaxUploadSize(n int64) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxUploadSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

func NewIngestor(store storage.ObjectStore, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:         store,
		maxUploadSize: DefaultMaxUploadSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Ingestor) MaxUploadSize() int64 {
	return i.maxUploadSize
}

// Validate checks an upload before anything is sent to the store.
func (i *Ingestor) Validate(up Upload, target Target) error {
	if target != TargetCover && target != TargetInline {
		return fmt.Errorf("%w: unknown upload target %q", editor.ErrValidation, target)
	}
	if !strings.HasPrefix(strings.ToLower(up.ContentType), "image/") {
		return fmt.Errorf("%w: got %q", ErrInvalidType, up.ContentType)
	}
	if up.Size > i.maxUploadSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, up.Size, i.maxUploadSize)
	}
	return nil
}

// Ingest stores up and attaches it to the draft as its cover image or as an
// inline image at cursor. A nil cursor appends to the body. The draft is
// left untouched when any step before the splice fails.
func (i *Ingestor) Ingest(ctx context.Context, d Draft, up Upload, target Target, cursor *editor.Cursor) (Result, error) {
	if err := i.Validate(up, target); err != nil {
		return Result{}, err
	}

	key := ObjectKey(d.PostID(), up.Filename, i.now())

	// Never read past the declared size, in case the client lied about it.
	body := io.LimitReader(up.Body, i.maxUploadSize+1)
	obj, err := i.store.Upload(ctx, key, body, up.Size, up.ContentType)
	if err != nil {
		mediaLogger.Warn().Err(err).Str("key", key).Msg("Image upload failed")
		return Result{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if obj.Size > i.maxUploadSize {
		return Result{}, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, obj.Size, i.maxUploadSize)
	}

	url := obj.URL
	if url == "" {
		url = i.store.PublicURL(obj.Key)
	}

	res := Result{Key: obj.Key, URL: url, Target: target}
	switch target {
	case TargetCover:
		if err := d.SetCoverImage(url); err != nil {
			return Result{}, err
		}
	default:
		alt := strings.TrimSpace(up.Alt)
		if alt == "" {
			alt = DefaultAlt
		}
		c, err := d.InsertAtCursor(editor.ImageMarkdown(alt, url), cursor)
		if err != nil {
			return Result{}, err
		}
		res.Cursor = &c
	}

	mediaLogger.Info().Str("key", obj.Key).Str("target", string(target)).Int64("size", obj.Size).Msg("Image ingested")
	return res, nil
}

// List returns the images already uploaded for a post, newest key last.
func (i *Ingestor) List(ctx context.Context, id model.PostID) ([]storage.Object, error) {
	objs, err := i.store.List(ctx, Namespace(id)+"/")
	if err != nil {
		return nil, fmt.Errorf("error listing images: %w", err)
	}
	return objs, nil
}

// Namespace is the key prefix of a post's images. Unsaved drafts share the
// temp namespace.
func Namespace(id model.PostID) string {
	if id == "" {
		return config.MediaTempPrefix
	}
	return path.Join(config.MediaPostsPrefix, string(id))
}

// ObjectKey builds the store key for an upload.
func ObjectKey(id model.PostID, filename string, now time.Time) string {
	return Namespace(id) + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeFilename(filename)
}

// SanitizeFilename replaces every rune outside [a-zA-Z0-9.-] with '_'.
func SanitizeFilename(name string) string {
	// Browsers may send a full client path.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "upload"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
