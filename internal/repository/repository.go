// Package repository implements the post and settings stores on top of SQLite.
package repository

import (
	"context"
	"errors"

	"github.com/debemdeboas/atelier/internal/model"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrFetch     = errors.New("fetch failed")
	ErrSlugTaken = errors.New("slug already in use")
)

var repoLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

// ListFilter selects a page of posts. An empty Status or Category matches
// every post. Category matches case-insensitively. Page is 1-based.
type ListFilter struct {
	Status   model.PostStatus
	Category string
	Search   string
	Page     int
	PageSize int
}

type PostRepository interface {
	CreatePost(ctx context.Context, rec model.PostRecord) (*model.Post, error)
	UpdatePost(ctx context.Context, id model.PostID, rec model.PostRecord) (*model.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*model.Post, error)
	GetPostByID(ctx context.Context, id model.PostID) (*model.Post, error)
	ListPosts(ctx context.Context, filter ListFilter) ([]model.Post, int, error)
	DeletePost(ctx context.Context, id model.PostID) error

	// SetReloadNotifier sets a function that will be called when a cached
	// post changes during a reload.
	SetReloadNotifier(notifier func(model.PostID))
}

type SettingsRepository interface {
	// GetSettings returns nil, nil when no settings row exists yet.
	GetSettings(ctx context.Context) (*model.SiteSettings, error)
	UpsertSettings(ctx context.Context, patch model.SettingsPatch, by model.UserID) (*model.SiteSettings, error)
}
