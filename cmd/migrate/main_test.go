package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/repository"
)

func newTestImporter(t *testing.T) (*importer, *repository.DBPostRepository) {
	t.Helper()

	sqlite := db.NewSQLite(db.MemoryPath)
	if err := sqlite.InitDB(); err != nil {
		t.Fatalf("Failed to setup test database: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	repo := repository.NewDBPostRepository(sqlite)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}
	return &importer{repo: repo, owner: "admin", log: zerolog.Nop()}, repo
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const withFrontMatter = `%%%
title = "Hello World"
date = 2024-03-07T09:00:00Z
tags = ["go", "web"]
excerpt = "A greeting"
%%%

# Hello

Body text.
`

func TestRecord(t *testing.T) {
	im, _ := newTestImporter(t)
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		file        string
		content     string
		wantTitle   string
		wantSlug    string
		wantStatus  model.PostStatus
		wantPubDate *time.Time
		wantErr     bool
	}{
		{
			name:       "Front matter",
			file:       "hello.md",
			content:    withFrontMatter,
			wantTitle:  "Hello World",
			wantSlug:   "hello-world",
			wantStatus: model.StatusPublished,
			wantPubDate: func() *time.Time {
				d := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
				return &d
			}(),
		},
		{
			name:        "No front matter uses the file",
			file:        "Plain Notes.md",
			content:     "Just text\n",
			wantTitle:   "Plain Notes",
			wantSlug:    "plain-notes",
			wantStatus:  model.StatusPublished,
			wantPubDate: &mod,
		},
		{
			name:       "Draft flag",
			file:       "d.md",
			content:    "%%%\ntitle = \"WIP\"\ndraft = true\n%%%\nbody\n",
			wantTitle:  "WIP",
			wantSlug:   "wip",
			wantStatus: model.StatusDraft,
		},
		{name: "Empty body", file: "e.md", content: "%%%\ntitle = \"Empty\"\n%%%\n", wantErr: true},
		{name: "Broken front matter", file: "b.md", content: "%%%\ntitle = \n%%%\nbody\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := im.record(tt.file, []byte(tt.content), mod)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected an error, got %+v", rec)
				}
				return
			}
			if err != nil {
				t.Fatalf("record() error = %v", err)
			}
			if rec.Title != tt.wantTitle || rec.Slug != tt.wantSlug || rec.Status != tt.wantStatus {
				t.Errorf("Got %q %q %q, want %q %q %q", rec.Title, rec.Slug, rec.Status, tt.wantTitle, tt.wantSlug, tt.wantStatus)
			}
			switch {
			case tt.wantPubDate == nil && rec.PublishedAt != nil:
				t.Errorf("Expected no publish date, got %v", rec.PublishedAt)
			case tt.wantPubDate != nil && (rec.PublishedAt == nil || !rec.PublishedAt.Equal(*tt.wantPubDate)):
				t.Errorf("Expected publish date %v, got %v", tt.wantPubDate, rec.PublishedAt)
			}
			if rec.Owner != "admin" {
				t.Errorf("Expected owner admin, got %q", rec.Owner)
			}
		})
	}
}

func TestImportDir(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "hello.md", withFrontMatter)
	writeFile(t, dir, "other.md", "Other body\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "empty.md", "")

	n, err := im.importDir(ctx, dir)
	if err != nil {
		t.Fatalf("importDir() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 imports, got %d", n)
	}

	post, err := repo.GetPostBySlug(ctx, "hello-world")
	if err != nil {
		t.Fatalf("GetPostBySlug() error = %v", err)
	}
	if post.Body != "# Hello\n\nBody text.\n" {
		t.Errorf("Expected the body without front matter, got %q", post.Body)
	}

	// Importing again updates in place.
	p := writeFile(t, dir, "hello.md", withFrontMatter+"\nMore.\n")
	again, err := im.importFile(ctx, p)
	if err != nil {
		t.Fatalf("importFile() error = %v", err)
	}
	if again.ID != post.ID {
		t.Errorf("Expected the same post %q, got %q", post.ID, again.ID)
	}

	_, total, err := repo.ListPosts(ctx, repository.ListFilter{Page: 1, PageSize: 10})
	if err != nil || total != 2 {
		t.Errorf("Expected 2 posts, got %d (%v)", total, err)
	}
}

func TestWatchImportsNewFiles(t *testing.T) {
	im, repo := newTestImporter(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.watch(ctx, dir) }()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher registers asynchronously; keep writing until it is seen.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		writeFile(t, dir, "live.md", "Live body\n")
		time.Sleep(300 * time.Millisecond)
		if _, err := repo.GetPostBySlug(context.Background(), "live"); err == nil {
			return
		}
	}
	t.Fatal("Expected the watcher to import live.md")
}
