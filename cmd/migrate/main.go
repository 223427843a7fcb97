// Command migrate imports markdown files with TOML front matter into the
// post database. With -watch it keeps importing files as they change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/anchor"
	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/logger"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/repository"
	"github.com/debemdeboas/atelier/internal/util"
)

const watchDebounce = 200 * time.Millisecond

func main() {
	path := flag.String("path", "", "Path to the directory containing .md files")
	ownerID := flag.String("owner-id", "", "Owner user ID for the posts")
	dbPath := flag.String("db", "./database.db", "Path to the SQLite database")
	watch := flag.Bool("watch", false, "Keep importing files as they are written")
	flag.Parse()

	log := logger.New("info", "console")

	if *path == "" || *ownerID == "" {
		log.Fatal().Msg("Both -path and -owner-id flags are required")
	}

	sqlite := db.NewSQLite(*dbPath)
	if err := sqlite.InitDB(); err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer sqlite.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewDBPostRepository(sqlite)
	if err := repo.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error loading posts")
	}

	im := &importer{repo: repo, owner: model.UserID(*ownerID), log: log}
	n, err := im.importDir(ctx, *path)
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("Error reading directory")
	}
	log.Info().Int("count", n).Msg("Import finished")

	if *watch {
		if err := im.watch(ctx, *path); err != nil {
			log.Fatal().Err(err).Msg("Watcher failed")
		}
	}
}

type importer struct {
	repo  repository.PostRepository
	owner model.UserID
	log   zerolog.Logger
}

// importDir imports every .md file in dir and returns how many succeeded.
func (im *importer) importDir(ctx context.Context, dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, file := range files {
		if file.IsDir() || !isMarkdown(file.Name()) {
			continue
		}
		p := filepath.Join(dir, file.Name())
		if _, err := im.importFile(ctx, p); err != nil {
			im.log.Error().Err(err).Str("file", file.Name()).Msg("Error importing file")
			continue
		}
		im.log.Info().Str("file", file.Name()).Msg("Imported post")
		n++
	}
	return n, nil
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(name, ".md")
}

// importFile creates the post for a file, or updates the post that already
// has its slug.
func (im *importer) importFile(ctx context.Context, path string) (*model.Post, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rec, err := im.record(filepath.Base(path), content, info.ModTime())
	if err != nil {
		return nil, err
	}

	existing, err := im.repo.GetPostBySlug(ctx, rec.Slug)
	switch {
	case err == nil:
		return im.repo.UpdatePost(ctx, existing.ID, rec)
	case errors.Is(err, repository.ErrNotFound):
		return im.repo.CreatePost(ctx, rec)
	default:
		return nil, err
	}
}

// record builds the post from the front matter. Files without front matter
// are imported as published posts titled after the file name.
func (im *importer) record(name string, content []byte, modTime time.Time) (model.PostRecord, error) {
	fm, err := util.GetFrontMatter(content)
	if err != nil && !errors.Is(err, util.ErrNoFrontMatter) {
		return model.PostRecord{}, err
	}
	if fm == nil {
		fm = &util.FrontMatter{}
	}

	rec := model.PostRecord{
		Title:         fm.Title,
		Slug:          fm.Slug,
		Body:          strings.TrimLeft(string(util.Body(content, fm)), "\n"),
		Excerpt:       fm.Excerpt,
		CoverImageURL: fm.Cover,
		Category:      strings.TrimSpace(fm.Category),
		Tags:          fm.Tags,
		Status:        model.StatusPublished,
		Owner:         im.owner,
	}
	if rec.Title == "" {
		rec.Title = strings.TrimSuffix(name, ".md")
	}
	if rec.Slug == "" {
		rec.Slug = rec.Title
	}
	rec.Slug = anchor.URLSlug(rec.Slug)
	if rec.Slug == "" {
		return model.PostRecord{}, fmt.Errorf("no usable slug for %s", name)
	}
	if strings.TrimSpace(rec.Body) == "" {
		return model.PostRecord{}, fmt.Errorf("%s has no body", name)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	if fm.Draft {
		rec.Status = model.StatusDraft
	} else {
		published := modTime.UTC()
		if !fm.Date.IsZero() {
			published = fm.Date.UTC()
		}
		rec.PublishedAt = &published
	}
	return rec, nil
}

// watch imports markdown files in dir as they are created or written,
// until ctx is done. Bursts of events for one file collapse into a single
// import.
func (im *importer) watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	im.log.Info().Str("path", dir).Msg("Watching for changes")

	pending := make(map[string]struct{})
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && isMarkdown(ev.Name) {
				pending[ev.Name] = struct{}{}
				debounce.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.log.Warn().Err(err).Msg("Watcher error")
		case <-debounce.C:
			for p := range pending {
				if _, err := im.importFile(ctx, p); err != nil {
					im.log.Error().Err(err).Str("file", p).Msg("Error importing file")
				} else {
					im.log.Info().Str("file", p).Msg("Imported post")
				}
			}
			clear(pending)
		}
	}
}
