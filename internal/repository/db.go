package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/cache"
	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/util"
	"github.com/debemdeboas/atelier/internal/util/compression"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

const postColumns = `id, title, slug, content, md_content_hash, excerpt, cover_image_url, tags, category, status, published_at, created_at, modified_at, user_id`

type DBPostRepository struct { // implements PostRepository
	postsCache       *cache.Cache[model.PostID, *model.Post]
	postsCacheSorted []model.Post
	mu               sync.RWMutex

	reloadNotifier   func(model.PostID)
	lastModifiedTime *time.Time // Track the latest modification time

	group singleflight.Group
	now   func() time.Time

	db         db.DB
	compressor compression.Compressor
}

func NewDBPostRepository(db db.DB) *DBPostRepository {
	return &DBPostRepository{
		postsCache: cache.NewCache[model.PostID, *model.Post](),

		db:  db,
		now: func() time.Time { return time.Now().UTC() },

		compressor: compression.ZstdCompressor{},
	}
}

// Init fills the cache. Call Watch afterwards to follow external writes.
func (r *DBPostRepository) Init(ctx context.Context) error {
	posts, postMap, err := r.GetPosts(ctx)
	if err != nil {
		return err
	}

	r.swap(posts, postMap)
	return nil
}

func (r *DBPostRepository) swap(posts []model.Post, postMap map[model.PostID]*model.Post) {
	r.mu.Lock()
	r.postsCacheSorted = posts
	r.mu.Unlock()
	r.postsCache.SetTo(postMap)
}

func (r *DBPostRepository) GetLatestModifiedTime(ctx context.Context) (*time.Time, error) {
	var latestTimeStr sql.NullString
	row := r.db.QueryRowContext(ctx, `SELECT MAX(modified_at) FROM posts`)
	err := row.Scan(&latestTimeStr)
	if err != nil {
		return nil, fmt.Errorf("error scanning latest modified time: %w", err)
	}

	if !latestTimeStr.Valid {
		return nil, nil
	}

	// The go-sqlite3 driver returns a string for MAX(), so we must parse it.
	timeFormats := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	}

	var latestTime time.Time
	var parseErr error
	for _, format := range timeFormats {
		latestTime, parseErr = time.Parse(format, latestTimeStr.String)
		if parseErr == nil {
			return &latestTime, nil
		}
	}

	return nil, fmt.Errorf("error parsing latest modified time '%s' with any known format: %w", latestTimeStr.String, parseErr)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DBPostRepository) scanPost(row rowScanner) (*model.Post, error) {
	var post model.Post
	var compressed []byte
	var tags, status string
	var hash, owner sql.NullString
	var publishedAt, modifiedAt sql.NullTime

	err := row.Scan(&post.ID, &post.Title, &post.Slug, &compressed, &hash, &post.Excerpt,
		&post.CoverImageURL, &tags, &post.Category, &status, &publishedAt, &post.CreatedDate, &modifiedAt, &owner)
	if err != nil {
		return nil, err
	}

	content, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content of %s: %w", post.ID, err)
	}
	post.Body = string(content)

	if err := json.Unmarshal([]byte(tags), &post.Tags); err != nil || post.Tags == nil {
		post.Tags = []string{}
	}

	post.Status = model.ParsePostStatus(status)
	post.MDContentHash = hash.String
	post.Owner = model.UserID(owner.String)
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	if modifiedAt.Valid {
		post.ModifiedDate = modifiedAt.Time
	} else {
		post.ModifiedDate = post.CreatedDate
	}

	return &post, nil
}

// GetPosts reads every post from the database, newest first.
func (r *DBPostRepository) GetPosts(ctx context.Context) ([]model.Post, map[model.PostID]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts`)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: error querying posts: %w", ErrFetch, err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	var latestModTime *time.Time

	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: error scanning post: %w", ErrFetch, err)
		}

		if latestModTime == nil || post.ModifiedDate.After(*latestModTime) {
			mod := post.ModifiedDate
			latestModTime = &mod
		}

		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	r.mu.Lock()
	r.lastModifiedTime = latestModTime
	r.mu.Unlock()

	slices.SortStableFunc(posts, func(a, b model.Post) int {
		return -a.CreatedDate.Compare(b.CreatedDate)
	})

	postMap := make(map[model.PostID]*model.Post, len(posts))
	for i := range posts {
		postMap[posts[i].ID] = &posts[i]
	}

	return posts, postMap, nil
}

// GetPostList returns the cached posts, newest first.
func (r *DBPostRepository) GetPostList() []model.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.postsCacheSorted)
}

func (r *DBPostRepository) ListPosts(ctx context.Context, filter ListFilter) ([]model.Post, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 10
	}

	r.mu.RLock()
	matched := make([]model.Post, 0)
	for _, post := range r.postsCacheSorted {
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(post.Category, strings.TrimSpace(filter.Category)) {
			continue
		}
		if !matchesSearch(&post, filter.Search) {
			continue
		}
		matched = append(matched, post)
	}
	r.mu.RUnlock()

	total := len(matched)
	from := (filter.Page - 1) * filter.PageSize
	if from >= total {
		return []model.Post{}, total, nil
	}
	to := min(from+filter.PageSize, total)

	return matched[from:to], total, nil
}

func matchesSearch(post *model.Post, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}

	if strings.Contains(strings.ToLower(post.Title), search) ||
		strings.Contains(strings.ToLower(post.Excerpt), search) ||
		strings.Contains(strings.ToLower(post.Body), search) {
		return true
	}

	for _, tag := range post.Tags {
		if strings.Contains(strings.ToLower(tag), search) {
			return true
		}
	}
	return false
}

func (r *DBPostRepository) GetPostByID(ctx context.Context, id model.PostID) (*model.Post, error) {
	if post, ok := r.postsCache.Get(id); ok {
		p := *post
		return &p, nil
	}

	return r.lookup(ctx, "id:"+string(id), `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
}

func (r *DBPostRepository) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	r.mu.RLock()
	for i := range r.postsCacheSorted {
		if r.postsCacheSorted[i].Slug == slug {
			p := r.postsCacheSorted[i]
			r.mu.RUnlock()
			return &p, nil
		}
	}
	r.mu.RUnlock()

	return r.lookup(ctx, "slug:"+slug, `SELECT `+postColumns+` FROM posts WHERE slug = ?`, slug)
}

// lookup goes to the database on a cache miss. Concurrent misses for the
// same key share one query.
func (r *DBPostRepository) lookup(ctx context.Context, key, query string, arg any) (*model.Post, error) {
	v, err, _ := r.group.Do(key, func() (any, error) {
		post, err := r.scanPost(r.db.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post %v: %w", arg, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		return post, nil
	})
	if err != nil {
		return nil, err
	}

	p := *v.(*model.Post)
	return &p, nil
}

func contentHash(rec *model.PostRecord) string {
	return util.ContentHashString(strings.Join([]string{
		rec.Title, rec.Slug, rec.Body, rec.Excerpt, rec.CoverImageURL,
		strings.Join(rec.Tags, "\x1f"), rec.Category, string(rec.Status),
	}, "\x00"))
}

func (r *DBPostRepository) encode(rec *model.PostRecord) (compressed []byte, tags string, published sql.NullTime, err error) {
	compressed, err = r.compressor.Compress([]byte(rec.Body))
	if err != nil {
		return nil, "", published, fmt.Errorf("error compressing content: %w", err)
	}

	t := rec.Tags
	if t == nil {
		t = []string{}
	}
	tagsJSON, err := json.Marshal(t)
	if err != nil {
		return nil, "", published, fmt.Errorf("error encoding tags: %w", err)
	}

	if rec.PublishedAt != nil {
		published = sql.NullTime{Time: rec.PublishedAt.UTC(), Valid: true}
	}

	return compressed, string(tagsJSON), published, nil
}

func writeError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("error saving post: %w", ErrSlugTaken)
	}
	return fmt.Errorf("error saving post: %w", err)
}

func (r *DBPostRepository) CreatePost(ctx context.Context, rec model.PostRecord) (*model.Post, error) {
	compressed, tags, published, err := r.encode(&rec)
	if err != nil {
		return nil, err
	}

	id := model.PostID(uuid.New().String())
	now := r.now()
	status := rec.Status
	if status == "" {
		status = model.StatusDraft
	}
	rec.Status = status

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Title, rec.Slug, compressed, contentHash(&rec), rec.Excerpt, rec.CoverImageURL,
		tags, rec.Category, string(status), published, now, now, string(rec.Owner),
	)
	if err != nil {
		return nil, writeError(err)
	}

	repoLogger.Debug().Interface("result", res).Str("post_id", string(id)).Msg("Post created")

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.GetPostByID(ctx, id)
}

func (r *DBPostRepository) UpdatePost(ctx context.Context, id model.PostID, rec model.PostRecord) (*model.Post, error) {
	compressed, tags, published, err := r.encode(&rec)
	if err != nil {
		return nil, err
	}
	if rec.Status == "" {
		rec.Status = model.StatusDraft
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = ?, slug = ?, content = ?, md_content_hash = ?, excerpt = ?, cover_image_url = ?,
		tags = ?, category = ?, status = ?, published_at = ?, modified_at = ? WHERE id = ?`,
		rec.Title, rec.Slug, compressed, contentHash(&rec), rec.Excerpt, rec.CoverImageURL,
		tags, rec.Category, string(rec.Status), published, r.now(), id,
	)
	if err != nil {
		return nil, writeError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	repoLogger.Debug().Str("post_id", string(id)).Msg("Post updated")

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.GetPostByID(ctx, id)
}

func (r *DBPostRepository) DeletePost(ctx context.Context, id model.PostID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	repoLogger.Info().Str("post_id", string(id)).Msg("Post deleted")
	return r.refresh(ctx)
}

// Reload re-reads the posts table and swaps the cache when anything changed.
// Concurrent callers share one reload.
func (r *DBPostRepository) Reload(ctx context.Context) error {
	_, err, _ := r.group.Do("reload", func() (any, error) {
		return nil, r.refresh(ctx)
	})
	return err
}

func (r *DBPostRepository) refresh(ctx context.Context) error {
	posts, postMap, err := r.GetPosts(ctx)
	if err != nil {
		return err
	}

	r.mu.RLock()
	cached := make(map[model.PostID]string, len(r.postsCacheSorted))
	for i := range r.postsCacheSorted {
		cached[r.postsCacheSorted[i].ID] = r.postsCacheSorted[i].MDContentHash
	}
	notifier := r.reloadNotifier
	r.mu.RUnlock()

	hasChanges := len(posts) != len(cached)
	for _, newPost := range posts {
		hash, exists := cached[newPost.ID]
		if !exists {
			hasChanges = true
			repoLogger.Info().
				Str("post_id", string(newPost.ID)).
				Str("title", newPost.Title).
				Msg("New post detected")
			continue
		}
		if hash != newPost.MDContentHash {
			hasChanges = true
			repoLogger.Info().
				Str("post_id", string(newPost.ID)).
				Str("title", newPost.Title).
				Msg("Post content changed, reloading")
			if notifier != nil {
				go notifier(newPost.ID)
			}
		}
	}

	if hasChanges {
		repoLogger.Debug().Int("posts", len(posts)).Msg("Posts have changed, updating cache")
		r.swap(posts, postMap)
	}
	return nil
}

// Watch polls for writes made outside this process (for example by
// cmd/migrate) until ctx is done.
func (r *DBPostRepository) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		latestTime, err := r.GetLatestModifiedTime(ctx)
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error checking latest modification time")
			continue
		}

		r.mu.RLock()
		last := r.lastModifiedTime
		count := len(r.postsCacheSorted)
		r.mu.RUnlock()

		if !modifiedSince(last, latestTime) && r.count(ctx) == count {
			repoLogger.Debug().Msg("No posts modified, skipping reload")
			continue
		}

		if err := r.Reload(ctx); err != nil {
			repoLogger.Error().Err(err).Msg(config.ErrReloadingPosts)
		}
	}
}

func modifiedSince(last, latest *time.Time) bool {
	if last == nil || latest == nil {
		return last != latest
	}
	return latest.After(*last)
}

// count catches deletions, which do not move MAX(modified_at) forward.
func (r *DBPostRepository) count(ctx context.Context) int {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return -1
	}
	return n
}

func (r *DBPostRepository) SetReloadNotifier(notifier func(model.PostID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloadNotifier = notifier
}
