package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/repository"
)

// fakeStore is an in-memory post store that counts writes.
type fakeStore struct {
	mu      sync.Mutex
	posts   map[model.PostID]*model.Post
	creates int
	updates int
	err     error

	// When set, writes block until release is closed.
	started chan struct{}
	release chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: make(map[model.PostID]*model.Post)}
}

func (f *fakeStore) wait() error {
	f.mu.Lock()
	started, release, err := f.started, f.release, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeStore) write(id model.PostID, rec model.PostRecord) *model.Post {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	post := &model.Post{
		ID:            id,
		Title:         rec.Title,
		Slug:          rec.Slug,
		Body:          rec.Body,
		Excerpt:       rec.Excerpt,
		CoverImageURL: rec.CoverImageURL,
		Category:      rec.Category,
		Tags:          rec.Tags,
		Status:        rec.Status,
		PublishedAt:   rec.PublishedAt,
		Owner:         rec.Owner,
		CreatedDate:   now,
		ModifiedDate:  now,
	}
	if old, ok := f.posts[id]; ok {
		post.CreatedDate = old.CreatedDate
	}
	f.posts[id] = post
	p := *post
	return &p
}

func (f *fakeStore) CreatePost(ctx context.Context, rec model.PostRecord) (*model.Post, error) {
	if err := f.wait(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return f.write(model.PostID(fmt.Sprintf("post-%d", f.creates)), rec), nil
}

func (f *fakeStore) UpdatePost(ctx context.Context, id model.PostID, rec model.PostRecord) (*model.Post, error) {
	if err := f.wait(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return nil, repository.ErrNotFound
	}
	f.updates++
	return f.write(id, rec), nil
}

func (f *fakeStore) GetPostByID(ctx context.Context, id model.PostID) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, repository.ErrNotFound)
	}
	p := *post
	return &p, nil
}

func (f *fakeStore) seed(post model.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[post.ID] = &post
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates
}

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	f     func()
	done  bool
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance moves time forward by d, running due timers in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) && (next == nil || t.at.Before(next.at)) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

var testStart = time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)

func existingPost() model.Post {
	return model.Post{
		ID:           "post-existing",
		Title:        "Existing",
		Slug:         "existing",
		Body:         "# Intro\n\nText",
		Tags:         []string{"go"},
		Status:       model.StatusDraft,
		Owner:        "admin",
		CreatedDate:  testStart.Add(-time.Hour),
		ModifiedDate: testStart.Add(-time.Hour),
	}
}
