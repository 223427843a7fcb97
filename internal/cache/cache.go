// Package cache provides a thread-safe generic map and the caches built on it.
package cache

import (
	"sync"

	"github.com/debemdeboas/atelier/internal/outline"
)

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// SetTo replaces the whole map. The caller must not modify items afterwards.
func (c *Cache[K, V]) SetTo(items map[K]V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

// MaxRenderedEntries bounds the preview cache. Drafts change on every
// keystroke, so the cache is dropped wholesale when it fills up.
const MaxRenderedEntries = 512

// RenderedContent is a rendered markdown document with the headings its
// anchors were derived from.
type RenderedContent struct {
	HTML     []byte
	Headings []outline.Heading
}

var renderedMarkdownCache = NewCache[string, *RenderedContent]()

func GetRenderedMarkdown(contentHash, syntaxTheme string) (*RenderedContent, bool) {
	key := contentHash + ":" + syntaxTheme
	return renderedMarkdownCache.Get(key)
}

func SetRenderedMarkdown(contentHash, syntaxTheme string, html []byte, headings []outline.Heading) {
	if renderedMarkdownCache.Len() >= MaxRenderedEntries {
		renderedMarkdownCache.Clear()
	}

	key := contentHash + ":" + syntaxTheme
	renderedMarkdownCache.Set(key, &RenderedContent{
		HTML:     html,
		Headings: headings,
	})
}

func ClearRenderedMarkdownCache() {
	renderedMarkdownCache.Clear()
}

func RenderedMarkdownLen() int {
	return renderedMarkdownCache.Len()
}
