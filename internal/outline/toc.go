package outline

import "sync"

// MaxTOCLevel is the deepest heading level shown in the table of contents.
const MaxTOCLevel = 2

// Band edges of the reading area, as fractions of the viewport height.
const (
	ReadingBandTop    = 0.20
	ReadingBandBottom = 0.70
)

type TOCItem struct {
	Heading
	Active bool `json:"active"`
}

// Project keeps the headings that belong in the table of contents.
func Project(headings []Heading) []TOCItem {
	items := make([]TOCItem, 0, len(headings))
	for _, h := range headings {
		if h.Level <= MaxTOCLevel {
			items = append(items, TOCItem{Heading: h})
		}
	}
	return items
}

// Viewport describes the visible area a reader is scrolled to.
type Viewport struct {
	Height float64
}

// Intersects reports whether a heading box spanning [top, bottom] (relative
// to the viewport top) overlaps the reading band, which excludes the top 20%
// and the bottom 70% of the viewport.
func (v Viewport) Intersects(top, bottom float64) bool {
	if v.Height <= 0 || bottom < top {
		return false
	}
	bandTop := v.Height * ReadingBandTop
	bandBottom := v.Height * (1 - ReadingBandBottom)
	return bottom >= bandTop && top <= bandBottom
}

// Intersection is one observation of a heading element's position.
type Intersection struct {
	AnchorID string  `json:"anchor_id"`
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
}

// Projector keeps the table of contents of the current body and which
// item the reader is looking at.
type Projector struct {
	mu    sync.RWMutex
	items []TOCItem
}

func NewProjector() *Projector {
	return &Projector{items: make([]TOCItem, 0)}
}

// Update rescans body and replaces the item list. The active marker is reset.
func (p *Projector) Update(body string) {
	p.Replace(Scan(body))
}

// Replace swaps in the items for already scanned headings.
func (p *Projector) Replace(headings []Heading) {
	items := Project(headings)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
}

// Observe marks the first table of contents entry (in observation order)
// that intersects the reading band as active. Entries for headings outside
// the table of contents are ignored. When nothing qualifies, no item is
// active.
func (p *Projector) Observe(v Viewport, entries []Intersection) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	activeID := ""
	for _, e := range entries {
		if !v.Intersects(e.Top, e.Bottom) || !p.hasItem(e.AnchorID) {
			continue
		}
		activeID = e.AnchorID
		break
	}

	found := false
	for i := range p.items {
		p.items[i].Active = activeID != "" && !found && p.items[i].AnchorID == activeID
		if p.items[i].Active {
			found = true
		}
	}
	if !found {
		return "", false
	}
	return activeID, true
}

func (p *Projector) hasItem(anchorID string) bool {
	for _, it := range p.items {
		if it.AnchorID == anchorID {
			return true
		}
	}
	return false
}

// Items returns a copy of the current table of contents.
func (p *Projector) Items() []TOCItem {
	p.mu.RLock()
	defer p.mu.RUnlock()

	items := make([]TOCItem, len(p.items))
	copy(items, p.items)
	return items
}

// Active returns the anchor id of the active item, if any.
func (p *Projector) Active() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, it := range p.items {
		if it.Active {
			return it.AnchorID, true
		}
	}
	return "", false
}
