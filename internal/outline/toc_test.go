package outline

import "testing"

func TestProjectFiltersLevels(t *testing.T) {
	items := Project(Scan("# A\n## B\n### C"))

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Text != "A" || items[1].Text != "B" {
		t.Errorf("Expected items A, B; got %q, %q", items[0].Text, items[1].Text)
	}
	for _, it := range items {
		if it.Active {
			t.Errorf("Expected no active item after projection, got %q", it.AnchorID)
		}
	}
}

func TestViewportIntersects(t *testing.T) {
	v := Viewport{Height: 1000}

	testCases := []struct {
		name        string
		top, bottom float64
		expected    bool
	}{
		{name: "Inside band", top: 220, bottom: 260, expected: true},
		{name: "Straddles band top", top: 180, bottom: 210, expected: true},
		{name: "Straddles band bottom", top: 290, bottom: 340, expected: true},
		{name: "Above band", top: 10, bottom: 50, expected: false},
		{name: "Below band", top: 400, bottom: 440, expected: false},
		{name: "Inverted box", top: 260, bottom: 220, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.Intersects(tc.top, tc.bottom); got != tc.expected {
				t.Errorf("Intersects(%v, %v) = %v, want %v", tc.top, tc.bottom, got, tc.expected)
			}
		})
	}

	if (Viewport{}).Intersects(0, 10) {
		t.Error("Expected zero-height viewport to never intersect")
	}
}

func TestProjectorObserve(t *testing.T) {
	p := NewProjector()
	p.Update("# Intro\n## Usage\n## Usage\n### Detail")

	v := Viewport{Height: 1000}

	t.Run("First intersecting heading wins", func(t *testing.T) {
		id, ok := p.Observe(v, []Intersection{
			{AnchorID: "intro", Top: 0, Bottom: 40},
			{AnchorID: "usage", Top: 210, Bottom: 250},
			{AnchorID: "usage-2", Top: 260, Bottom: 290},
		})
		if !ok || id != "usage" {
			t.Fatalf("Expected usage active, got %q (%v)", id, ok)
		}

		active := 0
		for _, it := range p.Items() {
			if it.Active {
				active++
			}
		}
		if active != 1 {
			t.Errorf("Expected exactly one active item, got %d", active)
		}
	})

	t.Run("Nothing intersecting clears active", func(t *testing.T) {
		if _, ok := p.Observe(v, []Intersection{{AnchorID: "intro", Top: 900, Bottom: 950}}); ok {
			t.Error("Expected no active item")
		}
		if _, ok := p.Active(); ok {
			t.Error("Expected Active() to report nothing")
		}
	})

	t.Run("Heading outside the outline", func(t *testing.T) {
		if _, ok := p.Observe(v, []Intersection{{AnchorID: "detail", Top: 220, Bottom: 240}}); ok {
			t.Error("Expected level 3 heading to not become active")
		}
	})

	t.Run("Deeper heading does not shadow a later item", func(t *testing.T) {
		id, ok := p.Observe(v, []Intersection{
			{AnchorID: "detail", Top: 210, Bottom: 230},
			{AnchorID: "usage-2", Top: 260, Bottom: 280},
		})
		if !ok || id != "usage-2" {
			t.Fatalf("Expected usage-2 active, got %q (%v)", id, ok)
		}
	})

	t.Run("Update replaces items", func(t *testing.T) {
		p.Observe(v, []Intersection{{AnchorID: "intro", Top: 220, Bottom: 240}})
		p.Update("# Other")

		items := p.Items()
		if len(items) != 1 || items[0].AnchorID != "other" {
			t.Fatalf("Expected single item other, got %+v", items)
		}
		if items[0].Active {
			t.Error("Expected active marker to reset after update")
		}
	})
}
