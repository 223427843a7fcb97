package outline

import (
	"reflect"
	"testing"
)

func TestScan(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected []Heading
	}{
		{
			name: "Levels and order",
			body: "# Title\ntext\n## Section\n### Sub\n###### Deep",
			expected: []Heading{
				{Level: 1, Text: "Title", AnchorID: "title"},
				{Level: 2, Text: "Section", AnchorID: "section"},
				{Level: 3, Text: "Sub", AnchorID: "sub"},
				{Level: 6, Text: "Deep", AnchorID: "deep"},
			},
		},
		{
			name: "Inline markdown kept literal",
			body: "## **Bold** and `code`",
			expected: []Heading{
				{Level: 2, Text: "**Bold** and `code`", AnchorID: "bold-and-code"},
			},
		},
		{
			name:     "Not headings",
			body:     "#nospace\n####### seven\n  # indented\nplain",
			expected: []Heading{},
		},
		{
			name: "Duplicate headings disambiguated",
			body: "# Notes\n# Notes\n## Notes",
			expected: []Heading{
				{Level: 1, Text: "Notes", AnchorID: "notes"},
				{Level: 1, Text: "Notes", AnchorID: "notes-2"},
				{Level: 2, Text: "Notes", AnchorID: "notes-3"},
			},
		},
		{
			name: "CRLF line endings",
			body: "# One\r\n## Two\r\n",
			expected: []Heading{
				{Level: 1, Text: "One", AnchorID: "one"},
				{Level: 2, Text: "Two", AnchorID: "two"},
			},
		},
		{
			name:     "Blank heading ignored",
			body:     "#    \n",
			expected: []Heading{},
		},
		{
			name:     "Empty body",
			body:     "",
			expected: []Heading{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Scan(tc.body)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Scan() = %+v, want %+v", got, tc.expected)
			}
		})
	}
}

func TestScanIsIdempotent(t *testing.T) {
	bodies := []string{
		"",
		"# A\n## B\n### C",
		"# Same\n# Same\ntext\n## Same!",
		"no headings at all\njust text",
	}

	for _, body := range bodies {
		first := Scan(body)
		second := Scan(body)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Scan(%q) not idempotent: %+v vs %+v", body, first, second)
		}
	}
}
