package config

import "regexp"

// Markdown renderers selectable with content.renderer.
const (
	RendererMmark   = "mmark"
	RendererClassic = "classic"
)

var (
	// RegexCallout matches code callouts such as "// <<1>>" after highlighting.
	RegexCallout = regexp.MustCompile(`//\s*<<(\d+)>>`)
)
