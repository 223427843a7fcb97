package api

import (
	"net/http"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/render"
	"github.com/debemdeboas/atelier/internal/util"
)

const previewPlaceholder = "Start typing in the editor to see a preview here."

// syntaxTheme picks the highlight theme from ?theme, then the theme
// cookie, then the configured default.
func (s *Server) syntaxTheme(r *http.Request) string {
	if t := r.URL.Query().Get("theme"); t != "" {
		return t
	}
	if c, err := r.Cookie(config.CookieSyntaxTheme); err == nil && c.Value != "" {
		return c.Value
	}
	return s.opts.SyntaxTheme
}

// handlePreview renders the posted content, or the open draft's body when
// the form carries none. ?view=source returns the highlighted markdown.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.opts.LivePreview {
		http.NotFound(w, r)
		return
	}

	content := r.FormValue("content")
	if content == "" {
		if sess, err := s.Workspace.Session(); err == nil {
			content = sess.Draft().Body
		}
	}
	if content == "" {
		content = previewPlaceholder
	}

	theme := s.syntaxTheme(r)
	var out []byte
	if r.URL.Query().Get("view") == "source" {
		src, err := render.HighlightMarkdown(content, theme)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = []byte(src)
	} else {
		out = render.RenderCached([]byte(content), theme).HTML
	}

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleSyntaxCSS(w http.ResponseWriter, r *http.Request) {
	css := []byte(render.SyntaxCSS(s.syntaxTheme(r)))

	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(css))
	w.Header().Set(config.HCacheControl, "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(css)
}
