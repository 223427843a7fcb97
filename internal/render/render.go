// Package render turns markdown into HTML for the draft preview and the
// reading view, with chroma-highlighted code and heading ids that match the
// editor's table of contents.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog"

	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"

	"github.com/debemdeboas/atelier/internal/anchor"
	"github.com/debemdeboas/atelier/internal/cache"
	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/outline"
	"github.com/debemdeboas/atelier/internal/util"
)

var renderLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

var renderer = config.RendererMmark

// SetRenderer selects the markdown engine. Cached output is dropped since it
// came from the previous engine.
func SetRenderer(name string) {
	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()
	renderer = name
	cache.ClearRenderedMarkdownCache()
}

func HighlightCode(code, language, highlightTheme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	style := styles.Get(highlightTheme)

	var buf strings.Builder
	if err := Formatter().Format(&buf, style, iterator); err != nil {
		return code
	}

	res := html.UnescapeString(buf.String())
	res = config.RegexCallout.ReplaceAllString(res, "<span class=\"callout\">$1</span>")
	return res
}

// assignHeadingIDs gives every heading in doc the anchor id the outline
// scanner derived for it. The scanner is line based and also sees lines
// such as shell comments inside fenced code, so AST headings are paired
// with scanned headings of the same level in document order, skipping
// ahead when a later one has the same text.
func assignHeadingIDs(doc ast.Node, headings []outline.Heading) {
	next := 0
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		h, ok := node.(*ast.Heading)
		if !ok || !entering || h.IsTitleblock {
			return ast.GoToNext
		}

		slug := anchor.Slugify(headingText(h))
		candidate := -1
		for i := next; i < len(headings); i++ {
			if headings[i].Level != h.Level {
				continue
			}
			if candidate < 0 {
				candidate = i
			}
			if anchor.Slugify(headings[i].Text) == slug {
				candidate = i
				break
			}
		}
		if candidate >= 0 {
			h.HeadingID = headings[candidate].AnchorID
			next = candidate + 1
		}
		return ast.GoToNext
	})
}

func headingText(h *ast.Heading) string {
	var b strings.Builder
	ast.WalkFunc(h, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		}
		return ast.GoToNext
	})
	return b.String()
}

func codeBlockHook(highlightTheme string) func(w io.Writer, node ast.Node) bool {
	return func(w io.Writer, node ast.Node) bool {
		code, ok := node.(*ast.CodeBlock)
		if !ok {
			return false
		}
		var lang string
		if info := code.Info; info != nil {
			lang = string(info)
		}
		fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(string(code.Literal), lang, highlightTheme))
		return true
	}
}

// Render converts md to HTML and returns it with the headings its anchors
// come from.
func Render(md []byte, highlightTheme string) *cache.RenderedContent {
	md = markdown.NormalizeNewlines(md)
	headings := outline.Scan(string(md))

	var out []byte
	switch renderer {
	case config.RendererMmark:
		out, _ = RenderMarkdownMmark(md, headings, highlightTheme)
	default:
		out = RenderMarkdownClassic(md, headings, highlightTheme)
	}

	return &cache.RenderedContent{HTML: out, Headings: headings}
}

var renderCacheMutex sync.Mutex

// RenderCached renders md through the preview cache, keyed by content hash
// and highlighting theme.
func RenderCached(md []byte, highlightTheme string) *cache.RenderedContent {
	contentHash := util.ContentHash(md)

	if cached, found := cache.GetRenderedMarkdown(contentHash, highlightTheme); found {
		renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Cache hit for rendered markdown")
		return cached
	}

	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()

	// Another caller may have rendered it while we waited.
	if cached, found := cache.GetRenderedMarkdown(contentHash, highlightTheme); found {
		return cached
	}

	renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Cache miss for rendered markdown")
	rc := Render(md, highlightTheme)
	cache.SetRenderedMarkdown(contentHash, highlightTheme, rc.HTML, rc.Headings)
	return rc
}

func RenderMarkdownClassic(md []byte, headings []outline.Heading, highlightTheme string) []byte {
	codeHook := codeBlockHook(highlightTheme)
	opts := md_html.RendererOptions{
		Flags:    md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
		Comments: [][]byte{[]byte("//"), []byte("#")},
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if entering && codeHook(w, node) {
				return ast.GoToNext, true
			}

			if callout, ok := node.(*ast.Callout); ok && entering {
				fmt.Fprintf(w, "<span class=\"callout\">%s</span>", callout.ID)
				return ast.GoToNext, true
			}

			return ast.GoToNext, false
		},
	}

	doc := parser.NewWithExtensions(
		parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough | parser.SpaceHeadings |
			parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript | parser.DefinitionLists | parser.MathJax |
			parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart | parser.Attributes |
			parser.NonBlockingSpace,
	).Parse(md)
	assignHeadingIDs(doc, headings)

	return markdown.Render(doc, md_html.NewRenderer(opts))
}

func RenderMarkdownMmark(md []byte, headings []outline.Heading, highlightTheme string) ([]byte, *mast.TitleData) {
	p := parser.NewWithExtensions(mparser.Extensions | parser.NoIntraEmphasis)

	init := mparser.NewInitial("")
	var info *mast.TitleData

	p.Opts = parser.Options{
		ParserHook: func(data []byte) (ast.Node, []byte, int) {
			node, data, consumed := mparser.Hook(data)
			if t, ok := node.(*mast.Title); ok {
				info = t.TitleData
			}
			return node, data, consumed
		},
		ReadIncludeFn: init.ReadInclude,
		Flags:         parser.FlagsNone,
	}

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)
	assignHeadingIDs(doc, headings)

	// info.Language may be unset when the document has no title block.
	if info == nil {
		info = &mast.TitleData{
			Title:    "Untitled",
			Language: "en",
		}
	}

	mhtmlOpts := mhtml.RendererOptions{
		Language: lang.New(info.Language),
	}

	codeHook := codeBlockHook(highlightTheme)
	opts := md_html.RendererOptions{
		Comments: [][]byte{[]byte("//"), []byte("#")},
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if entering && codeHook(w, node) {
				return ast.GoToNext, true
			}
			return mhtmlOpts.RenderHook(w, node, entering)
		},
		Flags: md_html.CommonFlags | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
	}

	return markdown.Render(doc, md_html.NewRenderer(opts)), info
}

// WarmCache pre-renders md in the background.
func WarmCache(md []byte, highlightTheme string) {
	go func() {
		RenderCached(md, highlightTheme)
		renderLogger.Debug().Str("highlightTheme", highlightTheme).Msg("Cache warming completed")
	}()
}
