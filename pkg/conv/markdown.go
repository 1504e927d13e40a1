package conv

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags | html.HrefTargetBlank
	uiPolicy   = bluemonday.NewPolicy()
)

func init() {
	// Inline formatting, paragraphs and lists only. Headings, images and
	// scripts are dropped.
	uiPolicy.AllowElements(
		"p", "br", "ul", "ol", "li",
		"b", "strong", "i", "em", "u", "ins", "s", "strike", "del",
		"code", "pre", "blockquote",
	)
	uiPolicy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code")
	uiPolicy.AllowStandardURLs()
	uiPolicy.AllowAttrs("href").OnElements("a")
}

// MarkdownToHTML renders md and sanitizes the result for display.
func MarkdownToHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}

	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(md)), renderer)

	return string(uiPolicy.SanitizeBytes(unsafeHTML))
}
