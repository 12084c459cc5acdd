// Package render turns streamed markdown into the HTML shown in the overlay.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const documentStyle = `<style>
  body { background-color: rgba(40, 40, 40, 0.1); color: white; font-family: 'Segoe UI', Arial, sans-serif; padding: 0; margin: 0; }
  h1, h2, h3 { color: #e6e6e6; }
  h1 { font-size: 24px; margin-top: 10px; }
  h2 { font-size: 20px; margin-top: 8px; }
  h3 { font-size: 16px; margin-top: 6px; }
  p { margin: 8px 0; }
  ul, ol { margin: 8px 0; padding-left: 20px; }
  a { color: #58a6ff; }
  blockquote { border-left: 4px solid #565656; padding-left: 10px; margin-left: 20px; color: #a0a0a0; }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #565656; padding: 6px; }
  th { background-color: #424242; }
  pre { background-color: rgba(45, 45, 45, 0.5); padding: 10px; border-radius: 5px; overflow-x: auto; white-space: pre-wrap; word-wrap: break-word; }
  pre, code { font-family: 'JetBrains Mono', 'Consolas', monospace; }
</style>`

// Renderer converts markdown with GFM tables and fenced code. Line breaks
// inside a paragraph are kept, matching how model answers are written.
//
// The last conversion is cached: the overlay re-renders the same accumulated
// text whenever a status-only event arrives.
type Renderer struct {
	md goldmark.Markdown

	mu       sync.Mutex
	lastIn   string
	lastOut  template.HTML
	hasCache bool
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Fragment renders markdown to an HTML fragment suitable for embedding in a
// page. On conversion failure the escaped source is returned instead.
func (r *Renderer) Fragment(md string) template.HTML {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasCache && r.lastIn == md {
		return r.lastOut
	}

	var buf bytes.Buffer
	var out template.HTML
	if err := r.md.Convert([]byte(md), &buf); err != nil {
		out = template.HTML(fmt.Sprintf("<p>Error rendering markdown: %s</p><pre>%s</pre>",
			template.HTMLEscapeString(err.Error()), template.HTMLEscapeString(md)))
	} else {
		out = template.HTML(buf.String())
	}

	r.lastIn, r.lastOut, r.hasCache = md, out, true
	return out
}

// Document wraps the rendered fragment in a standalone, styled HTML page.
func (r *Renderer) Document(md string) string {
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n" + documentStyle +
		"\n</head>\n<body>\n" + string(r.Fragment(md)) + "</body>\n</html>\n"
}
