package render

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// LinkRef is a hyperlink collected while rendering, numbered in order of appearance
type LinkRef struct {
	Index int
	URL   string
	Text  string
}

// IsHTML reports whether body looks like an HTML document or fragment
func IsHTML(body string) bool {
	head := strings.ToLower(body[:min(len(body), 2048)])
	for _, marker := range []string{"<html", "<!doctype html", "<body", "<div", "<p>", "<p ", "<br", "<table", "<span"} {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

// HTMLToText renders HTML as terminal text. Anchors become "label [n]" and
// are returned as links; head, style and script content is dropped.
func HTMLToText(src string) (string, []LinkRef, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", nil, err
	}
	w := &htmlWriter{}
	w.visit(doc)
	return strings.TrimSpace(collapseBlankLines(w.b.String())), w.links, nil
}

type htmlWriter struct {
	b          strings.Builder
	links      []LinkRef
	quoteDepth int
	inPre      bool
}

func (w *htmlWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

func (w *htmlWriter) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch strings.ToLower(n.Data) {
	case "head", "style", "script", "title", "meta", "link":
		return
	case "br":
		w.b.WriteByte('\n')
	case "hr":
		w.b.WriteString("\n-----\n")
	case "p", "h1", "h2", "h3", "h4", "h5", "h6":
		w.children(n)
		w.b.WriteString("\n\n")
	case "div", "section", "tr":
		w.children(n)
		w.b.WriteByte('\n')
	case "td", "th":
		w.children(n)
		w.b.WriteString(" | ")
	case "li":
		w.b.WriteString("- ")
		w.children(n)
		w.b.WriteByte('\n')
	case "blockquote":
		w.quoteDepth++
		w.children(n)
		w.quoteDepth--
		w.b.WriteByte('\n')
	case "pre":
		was := w.inPre
		w.inPre = true
		w.b.WriteString("\n")
		w.children(n)
		w.inPre = was
		w.b.WriteString("\n")
	case "a":
		w.anchor(n)
	case "img":
		if alt := attr(n, "alt"); alt != "" {
			w.b.WriteString("[image: " + alt + "]")
		}
	default:
		w.children(n)
	}
}

func (w *htmlWriter) text(data string) {
	text := sanitizeForTerminal(data)
	if !w.inPre {
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			return
		}
		if s := w.b.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			w.b.WriteByte(' ')
		}
	}
	if w.quoteDepth > 0 {
		prefix := strings.Repeat("> ", min(w.quoteDepth, 3))
		text = prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
	}
	w.b.WriteString(text)
}

func (w *htmlWriter) anchor(n *html.Node) {
	href := attr(n, "href")
	var inner strings.Builder
	collectText(&inner, n)
	label := strings.Join(strings.Fields(inner.String()), " ")
	if label == "" {
		label = attr(n, "title")
	}
	if label == "" {
		label = href
	}
	if href == "" || (strings.HasPrefix(strings.ToLower(href), "mailto:") && label == href) {
		w.text(label)
		return
	}
	ref := LinkRef{Index: len(w.links) + 1, URL: href, Text: label}
	w.links = append(w.links, ref)
	w.text(fmt.Sprintf("%s [%d]", label, ref.Index))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collectText(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(sanitizeForTerminal(c.Data))
			b.WriteByte(' ')
			continue
		}
		collectText(b, c)
	}
}

// sanitizeForTerminal replaces rich-text glyphs with ASCII and drops
// invisible and control characters
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u00A0', '\u2002', '\u2003', '\u2009', '\u202F':
			b.WriteRune(' ')
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u034F', '\u2060', '\u00AD':
		case '\u2013', '\u2014':
			b.WriteRune('-')
		case '\u2022', '\u25CF':
			b.WriteString("- ")
		case '\u2018', '\u2019':
			b.WriteRune('\'')
		case '\u201C', '\u201D':
			b.WriteRune('"')
		case '\u2026':
			b.WriteString("...")
		default:
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, ln := range lines {
		ln = strings.TrimRight(strings.TrimSuffix(strings.TrimRight(ln, " "), " |"), " ")
		if strings.TrimSpace(ln) == "" {
			blank++
			if blank > 1 {
				continue
			}
			ln = ""
		} else {
			blank = 0
		}
		out = append(out, ln)
	}
	return strings.Join(out, "\n")
}
