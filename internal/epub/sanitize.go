package epub

import (
	"bytes"
	"log"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sanitizer turns untrusted chapter markup into a fragment that is safe to render.
// Implementations parse the document, keep only the <body> subtree (or the whole
// input when there is none), and strip every tag and attribute outside their allow-list.
type Sanitizer interface {
	Sanitize(raw string) string
}

// DefaultAllowedTags is the structural and text tag allow-list used for chapters.
var DefaultAllowedTags = []atom.Atom{
	atom.B, atom.I, atom.Em, atom.Strong, atom.U,
	atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
	atom.P, atom.Br, atom.Ul, atom.Ol, atom.Li,
	atom.Div, atom.Span, atom.Blockquote, atom.Img,
}

// DefaultAllowedAttrs are the attributes kept on allowed tags.
var DefaultAllowedAttrs = []string{"src", "alt", "title", "class", "id", "lang", "dir"}

// dropWithContent are elements removed together with everything inside them.
var dropWithContent = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Title:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Textarea: true,
	atom.Select:   true,
	atom.Svg:      true,
	atom.Math:     true,
}

var voidTags = map[atom.Atom]bool{
	atom.Br:  true,
	atom.Img: true,
}

// htmlVoidElements may legitimately self-close in HTML.
var htmlVoidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var (
	bodyTagPattern     = regexp.MustCompile(`(?i)<body[\s>/]`)
	selfClosingPattern = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:-]*)([^<>]*?)/>`)
)

// expandSelfClosing rewrites XHTML <tag/> as <tag></tag> for non-void
// elements; an HTML parser would otherwise treat it as an open tag that
// swallows its following siblings.
func expandSelfClosing(raw string) string {
	return selfClosingPattern.ReplaceAllStringFunc(raw, func(m string) string {
		sub := selfClosingPattern.FindStringSubmatch(m)
		if htmlVoidElements[strings.ToLower(sub[1])] {
			return m
		}
		return "<" + sub[1] + sub[2] + "></" + sub[1] + ">"
	})
}

// AllowListSanitizer is the x/net/html backed Sanitizer.
type AllowListSanitizer struct {
	tags  map[atom.Atom]bool
	attrs map[string]bool
}

// NewAllowListSanitizer builds a sanitizer keeping only the given tags and attributes.
func NewAllowListSanitizer(tags []atom.Atom, attrs []string) *AllowListSanitizer {
	s := &AllowListSanitizer{
		tags:  make(map[atom.Atom]bool, len(tags)),
		attrs: make(map[string]bool, len(attrs)),
	}
	for _, t := range tags {
		s.tags[t] = true
	}
	for _, a := range attrs {
		s.attrs[strings.ToLower(a)] = true
	}
	return s
}

// NewDefaultSanitizer returns the chapter sanitizer with the default allow-lists.
func NewDefaultSanitizer() *AllowListSanitizer {
	return NewAllowListSanitizer(DefaultAllowedTags, DefaultAllowedAttrs)
}

// Allows reports whether tag survives sanitization.
func (s *AllowListSanitizer) Allows(tag string) bool {
	return s.tags[atom.Lookup([]byte(strings.ToLower(tag)))]
}

// Sanitize implements Sanitizer.
func (s *AllowListSanitizer) Sanitize(raw string) string {
	normalized := expandSelfClosing(raw)

	var nodes []*html.Node
	if bodyTagPattern.MatchString(normalized) {
		doc, err := html.Parse(strings.NewReader(normalized))
		if err == nil {
			if body := findElement(doc, atom.Body); body != nil {
				for c := body.FirstChild; c != nil; c = c.NextSibling {
					nodes = append(nodes, c)
				}
			}
		}
	} else {
		log.Printf("[EPUB] <body> not found, sanitizing full content")
		context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		frag, err := html.ParseFragment(strings.NewReader(normalized), context)
		if err != nil {
			log.Printf("[EPUB] failed to parse chapter content: %v", err)
			return ""
		}
		nodes = frag
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		s.render(&buf, n)
	}
	return strings.TrimSpace(buf.String())
}

func (s *AllowListSanitizer) render(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
	default:
		// comments, doctypes, processing instructions
		return
	}

	if dropWithContent[n.DataAtom] {
		return
	}
	if !s.tags[n.DataAtom] {
		s.renderChildren(buf, n)
		return
	}

	buf.WriteByte('<')
	buf.WriteString(n.DataAtom.String())
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if attr.Namespace != "" || !s.attrs[key] {
			continue
		}
		if (key == "src" || key == "href") && !isSafeURI(attr.Val) {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(attr.Val))
		buf.WriteByte('"')
	}
	if voidTags[n.DataAtom] {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	s.renderChildren(buf, n)
	buf.WriteString("</")
	buf.WriteString(n.DataAtom.String())
	buf.WriteByte('>')
}

func (s *AllowListSanitizer) renderChildren(buf *bytes.Buffer, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.render(buf, c)
	}
}

// findElement performs a depth-first search for the first element with tag a.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// isSafeURI accepts relative references, http(s) and data:image/ URIs.
func isSafeURI(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "/") || strings.HasPrefix(v, ".") {
		return true
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return true
	case "http", "https":
		return true
	case "data":
		return strings.HasPrefix(strings.ToLower(v), "data:image/")
	default:
		return false
	}
}
