package epub

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/html"
)

// tagNames returns every element name present in fragment.
func tagNames(t *testing.T, fragment string) []string {
	t.Helper()
	var names []string
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			assert.ErrorIs(t, z.Err(), io.EOF)
			return names
		}
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, _ := z.TagName()
			names = append(names, string(name))
		}
	}
}

func TestSanitize_OutputTagsAreAllowListed(t *testing.T) {
	s := NewDefaultSanitizer()
	inputs := []string{
		`<html><head><script>alert(1)</script></head><body><p onclick="x()">Hi</p><script>evil()</script></body></html>`,
		`<body><table><tr><td>cell</td></tr></table><a href="javascript:alert(1)">link</a></body>`,
		`<p>no body <iframe src="x"></iframe><video><source src="v.mp4"/></video></p>`,
		`<body><custom-tag><b>bold</b></custom-tag><svg><script>x</script></svg><form><input/></form></body>`,
		`<script/><p>after self-closing script</p>`,
		`plain text with <<broken>> markup & ampersands`,
	}

	for _, in := range inputs {
		out := s.Sanitize(in)
		for _, name := range tagNames(t, out) {
			assert.True(t, s.Allows(name), "tag %q leaked from input %q: %s", name, in, out)
		}
		assert.NotContains(t, out, "alert")
		assert.NotContains(t, out, "evil")
		assert.NotContains(t, strings.ToLower(out), "onclick")
	}
}

func TestSanitize_ExtractsBody(t *testing.T) {
	out := NewDefaultSanitizer().Sanitize(chapterXHTML("Prologue"))

	assert.Equal(t, "<h1>Prologue</h1><p>Some text for Prologue.</p>", out)
	assert.NotContains(t, out, "<title>")
}

func TestSanitize_NoBodyFallsBackToRawContent(t *testing.T) {
	out := NewDefaultSanitizer().Sanitize(`<div><p>loose <em>fragment</em></p><style>p{}</style></div>`)
	assert.Equal(t, "<div><p>loose <em>fragment</em></p></div>", out)
}

func TestSanitize_UnwrapsDisallowedKeepsText(t *testing.T) {
	out := NewDefaultSanitizer().Sanitize(`<body><section><a href="ch2.xhtml">next</a> <b>bold</b></section></body>`)
	assert.Equal(t, "next <b>bold</b>", out)
}

func TestSanitize_Attributes(t *testing.T) {
	out := NewDefaultSanitizer().Sanitize(`<body><img src="../images/a.png" alt="A" style="width:1px" onerror="x()"/><img src="javascript:x()"/><p class="c" data-x="1">t</p></body>`)
	assert.Equal(t, `<img src="../images/a.png" alt="A"/><img/><p class="c">t</p>`, out)
}

func TestSanitize_CustomAllowList(t *testing.T) {
	s := NewAllowListSanitizer(nil, nil)
	assert.Equal(t, "Title text", s.Sanitize(`<body><h1>Title</h1> <p>text</p></body>`))
	assert.False(t, s.Allows("p"))
}

func TestImageMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", ImageMIMEType("a/b.PNG"))
	assert.Equal(t, "image/gif", ImageMIMEType("x.gif"))
	assert.Equal(t, "image/jpeg", ImageMIMEType("x.jpg"))
	assert.Equal(t, "image/jpeg", ImageMIMEType("x.webp"))
	assert.Equal(t, "image/png", ImageMIMEType("x.png?v=1"))
}

func TestSanitize_SelfClosingElementsDoNotSwallowSiblings(t *testing.T) {
	s := NewDefaultSanitizer()

	assert.Equal(t, `<p>a<span class="x"></span>b</p><p>tail</p>`,
		s.Sanitize(`<body><p>a<span class="x"/>b</p><p>tail</p></body>`))

	out := s.Sanitize(`<body><p>a<div/>b</p><p>tail</p></body>`)
	assert.Contains(t, out, "<div></div>")
	assert.NotContains(t, out, "<div>b")
	assert.True(t, strings.HasSuffix(out, "<p>tail</p>"), out)

	assert.Equal(t, `<p>x<br/>y</p><img src="a.png"/>`, s.Sanitize(`<body><p>x<br/>y</p><img src="a.png"/></body>`))
}

func TestExpandSelfClosing(t *testing.T) {
	assert.Equal(t, `<div id="a"></div><br/><img src="x/y.png"/><a href="n/"></a>`,
		expandSelfClosing(`<div id="a"/><br/><img src="x/y.png"/><a href="n/"/>`))
}
