// Package epubtest builds EPUB archives for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goepub "github.com/go-shiori/go-epub"
)

// PNG is a 1x1 PNG image.
var PNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
	0xDE, 0x00, 0x00, 0x00, 0x0C, 0x49, 0x44, 0x41,
	0x54, 0x08, 0x99, 0x63, 0xF8, 0x0F, 0x00, 0x00,
	0x01, 0x01, 0x00, 0x05, 0x18, 0x0D, 0xA3, 0xD2,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44,
	0xAE, 0x42, 0x60, 0x82,
}

const container = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// Book describes a minimal EPUB 2 archive with one chapter per heading.
type Book struct {
	Title    string
	Author   string
	Chapters []string
	Cover    []byte
}

// Bytes renders b as a zip archive. Chapter i lives at
// OEBPS/text/chapterNNN.xhtml and contains an <h1> with Chapters[i].
func (b Book) Bytes(tb testing.TB) []byte {
	tb.Helper()

	var meta, manifest, spine strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&meta, "<dc:title>%s</dc:title>", b.Title)
	}
	if b.Author != "" {
		fmt.Fprintf(&meta, "<dc:creator>%s</dc:creator>", b.Author)
	}
	files := map[string][]byte{
		"mimetype":               []byte("application/epub+zip"),
		"META-INF/container.xml": []byte(container),
	}
	if len(b.Cover) > 0 {
		meta.WriteString(`<meta name="cover" content="cover-img"/>`)
		manifest.WriteString(`<item id="cover-img" href="images/cover.png" media-type="image/png"/>`)
		files["OEBPS/images/cover.png"] = b.Cover
	}
	for i, heading := range b.Chapters {
		name := fmt.Sprintf("chapter%03d.xhtml", i+1)
		fmt.Fprintf(&manifest, `<item id="ch%d" href="text/%s" media-type="application/xhtml+xml"/>`, i, name)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`, i)
		files["OEBPS/text/"+name] = []byte(ChapterXHTML(heading))
	}
	files["OEBPS/content.opf"] = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` + meta.String() + `</metadata>
  <manifest>` + manifest.String() + `</manifest>
  <spine>` + spine.String() + `</spine>
</package>`)

	return Zip(tb, files)
}

// ChapterXHTML renders a content document with heading and one paragraph.
func ChapterXHTML(heading string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + heading + `</title></head>
<body><h1>` + heading + `</h1><p>Some text for ` + heading + `.</p><script>alert(1)</script></body>
</html>`
}

// Zip creates an in-memory zip archive from path to content.
func Zip(tb testing.TB, files map[string][]byte) []byte {
	tb.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := fw.Write(content); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Written builds an EPUB with go-epub, one section per body, and returns
// the file contents.
func Written(tb testing.TB, title, author string, bodies ...string) []byte {
	tb.Helper()
	e, err := goepub.NewEpub(title)
	if err != nil {
		tb.Fatalf("new epub: %v", err)
	}
	e.SetAuthor(author)
	for i, body := range bodies {
		name := fmt.Sprintf("section%03d.xhtml", i+1)
		if _, err := e.AddSection(body, fmt.Sprintf("Section %d", i+1), name, ""); err != nil {
			tb.Fatalf("add section: %v", err)
		}
	}

	path := filepath.Join(tb.TempDir(), "book.epub")
	if err := e.Write(path); err != nil {
		tb.Fatalf("write epub: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read epub: %v", err)
	}
	return data
}
