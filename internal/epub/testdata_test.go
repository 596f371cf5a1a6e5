package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/epubshelf/internal/archive"
)

// tinyPNG is a 1x1 PNG image.
var tinyPNG = []byte{
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

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildZip creates an in-memory zip archive from path → content.
func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type testBook struct {
	title    string
	author   string
	chapters []string // chapter file names under OEBPS/text/
	missing  map[string]bool
	cover    bool
	extra    map[string][]byte
}

// opf renders a package document listing the chapters in spine order.
func (b testBook) opf() string {
	var meta, manifest, spine strings.Builder
	if b.title != "" {
		fmt.Fprintf(&meta, "<dc:title>%s</dc:title>", b.title)
	}
	if b.author != "" {
		fmt.Fprintf(&meta, "<dc:creator>%s</dc:creator>", b.author)
	}
	if b.cover {
		meta.WriteString(`<meta name="cover" content="cover-img"/>`)
		manifest.WriteString(`<item id="cover-img" href="images/cover.png" media-type="image/png"/>`)
	}
	manifest.WriteString(`<item id="css" href="style.css" media-type="text/css"/>`)
	for i, name := range b.chapters {
		fmt.Fprintf(&manifest, `<item id="ch%d" href="text/%s" media-type="application/xhtml+xml"/>`, i, name)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`, i)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` + meta.String() + `</metadata>
  <manifest>` + manifest.String() + `</manifest>
  <spine>` + spine.String() + `</spine>
</package>`
}

func (b testBook) bytes(t *testing.T) []byte {
	t.Helper()
	files := map[string][]byte{
		"mimetype":               []byte("application/epub+zip"),
		"META-INF/container.xml": []byte(testContainer),
		"OEBPS/content.opf":      []byte(b.opf()),
		"OEBPS/style.css":        []byte("p { color: red }"),
	}
	for i, name := range b.chapters {
		if b.missing[name] {
			continue
		}
		files["OEBPS/text/"+name] = []byte(chapterXHTML(fmt.Sprintf("Chapter %d", i+1)))
	}
	if b.cover {
		files["OEBPS/images/cover.png"] = tinyPNG
	}
	for name, content := range b.extra {
		files[name] = content
	}
	return buildZip(t, files)
}

func (b testBook) open(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(b.bytes(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func chapterXHTML(heading string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + heading + `</title><style>p{}</style></head>
<body><h1>` + heading + `</h1><p>Some text for ` + heading + `.</p></body>
</html>`
}
