package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/mrlokans/epubshelf/internal/archive"
)

const containerPath = "META-INF/container.xml"

// ChapterRef points at a content document before its content is loaded.
type ChapterRef struct {
	Name string `json:"name"` // href as listed in the manifest
	Path string `json:"path"` // resolved archive path
}

// CoverRef is the cover image resolved from the package metadata.
type CoverRef struct {
	ID        string
	Href      string
	Path      string
	MediaType string
	Data      []byte
}

// Package is the parsed package document of one opened archive.
type Package struct {
	Path     string
	Title    string
	Author   string
	Chapters []ChapterRef
	Cover    *CoverRef
}

type container struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfPackage struct {
	XMLName  xml.Name       `xml:"package"`
	Metadata []metadataItem `xml:"metadata>*"`
	Manifest []manifestItem `xml:"manifest>item"`
	Spine    []spineItem    `xml:"spine>itemref"`
}

type metadataItem struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
	Text    string `xml:",chardata"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type spineItem struct {
	IDRef string `xml:"idref,attr"`
}

// LocatePackagePath reads META-INF/container.xml and returns the full-path
// of its first rootfile.
func LocatePackagePath(a *archive.Archive) (string, error) {
	raw, err := a.ReadFile(containerPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContainer, err)
	}

	var c container
	if err := newXMLDecoder(raw).Decode(&c); err != nil {
		return "", fmt.Errorf("%w: parse: %v", ErrNoContainer, err)
	}
	if len(c.RootFiles) == 0 || strings.TrimSpace(c.RootFiles[0].FullPath) == "" {
		return "", fmt.Errorf("%w: no rootfile", ErrNoContainer)
	}
	return strings.TrimSpace(c.RootFiles[0].FullPath), nil
}

// ParsePackage parses the OPF document at packagePath. A package with no
// readable content documents yields an empty chapter list, not an error.
// Missing title, author or cover leave the corresponding fields empty.
func ParsePackage(a *archive.Archive, packagePath string) (*Package, error) {
	raw, err := a.ReadFile(packagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPackage, err)
	}

	var opf opfPackage
	if err := newXMLDecoder(raw).Decode(&opf); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrNoPackage, packagePath, err)
	}

	pkg := &Package{
		Path:     packagePath,
		Title:    firstMetadata(opf.Metadata, "title"),
		Author:   firstMetadata(opf.Metadata, "creator"),
		Chapters: chapterRefs(&opf, packagePath),
	}
	pkg.Cover = resolveCover(a, &opf, packagePath)
	return pkg, nil
}

// ResolvePath resolves href against the directory of basePath. Backslashes
// are normalized, a leading separator makes the href archive-absolute, and
// fragments are dropped.
func ResolvePath(basePath, href string) string {
	href = strings.ReplaceAll(strings.TrimSpace(href), `\`, "/")
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimLeft(href, "/")
	}

	dir := ""
	if i := strings.LastIndexByte(basePath, '/'); i >= 0 {
		dir = basePath[:i+1]
	}
	joined := dir + href
	if strings.Contains(joined, "./") {
		joined = path.Clean(joined)
	}
	return joined
}

func chapterRefs(opf *opfPackage, packagePath string) []ChapterRef {
	byID := make(map[string]manifestItem, len(opf.Manifest))
	for _, item := range opf.Manifest {
		byID[item.ID] = item
	}

	var refs []ChapterRef
	seen := make(map[string]bool)
	add := func(item manifestItem) {
		if !isContentDocument(item) || seen[item.Href] {
			return
		}
		seen[item.Href] = true
		refs = append(refs, ChapterRef{Name: item.Href, Path: ResolvePath(packagePath, item.Href)})
	}

	for _, ref := range opf.Spine {
		if item, ok := byID[ref.IDRef]; ok {
			add(item)
		}
	}
	if len(refs) > 0 {
		return refs
	}

	// No usable spine: fall back to manifest order, skipping navigation documents.
	for _, item := range opf.Manifest {
		if strings.Contains(item.Properties, "nav") {
			continue
		}
		add(item)
	}
	return refs
}

func isContentDocument(item manifestItem) bool {
	switch strings.ToLower(path.Ext(item.Href)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	switch strings.ToLower(item.MediaType) {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

func firstMetadata(items []metadataItem, local string) string {
	for _, item := range items {
		if item.XMLName.Local == local {
			return strings.TrimSpace(item.Text)
		}
	}
	return ""
}

// resolveCover follows <meta name="cover" content=ID> to a manifest item,
// falling back to an EPUB 3 item with the cover-image property.
func resolveCover(a *archive.Archive, opf *opfPackage, packagePath string) *CoverRef {
	var item *manifestItem

	coverID := ""
	for _, m := range opf.Metadata {
		if m.XMLName.Local == "meta" && m.Name == "cover" {
			coverID = strings.TrimSpace(m.Content)
			break
		}
	}
	for i := range opf.Manifest {
		if coverID != "" && opf.Manifest[i].ID == coverID {
			item = &opf.Manifest[i]
			break
		}
	}
	if item == nil {
		for i := range opf.Manifest {
			if strings.Contains(opf.Manifest[i].Properties, "cover-image") {
				item = &opf.Manifest[i]
				break
			}
		}
	}
	if item == nil || item.Href == "" {
		return nil
	}

	resolved := ResolvePath(packagePath, item.Href)
	data, err := a.ReadFile(resolved)
	if err != nil {
		return nil
	}

	mediaType := item.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &CoverRef{
		ID:        item.ID,
		Href:      item.Href,
		Path:      resolved,
		MediaType: mediaType,
		Data:      data,
	}
}

func newXMLDecoder(raw []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec
}
