package epub

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrlokans/epubshelf/internal/archive"
)

// EmbedImages replaces the src of every <img> in fragment with a base64 data
// URI loaded from the archive. The src is resolved against the package
// directory first and against the chapter document's own directory second.
// Images that cannot be found keep their original src.
func EmbedImages(fragment string, a *archive.Archive, packagePath, documentPath string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			return
		}
		data, found := loadImage(a, src, packagePath, documentPath)
		if !found {
			return
		}
		img.SetAttr("src", "data:"+ImageMIMEType(src)+";base64,"+base64.StdEncoding.EncodeToString(data))
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render fragment: %w", err)
	}
	return out, nil
}

// ImageMIMEType infers an image MIME type from its file extension. Anything
// other than png or gif is treated as jpeg.
func ImageMIMEType(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	switch strings.ToLower(path.Ext(src)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func loadImage(a *archive.Archive, src, packagePath, documentPath string) ([]byte, bool) {
	candidates := []string{ResolvePath(packagePath, src)}
	if documentPath != "" {
		if alt := ResolvePath(documentPath, src); alt != candidates[0] {
			candidates = append(candidates, alt)
		}
	}
	for _, p := range candidates {
		if data, err := a.ReadFile(p); err == nil {
			return data, true
		}
	}
	return nil, false
}
