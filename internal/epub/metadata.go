package epub

import (
	"github.com/mrlokans/epubshelf/internal/archive"
)

// Metadata is what an import needs from a package document.
type Metadata struct {
	Title          string
	Author         string
	Cover          []byte
	CoverMediaType string
	ChapterCount   int
}

// ExtractMetadata resolves the package document of a and returns its metadata.
// When the container or package is unreadable it returns blank metadata
// together with ErrNoContainer or ErrNoPackage so callers can keep the file.
func ExtractMetadata(a *archive.Archive) (Metadata, error) {
	packagePath, err := LocatePackagePath(a)
	if err != nil {
		return Metadata{}, err
	}
	pkg, err := ParsePackage(a, packagePath)
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Title:        pkg.Title,
		Author:       pkg.Author,
		ChapterCount: len(pkg.Chapters),
	}
	if pkg.Cover != nil {
		md.Cover = pkg.Cover.Data
		md.CoverMediaType = pkg.Cover.MediaType
	}
	return md, nil
}
