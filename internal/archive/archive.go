// Package archive provides read access to zip-format archives held in memory.
//
// EPUB producers are inconsistent about percent-encoding non-ASCII entry
// names, so lookups try the exact name first and then the percent-decoded
// name before giving up with ErrNotFound.
//
// # Usage
//
//	a, err := archive.Open(data)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	raw, err := a.ReadFile("META-INF/container.xml")
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/text/encoding/htmlindex"
)

// maxEntrySize guards against zip bombs. A single entry may not inflate past 256 MB.
const maxEntrySize int64 = 256 * 1024 * 1024

var (
	// ErrCorruptArchive indicates the buffer is not a readable zip archive.
	ErrCorruptArchive = errors.New("archive: corrupt or unreadable zip archive")

	// ErrNotFound indicates no entry matches the requested path.
	ErrNotFound = errors.New("archive: file not found")

	// ErrClosed indicates the archive handle was already released.
	ErrClosed = errors.New("archive: handle closed")
)

// Archive is an opened zip archive with an index of its entries.
type Archive struct {
	mu      sync.RWMutex
	reader  *zip.Reader
	entries map[string]*zip.File
	names   []string
	closed  bool
}

// Open indexes a zip archive held in data.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	a := &Archive{
		reader:  zr,
		entries: make(map[string]*zip.File, len(zr.File)),
		names:   make([]string, 0, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.entries[f.Name]; dup {
			continue
		}
		a.entries[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	return a, nil
}

// Names returns entry names in archive order.
func (a *Archive) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Has reports whether path resolves to an entry.
func (a *Archive) Has(path string) bool {
	_, err := a.lookup(path)
	return err == nil
}

// ReadFile returns the decompressed bytes of the entry at path.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	f, err := a.lookup(path)
	if err != nil {
		return nil, err
	}
	return readEntry(f)
}

// ReadFileAsText reads the entry at path and decodes it to UTF-8 using the
// named encoding. An empty name or "utf-8" skips decoding; a leading BOM is dropped.
func (a *Archive) ReadFileAsText(path, encoding string) (string, error) {
	data, err := a.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := DecodeText(data, encoding)
	if err != nil {
		return "", fmt.Errorf("%w (%s)", err, path)
	}
	return text, nil
}

// DecodeText converts data in the named encoding to UTF-8, dropping a leading
// UTF-8 BOM. An empty name or "utf-8" skips decoding.
func DecodeText(data []byte, encoding string) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(data), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("archive: unsupported encoding %q: %w", encoding, err)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("archive: decode as %s: %w", encoding, err)
	}
	return string(decoded), nil
}

// Close releases the index. Further reads fail with ErrClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.entries = nil
	a.reader = nil
	return nil
}

// Closed reports whether Close has been called.
func (a *Archive) Closed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// lookup tries the exact name first, then the percent-decoded name.
func (a *Archive) lookup(path string) (*zip.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}
	if f, ok := a.entries[path]; ok {
		return f, nil
	}
	if decoded, err := url.PathUnescape(path); err == nil && decoded != path {
		if f, ok := a.entries[decoded]; ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(maxEntrySize) {
		return nil, fmt.Errorf("archive: entry %s too large: %d bytes", f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("archive: read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > maxEntrySize {
		return nil, fmt.Errorf("archive: entry %s exceeds %d bytes", f.Name, maxEntrySize)
	}
	return data, nil
}
