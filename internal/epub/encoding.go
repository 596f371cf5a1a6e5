package epub

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// prologScan bounds how far into a document the declarations are searched.
const prologScan = 1024

var xmlEncodingPattern = regexp.MustCompile(`^\s*<\?xml[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// DetectEncoding returns the name of the encoding a content document is
// written in, or "" for UTF-8. The XML declaration wins; a document that is
// valid UTF-8 without one is taken as UTF-8; otherwise a BOM or <meta charset>
// decides, falling back to windows-1252.
func DetectEncoding(data []byte) string {
	head := data
	if len(head) > prologScan {
		head = head[:prologScan]
	}
	head = bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})

	if m := xmlEncodingPattern.FindSubmatch(head); m != nil {
		return normalizeEncoding(string(m[1]))
	}
	if utf8.Valid(data) {
		return ""
	}
	_, name, _ := charset.DetermineEncoding(data, "")
	return normalizeEncoding(name)
}

func normalizeEncoding(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "utf-8" || name == "utf8" {
		return ""
	}
	return name
}
