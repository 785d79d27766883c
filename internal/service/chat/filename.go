package chat

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackFileName = "upload"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func nonASCII(r rune) bool {
	return r > unicode.MaxASCII
}

// sanitizeFileName reduces an uploaded name to a safe ASCII base name.
// Directory components are dropped, whitespace becomes underscores and
// anything outside [A-Za-z0-9_.-] is removed. Leading and trailing dots and
// underscores are trimmed so the result can never be "." or "..".
func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "/" || name == "." {
		name = ""
	}
	// transformers carry state, so each call gets its own chain
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(nonASCII)))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = ""
	}
	ascii = strings.Join(strings.Fields(ascii), "_")
	ascii = unsafeNameChars.ReplaceAllString(ascii, "")
	ascii = strings.Trim(ascii, "._")
	if ascii != "" {
		return ascii
	}

	ext := unsafeNameChars.ReplaceAllString(path.Ext(name), "")
	if ext == "." {
		ext = ""
	}
	return fallbackFileName + ext
}

// detectMimeType sniffs the payload. The result never carries parameters so
// it can be handed to upload APIs that expect a bare media type.
func detectMimeType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
