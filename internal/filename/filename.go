package filename

import (
	"strings"
	"unicode/utf8"
)

const (
	maxBytes = 255
	fallback = "image"
)

var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Sanitize turns an uploaded file name into one that is safe to use as a
// single path segment. Separators, control characters and characters reserved
// on common filesystems are dropped; traversal names and reserved device names
// are replaced.
func Sanitize(name string) string {
	name = strings.ToValidUTF8(name, "")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || (r >= 0x7F && r <= 0x9F):
			continue
		case strings.ContainsRune(`/\?<>:*|"`, r):
			continue
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimRight(b.String(), ". ")
	out = strings.TrimSpace(out)
	if out == "" || out == "." || out == ".." {
		return fallback
	}

	base := strings.ToLower(out)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if windowsReserved[base] {
		return fallback
	}

	return truncate(out, maxBytes)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
