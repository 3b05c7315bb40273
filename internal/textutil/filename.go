package textutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
)

// unsafeReplacer maps characters rejected by common filesystems. Separators
// become dashes, quoting and redirection characters are dropped.
var unsafeReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " - ",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes name safe for use as a single path segment.
// Whitespace runs (tabs and newlines included) collapse to one space and
// remaining control characters are removed.
// Cyrillic and other letters are preserved.
func SanitizeFileName(name string) string {
	name = unsafeReplacer.Replace(strings.TrimSpace(name))
	var b strings.Builder
	space := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), " .-")
}

// EpisodeFileName builds "<title> - 03.mp4" style names. Episodes below one
// are omitted. ext may be given with or without the leading dot.
func EpisodeFileName(title string, episode int, ext string) string {
	base := SanitizeFileName(title)
	if base == "" {
		base = "episode"
	}
	if episode > 0 {
		base = fmt.Sprintf("%s - %02d", base, episode)
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// NameFromURL derives a file name from the last path segment of a content
// URL. HLS playlists are renamed to .mp4 since the backend remuxes them.
// It returns "" when the URL has no usable segment.
func NameFromURL(content string) string {
	p := strings.TrimSpace(content)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	} else if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	seg := path.Base(strings.TrimRight(p, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	base := SanitizeFileName(seg)
	if ext := path.Ext(base); strings.EqualFold(ext, ".m3u8") {
		base = strings.TrimSuffix(base, ext) + ".mp4"
	}
	return base
}
