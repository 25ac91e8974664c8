package store

import (
	"net/url"
	"path"
	"strings"
)

// audioExtensions are the formats the cache recognizes. Anything else is
// stored as .mp3, matching what the stream endpoints transcode to.
var audioExtensions = []string{".mp3", ".flac", ".wav", ".ogg", ".m4a", ".aac", ".opus", ".wma"}

const defaultExtension = ".mp3"

// cacheFileName derives the on-disk name for a descriptor. Path separators
// and drive colons in track names would escape the cache directory, so they
// are flattened to underscores.
func cacheFileName(d Descriptor) string {
	name := sanitizeName(d.ID + "_" + d.Name)
	ext := audioExtension(d.Name)
	if ext == "" {
		ext = audioExtension(d.URL)
	}
	if ext == "" {
		ext = defaultExtension
	}
	if n := len(name); n >= len(ext) && strings.EqualFold(name[n-len(ext):], ext) {
		name = name[:n-len(ext)]
	}
	return name + ext
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		default:
			return r
		}
	}, name)
}

// audioExtension returns the recognized audio extension of s, or empty.
// s may be a bare file name or a URL; query strings are ignored.
func audioExtension(s string) string {
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); nil == err && u.Path != "" {
		s = u.Path
	}
	ext := strings.ToLower(path.Ext(s))
	for _, known := range audioExtensions {
		if ext == known {
			return known
		}
	}
	return ""
}
