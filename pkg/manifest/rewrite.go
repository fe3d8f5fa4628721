package manifest

import (
	"path"
	"regexp"
	"strings"
)

// matches only the quoted URI value, other attributes stay untouched
var keyURIRegex = regexp.MustCompile(`\bURI="[^"]*"`)

// Rewrite binds every key URI and bare object reference of a playlist to
// absolute locations under b.BaseURL. Line count, order and line endings are
// preserved and rewriting an already rewritten playlist is a no-op.
func Rewrite(text string, b Binding) string {
	return walkLines(text, b.rewriteLine)
}

// walkLines calls fn for every line without its line ending, fn returns
// replacement and whether the line should be replaced.
func walkLines(text string, fn func(line string) (string, bool)) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		body := strings.TrimSuffix(line, "\r")
		if out, ok := fn(body); ok {
			lines[i] = out + line[len(body):]
		}
	}
	return strings.Join(lines, "\n")
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http")
}

// isReference reports whether the line is a bare URI line.
func isReference(trimmed string) bool {
	return trimmed != "" && !strings.HasPrefix(trimmed, "#")
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

func (b Binding) rewriteLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, KeyTag) {
		out := keyURIRegex.ReplaceAllStringFunc(line, func(attr string) string {
			uri := strings.TrimSuffix(strings.TrimPrefix(attr, `URI="`), `"`)
			return `URI="` + b.keyURI(uri) + `"`
		})
		return out, out != line
	}

	if !isReference(trimmed) || isAbsolute(trimmed) {
		return "", false
	}

	ref := b.bindReference(trimmed)
	if ref == "" {
		return "", false
	}
	return ref, true
}

func (b Binding) keyURI(uri string) string {
	if b.KeyID != "" {
		return b.url(b.Layout.KeyPath(b.KeyID))
	}
	if uri == "" || isAbsolute(uri) {
		return uri
	}
	return b.url(b.Layout.KeyPath(path.Base(stripQuery(uri))))
}

func (b Binding) bindReference(ref string) string {
	name := stripQuery(ref)

	switch KindOf(name) {
	case KindSegment:
		if b.VideoName == "" {
			return ""
		}
		// all playlists of a video share its single segment
		return b.url(b.Layout.SegmentPath(b.VideoName))
	case KindManifest:
		if b.VideoName == "" {
			return ""
		}
		return b.url(b.Layout.ManifestPath(b.VideoName, path.Base(name)))
	case KindKey:
		return b.url(b.Layout.KeyPath(path.Base(name)))
	}
	return ""
}

// MarkIFramesOnly inserts the I-frames-only tag right after the version tag.
func MarkIFramesOnly(text string) string {
	lines := strings.Split(text, "\n")

	at := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == IFramesOnlyTag {
			return text
		}
		if at < 0 && strings.HasPrefix(trimmed, VersionTag) {
			at = i
		}
	}

	// without version tag it follows the header
	if at < 0 {
		at = 0
	}

	ending := ""
	if strings.HasSuffix(lines[at], "\r") {
		ending = "\r"
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at+1]...)
	out = append(out, IFramesOnlyTag+ending)
	out = append(out, lines[at+1:]...)
	return strings.Join(out, "\n")
}

// ReplaceSegment points every bare segment reference at name.
func ReplaceSegment(text, name string) string {
	return walkLines(text, func(line string) (string, bool) {
		trimmed := strings.TrimSpace(line)
		if !isReference(trimmed) || isAbsolute(trimmed) || KindOf(stripQuery(trimmed)) != KindSegment {
			return "", false
		}
		return name, true
	})
}
