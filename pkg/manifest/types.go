package manifest

import (
	"path"
	"strings"
)

const (
	MainPlaylist  = "stream.m3u8"
	TrickPlaylist = "iframe.m3u8"

	IFramesOnlyTag = "#EXT-X-I-FRAMES-ONLY"
	VersionTag     = "#EXT-X-VERSION"
	KeyTag         = "#EXT-X-KEY:"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindKey
	KindManifest
	KindSegment
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindManifest:
		return "manifest"
	case KindSegment:
		return "segment"
	}
	return "unknown"
}

// KindOf classifies an object name by its extension.
func KindOf(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".key":
		return KindKey
	case ".m3u8":
		return KindManifest
	case ".ts":
		return KindSegment
	}
	return KindUnknown
}

func ContentType(name string) string {
	switch KindOf(name) {
	case KindManifest:
		return "application/vnd.apple.mpegurl"
	case KindSegment:
		return "video/mp2t"
	}
	return "application/octet-stream"
}

// manifests must never be cached, segments are immutable
func CacheControl(name string) string {
	switch KindOf(name) {
	case KindManifest:
		return "no-cache"
	case KindSegment:
		return "public, max-age=31536000, immutable"
	case KindKey:
		return "no-cache, no-transform"
	}
	return ""
}

func SegmentName(video string) string {
	return video + ".ts"
}

const (
	DefaultKeyFolder      = "keys"
	DefaultManifestFolder = "manifests"
	DefaultMediaFolder    = "media"
)

// Layout names the folders objects are published under.
type Layout struct {
	KeyFolder      string
	ManifestFolder string
	MediaFolder    string
}

func (l Layout) WithDefaultValues() Layout {
	if l.KeyFolder == "" {
		l.KeyFolder = DefaultKeyFolder
	}
	if l.ManifestFolder == "" {
		l.ManifestFolder = DefaultManifestFolder
	}
	if l.MediaFolder == "" {
		l.MediaFolder = DefaultMediaFolder
	}
	l.KeyFolder = strings.Trim(l.KeyFolder, "/")
	l.ManifestFolder = strings.Trim(l.ManifestFolder, "/")
	l.MediaFolder = strings.Trim(l.MediaFolder, "/")
	return l
}

// keys are not grouped by video
func (l Layout) KeyPath(keyID string) string {
	return path.Join(l.KeyFolder, keyID)
}

func (l Layout) ManifestPath(video, name string) string {
	return path.Join(l.ManifestFolder, video, name)
}

func (l Layout) SegmentPath(video string) string {
	return path.Join(l.MediaFolder, video, SegmentName(video))
}

// Binding is the context a manifest is rewritten for.
type Binding struct {
	VideoName string
	// KeyID replaces every key URI when set. When empty, bare key URIs
	// are bound by their file name and absolute ones are kept.
	KeyID   string
	BaseURL string
	Layout  Layout
}

func (b Binding) url(p string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + p
}
