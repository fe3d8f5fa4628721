package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
)

type Config struct {
	Strategy      Strategy
	Layout        manifest.Layout
	PresignExpiry time.Duration // default expiry of presigned URLs
	Timeout       time.Duration // bound of a single storage call
}

func (c Config) withDefaultValues() Config {
	if c.Strategy == "" {
		c.Strategy = StrategySingle
	}
	if c.PresignExpiry == 0 {
		c.PresignExpiry = time.Hour
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	c.Layout = c.Layout.WithDefaultValues()
	return c
}

type Gateway struct {
	logger  zerolog.Logger
	config  Config
	control Bucket
	media   Bucket
}

// New creates a gateway over the control bucket, and the media bucket for
// the dual strategy.
func New(config Config, control, media Bucket) (*Gateway, error) {
	config = config.withDefaultValues()

	if control == nil {
		return nil, fmt.Errorf("%w: control bucket is required", ErrInvalidStrategy)
	}

	switch config.Strategy {
	case StrategySingle:
		media = control
	case StrategyDual:
		if media == nil {
			return nil, fmt.Errorf("%w: dual strategy requires a media bucket", ErrInvalidStrategy)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, config.Strategy)
	}

	return &Gateway{
		logger:  log.With().Str("module", "storage").Str("strategy", string(config.Strategy)).Logger(),
		config:  config,
		control: control,
		media:   media,
	}, nil
}

func (g *Gateway) Layout() manifest.Layout {
	return g.config.Layout
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.config.Timeout)
}

// bucketFor resolves the tier an object path belongs to.
func (g *Gateway) bucketFor(objectPath string) Bucket {
	if strings.HasPrefix(objectPath, g.config.Layout.MediaFolder+"/") {
		return g.media
	}
	return g.control
}

// Check verifies every tier is reachable.
func (g *Gateway) Check(ctx context.Context) error {
	buckets := []Bucket{g.control}
	if g.media != g.control {
		buckets = append(buckets, g.media)
	}

	for _, b := range buckets {
		ctx, cancel := g.withTimeout(ctx)
		err := b.Check(ctx)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

type asset struct {
	local    string
	remote   string
	required error
}

// UploadVideoAssets publishes a packaged video from dir in dependency order:
// key, segment, trick-play manifest, main manifest. Every object is stored
// and verified before the next one starts. Missing key or segment fails
// before anything is uploaded, missing manifests are skipped.
func (g *Gateway) UploadVideoAssets(ctx context.Context, video, keyID, dir string) error {
	layout := g.config.Layout
	segment := manifest.SegmentName(video)

	assets := []asset{
		{local: filepath.Join(dir, keyID), remote: layout.KeyPath(keyID), required: ErrMissingKey},
		{local: filepath.Join(dir, segment), remote: layout.SegmentPath(video), required: ErrMissingSegment},
		{local: filepath.Join(dir, manifest.TrickPlaylist), remote: layout.ManifestPath(video, manifest.TrickPlaylist)},
		{local: filepath.Join(dir, manifest.MainPlaylist), remote: layout.ManifestPath(video, manifest.MainPlaylist)},
	}

	for _, a := range assets {
		if a.required == nil {
			continue
		}
		if _, err := os.Stat(a.local); err != nil {
			return fmt.Errorf("%w: %s", a.required, a.local)
		}
	}

	logger := g.logger.With().Str("video", video).Str("key", keyID).Logger()

	for _, a := range assets {
		if _, err := os.Stat(a.local); errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("file", a.local).Msg("asset not found, skipping upload")
			continue
		}

		if err := g.upload(ctx, a.local, a.remote); err != nil {
			return err
		}
		logger.Info().Str("object", a.remote).Msg("uploaded")
	}

	return nil
}

func (g *Gateway) upload(ctx context.Context, local, remote string) error {
	file, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", local, err)
	}

	bucket := g.bucketFor(remote)
	meta := ObjectMeta{
		ContentType:  manifest.ContentType(remote),
		CacheControl: manifest.CacheControl(remote),
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := bucket.Put(ctx, remote, file, stat.Size(), meta); err != nil {
		return err
	}

	info, err := bucket.Head(ctx, remote)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", remote, err)
	}
	if info.Size != stat.Size() {
		return fmt.Errorf("failed to verify %s: stored %d of %d bytes", remote, info.Size, stat.Size())
	}

	return nil
}

// CleanPath validates a client supplied object path.
func CleanPath(objectPath string) (string, error) {
	p := strings.Trim(objectPath, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, objectPath)
		}
	}
	return path.Clean(p), nil
}

// GeneratePresignedURL returns a time limited GET URL, ErrNotFound when the
// object does not exist.
func (g *Gateway) GeneratePresignedURL(ctx context.Context, objectPath string, expires time.Duration) (string, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}

	if expires <= 0 {
		expires = g.config.PresignExpiry
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	bucket := g.bucketFor(p)
	if _, err := bucket.Head(ctx, p); err != nil {
		return "", err
	}

	return bucket.Presign(ctx, p, expires)
}

// ListAssets returns video identifiers found under prefix, the manifest
// folder when empty.
func (g *Gateway) ListAssets(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = g.config.Layout.ManifestFolder
	}
	prefix = strings.Trim(prefix, "/") + "/"

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	listing, err := g.bucketFor(prefix).List(ctx, prefix, "/")
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	add := func(rest string) {
		if i := strings.Index(rest, "/"); i > 0 {
			seen[rest[:i]] = struct{}{}
		}
	}

	for _, cp := range listing.CommonPrefixes {
		add(strings.TrimPrefix(cp, prefix))
	}
	// some providers ignore the delimiter
	for _, key := range listing.Keys {
		add(strings.TrimPrefix(key, prefix))
	}

	videos := make([]string, 0, len(seen))
	for video := range seen {
		videos = append(videos, video)
	}
	sort.Strings(videos)
	return videos, nil
}
