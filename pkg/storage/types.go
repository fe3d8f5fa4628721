package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound        = errors.New("object not found")
	ErrMissingKey      = errors.New("encryption key missing")
	ErrMissingSegment  = errors.New("media segment missing")
	ErrInvalidPath     = errors.New("invalid object path")
	ErrInvalidStrategy = errors.New("invalid storage strategy")
)

type ObjectMeta struct {
	ContentType  string
	CacheControl string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

type Listing struct {
	Keys           []string
	CommonPrefixes []string
}

// Bucket is a single object store container.
type Bucket interface {
	Name() string
	// Check verifies the bucket exists and is accessible.
	Check(ctx context.Context) error
	// Head returns ErrNotFound for missing objects.
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, meta ObjectMeta) error
	List(ctx context.Context, prefix, delimiter string) (Listing, error)
	Presign(ctx context.Context, key string, expires time.Duration) (string, error)
}

type Strategy string

const (
	// every folder lives in one bucket
	StrategySingle Strategy = "single"
	// keys and manifests in the control bucket, segments in the media bucket
	StrategyDual Strategy = "dual"
)
