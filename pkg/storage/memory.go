package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data []byte
	meta ObjectMeta
}

// MemoryBucket keeps objects in process. Presigned URLs point at BaseURL,
// where the bucket itself can be served as an http.Handler.
type MemoryBucket struct {
	name string

	mu      sync.RWMutex
	objects map[string]memoryObject
	puts    []string

	BaseURL string
	// PutHook, when set, may reject a put before it is stored.
	PutHook func(key string) error
}

func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		objects: map[string]memoryObject{},
		BaseURL: "memory://",
	}
}

func (b *MemoryBucket) Name() string {
	return b.name
}

func (b *MemoryBucket) Check(ctx context.Context) error {
	return ctx.Err()
}

func (b *MemoryBucket) Head(ctx context.Context, key string) (ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrNotFound, b.name, key)
	}

	return ObjectInfo{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.meta.ContentType,
	}, nil
}

func (b *MemoryBucket) Put(ctx context.Context, key string, body io.Reader, size int64, meta ObjectMeta) error {
	if b.PutHook != nil {
		if err := b.PutHook(key); err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", b.name, key, err)
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("failed to put %s/%s: short body %d of %d bytes", b.name, key, len(data), size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = memoryObject{data: data, meta: meta}
	b.puts = append(b.puts, key)
	return nil
}

func (b *MemoryBucket) List(ctx context.Context, prefix, delimiter string) (Listing, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var listing Listing
	seen := map[string]bool{}
	for key := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := strings.TrimPrefix(key, prefix)
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					listing.CommonPrefixes = append(listing.CommonPrefixes, cp)
				}
				continue
			}
		}

		listing.Keys = append(listing.Keys, key)
	}

	sort.Strings(listing.Keys)
	sort.Strings(listing.CommonPrefixes)
	return listing, nil
}

func (b *MemoryBucket) Presign(ctx context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s/%s?expires=%d",
		strings.TrimRight(b.BaseURL, "/"), b.name, key, int(expires.Seconds())), nil
}

// Object returns a stored object.
func (b *MemoryBucket) Object(key string) ([]byte, ObjectMeta, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	return obj.data, obj.meta, ok
}

// Puts returns keys in the order they were stored.
func (b *MemoryBucket) Puts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]string(nil), b.puts...)
}

// ServeHTTP serves objects at /<bucket>/<key>.
func (b *MemoryBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := url.PathUnescape(r.URL.Path)
	if err != nil {
		http.Error(w, "400 invalid path", http.StatusBadRequest)
		return
	}

	key := strings.TrimPrefix(strings.TrimPrefix(p, "/"), b.name+"/")
	data, meta, ok := b.Object(key)
	if !ok {
		http.Error(w, "404 object not found", http.StatusNotFound)
		return
	}

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	// ranges are answered like S3 does
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
