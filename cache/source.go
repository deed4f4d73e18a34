package cache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/singleflight"
	"github.com/janelia-flyem/lvv/lvv"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcerrors"
)

// Source reads files of a dataset.  Concurrent reads of the same file share one fetch, and
// recently read files are kept in a bounded byte cache.
type Source struct {
	location string
	bucket   *blob.Bucket
	files    *freecache.Cache
	flight   singleflight.Group

	fetches uint64
}

// OpenBucket returns a bucket for a dataset location.  The location can be any gocloud
// bucket URL such as file:///data/tiles or gs://bucket/prefix, or a plain directory.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	if !strings.Contains(location, "://") {
		dir, err := filepath.Abs(location)
		if err != nil {
			return nil, err
		}
		return fileblob.OpenBucket(dir, nil)
	}
	if strings.HasPrefix(location, "gs://") {
		ref := strings.TrimPrefix(location, "gs://")
		parts := strings.SplitN(ref, "/", 2)
		bucket, err := blob.OpenBucket(ctx, "gs://"+parts[0])
		if err != nil {
			return nil, err
		}
		if len(parts) == 2 && parts[1] != "" {
			bucket = blob.PrefixedBucket(bucket, strings.TrimSuffix(parts[1], "/")+"/")
		}
		return bucket, nil
	}
	return blob.OpenBucket(ctx, location)
}

// OpenSource opens the dataset location.  A byte cache of cacheBytes is placed in front
// of the bucket when cacheBytes is positive.  Failures wrap lvv.ErrResource.
func OpenSource(ctx context.Context, location string, cacheBytes int) (*Source, error) {
	bucket, err := OpenBucket(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open dataset location %q: %v", lvv.ErrResource, location, err)
	}
	s := &Source{location: location, bucket: bucket}
	if cacheBytes > 0 {
		s.files = freecache.NewCache(cacheBytes)
		lvv.Infof("Created file cache of %s for dataset %q\n", humanize.Bytes(uint64(cacheBytes)), location)
	}
	return s, nil
}

// Location returns the dataset location the source was opened with.
func (s *Source) Location() string { return s.location }

// Exists returns true if the file is present.
func (s *Source) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// ReadFile returns the contents of a file.  Missing files return an error satisfying
// errors.Is(err, fs.ErrNotExist).
func (s *Source) ReadFile(ctx context.Context, key string) ([]byte, error) {
	if s.files != nil {
		data, err := s.files.Get([]byte(key))
		if err == nil {
			return data, nil
		}
		if err != freecache.ErrNotFound {
			return nil, err
		}
	}
	v, err := s.flight.Do(key, func() (interface{}, error) {
		atomic.AddUint64(&s.fetches, 1)
		data, err := s.bucket.ReadAll(ctx, key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
			}
			return nil, fmt.Errorf("reading %q from %q: %v", key, s.location, err)
		}
		if s.files != nil {
			// Files too large for the cache are simply not kept.
			s.files.Set([]byte(key), data, 0)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// SourceStats describes file traffic through a Source.
type SourceStats struct {
	Fetches      uint64 `json:"fetches"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
	CacheEntries int64  `json:"cache_entries"`
}

func (s *Source) Stats() SourceStats {
	st := SourceStats{Fetches: atomic.LoadUint64(&s.fetches)}
	if s.files != nil {
		st.CacheHits = s.files.HitCount()
		st.CacheMisses = s.files.MissCount()
		st.CacheEntries = s.files.EntryCount()
	}
	return st
}

func (s *Source) Close() error {
	return s.bucket.Close()
}

// WriteFile stores a file in the dataset location, creating directories as needed.
func WriteFile(ctx context.Context, location, key string, data []byte) error {
	if !strings.Contains(location, "://") {
		if err := os.MkdirAll(location, 0755); err != nil {
			return err
		}
	}
	bucket, err := OpenBucket(ctx, location)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return bucket.WriteAll(ctx, key, data, nil)
}
