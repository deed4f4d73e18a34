// Package cache keeps the tiles around a moving camera focus resident in memory.
//
// Every focus or zoom change recomputes the target neighborhood.  Tiles that left it are
// evicted and, with prefetch enabled, tiles that entered it are queued for loading on a
// bounded pool of workers.  The tile holding the focus point jumps the queue.  Without
// prefetch, tiles load on demand through Get.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/maskchan"
	"github.com/janelia-flyem/lvv/neighborhood"
	"github.com/janelia-flyem/lvv/tile"
	"github.com/twinj/uuid"
	"golang.org/x/sync/semaphore"
)

// State is the lifecycle stage of a tile in the cache.
type State uint8

const (
	Absent State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("tile cache is closed")

// Config tunes a Cache.
type Config struct {
	// Workers bounds concurrent tile loads.  Zero means DefaultWorkers.
	Workers int

	// Prefetch loads the whole neighborhood in the background after each focus change.
	Prefetch bool

	// RadiusMicrometers is the radius of the default sphere neighborhood.  Zero means
	// DefaultRadius.
	RadiusMicrometers float64

	// Axis is the slice orientation of quadtree tiles.
	Axis tile.Axis

	// RetainEvicted keeps this many evicted tiles so they can return without reloading.
	RetainEvicted int

	// FileCacheBytes sizes the byte cache in front of the dataset files.
	FileCacheBytes int

	// Loader materializes tiles.  Nil means a MaskChanTileLoader on the dataset configured
	// by MaskID, Decode and SkipChannels.
	Loader TileLoader

	MaskID       int
	Decode       maskchan.LoaderConfig
	SkipChannels bool
}

const (
	DefaultWorkers = 4
	DefaultRadius  = 100.0
)

type entry struct {
	state    State
	tile     *Tile
	err      error
	demanded bool
	done     chan struct{}
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Session       string      `json:"session"`
	Location      string      `json:"location"`
	Resident      int         `json:"resident"`
	Loading       int         `json:"loading"`
	Queued        int         `json:"queued"`
	Retained      int         `json:"retained"`
	Neighborhood  int         `json:"neighborhood"`
	Loads         uint64      `json:"loads"`
	Failures      uint64      `json:"failures"`
	Evictions     uint64      `json:"evictions"`
	Revivals      uint64      `json:"revivals"`
	Skipped       uint64      `json:"skipped"`
	ResidentBytes uint64      `json:"resident_bytes"`
	ResidentSize  string      `json:"resident_size"`
	Source        SourceStats `json:"source"`
}

// Cache is the resident tile set of one dataset view.
type Cache struct {
	session string
	source  *Source
	format  *tile.Format
	loader  TileLoader
	axis    tile.Axis

	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wake   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	builder  neighborhood.Builder
	focus    lvv.Vector3d
	zoom     float64
	prefetch bool
	hood     neighborhood.Neighborhood
	entries  map[tile.Index]*entry
	urgent   []tile.Index
	queue    []tile.Index
	retained *lru.Cache[tile.Index, *Tile]

	loads, failures, evictions, revivals, skipped uint64
}

// Open opens the dataset at location, reads its descriptor, and starts the worker pool.
// An unreachable location or unreadable descriptor fails with lvv.ErrResource; a bad
// descriptor fails with lvv.ErrConfiguration.
func Open(ctx context.Context, location string, cfg Config) (*Cache, error) {
	src, err := OpenSource(ctx, location, cfg.FileCacheBytes)
	if err != nil {
		return nil, err
	}
	descriptor, err := src.ReadFile(ctx, tile.DescriptorName)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: dataset %q: %v", lvv.ErrResource, location, err)
	}
	format, err := tile.NewFormatFromDescriptor(bytes.NewReader(descriptor))
	if err != nil {
		src.Close()
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RadiusMicrometers <= 0 {
		cfg.RadiusMicrometers = DefaultRadius
	}
	if cfg.Loader == nil {
		if cfg.MaskID <= 0 {
			cfg.MaskID = 1
		}
		cfg.Loader = &MaskChanTileLoader{
			Source:       src,
			MaskID:       cfg.MaskID,
			Decode:       cfg.Decode,
			SkipChannels: cfg.SkipChannels,
		}
	}

	c := &Cache{
		session:  fmt.Sprintf("%x", uuid.NewV4().Bytes()),
		source:   src,
		format:   format,
		loader:   cfg.Loader,
		axis:     cfg.Axis,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		wake:     make(chan struct{}, 1),
		prefetch: cfg.Prefetch,
		hood:     make(neighborhood.Neighborhood),
		entries:  make(map[tile.Index]*entry),
		builder: &neighborhood.SphereBuilder{
			Format:            format,
			RadiusMicrometers: cfg.RadiusMicrometers,
			Axis:              cfg.Axis,
		},
	}
	if cfg.RetainEvicted > 0 {
		if c.retained, err = lru.New[tile.Index, *Tile](cfg.RetainEvicted); err != nil {
			src.Close()
			return nil, fmt.Errorf("%w: %v", lvv.ErrConfiguration, err)
		}
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.dispatch()

	lvv.Infof("Opened tile cache %s on %s: %s, %d workers\n", c.session, location, format, cfg.Workers)
	return c, nil
}

// Format returns the tile geometry of the dataset.
func (c *Cache) Format() *tile.Format { return c.format }

// Source returns the file source of the dataset.
func (c *Cache) Source() *Source { return c.source }

// Session returns an identifier unique to this cache instance.
func (c *Cache) Session() string { return c.session }

// SetNeighborhoodBuilder replaces the strategy picking resident tiles.
func (c *Cache) SetNeighborhoodBuilder(b neighborhood.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder = b
	c.retarget(true)
}

// SetFocus moves the camera focus, in micrometers.  It never blocks on loading.
func (c *Cache) SetFocus(x, y, z float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focus = lvv.Vector3d{x, y, z}
	c.retarget(false)
}

// SetCameraZoom sets the zoom level, 0 being full resolution.
func (c *Cache) SetCameraZoom(zoom float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zoom = zoom
	c.retarget(false)
}

// SetPixelsPerSceneUnit sets the zoom level matching the screen scale.
func (c *Cache) SetPixelsPerSceneUnit(pixelsPerMicrometer float64) {
	c.SetCameraZoom(float64(c.format.ZoomLevelForCameraZoom(pixelsPerMicrometer)))
}

// SetPrefetch turns background loading of the neighborhood on or off.
func (c *Cache) SetPrefetch(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = enabled
	c.retarget(true)
}

// Prefetch reports whether the neighborhood loads in the background.
func (c *Cache) Prefetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}

// retarget recomputes the neighborhood, evicts tiles outside it, and schedules loads for
// missing tiles.  Callers hold c.mu.
func (c *Cache) retarget(force bool) {
	if c.closed || c.builder == nil {
		return
	}
	hood, err := c.builder.Neighborhood(c.focus, c.zoom)
	if err != nil {
		lvv.Errorf("Cannot compute neighborhood at %s, zoom %g: %v\n", c.focus, c.zoom, err)
		return
	}
	if !force && hood.Equal(c.hood) {
		return
	}
	c.hood = hood

	for idx, e := range c.entries {
		if e.state == Loaded && !hood.Contains(idx) {
			c.evict(idx, e)
		}
	}
	if !c.prefetch {
		return
	}
	focusTile := c.format.IndexForMicrometer(c.focus, c.format.ClampZoom(int(c.zoom+0.5)), c.axis)
	for _, idx := range hood.Sorted() {
		if _, found := c.entries[idx]; found {
			continue
		}
		if c.revive(idx) {
			continue
		}
		c.schedule(idx, idx == focusTile)
	}
}

func (c *Cache) evict(idx tile.Index, e *entry) {
	delete(c.entries, idx)
	c.evictions++
	if c.retained != nil && e.tile != nil {
		c.retained.Add(idx, e.tile)
	}
}

// revive reinstates a retained tile.  Callers hold c.mu.
func (c *Cache) revive(idx tile.Index) bool {
	if c.retained == nil {
		return false
	}
	t, found := c.retained.Get(idx)
	if !found {
		return false
	}
	c.retained.Remove(idx)
	done := make(chan struct{})
	close(done)
	c.entries[idx] = &entry{state: Loaded, tile: t, done: done}
	c.revivals++
	return true
}

// schedule queues a load.  Callers hold c.mu and have checked that idx has no entry.
func (c *Cache) schedule(idx tile.Index, urgent bool) *entry {
	e := &entry{state: Loading, done: make(chan struct{})}
	c.entries[idx] = e
	if urgent {
		c.urgent = append(c.urgent, idx)
	} else {
		c.queue = append(c.queue, idx)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return e
}

// dispatch hands queued loads to workers, at most Workers at a time.
func (c *Cache) dispatch() {
	defer c.wg.Done()
	for {
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			return
		}
		idx, ok := c.nextJob()
		if !ok {
			c.sem.Release(1)
			return
		}
		c.wg.Add(1)
		go func(idx tile.Index) {
			defer c.wg.Done()
			defer c.sem.Release(1)
			c.load(idx)
		}(idx)
	}
}

// nextJob waits for a queued tile still worth loading.
func (c *Cache) nextJob() (tile.Index, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return tile.Index{}, false
		}
		for len(c.urgent) > 0 || len(c.queue) > 0 {
			var idx tile.Index
			if len(c.urgent) > 0 {
				idx, c.urgent = c.urgent[0], c.urgent[1:]
			} else {
				idx, c.queue = c.queue[0], c.queue[1:]
			}
			e := c.entries[idx]
			if e.demanded || c.hood.Contains(idx) {
				c.mu.Unlock()
				return idx, true
			}
			// The focus moved on before the load started.
			delete(c.entries, idx)
			c.skipped++
			e.err = fmt.Errorf("tile %s left the neighborhood before loading", idx)
			close(e.done)
		}
		c.mu.Unlock()
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return tile.Index{}, false
		}
	}
}

func (c *Cache) load(idx tile.Index) {
	timedLog := lvv.NewTimeLog()
	t, err := c.loadTile(idx)

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[idx]
	switch {
	case err != nil && c.closed:
		delete(c.entries, idx)
		e.err = ErrClosed
		lvv.Debugf("Load of tile %s abandoned on close: %v\n", idx, err)
	case err != nil:
		delete(c.entries, idx)
		c.failures++
		e.err = err
		lvv.Errorf("Failed to load tile %s: %v\n", idx, err)
	case c.closed || !c.hood.Contains(idx):
		// Hand the tile to any waiter but do not keep it resident.
		delete(c.entries, idx)
		c.loads++
		c.evictions++
		e.tile = t
		if c.retained != nil {
			c.retained.Add(idx, t)
		}
	default:
		c.loads++
		e.state = Loaded
		e.tile = t
		timedLog.Debugf("Loaded tile %s (%s stored)", idx, humanize.Bytes(uint64(t.StoredBytes)))
	}
	close(e.done)
}

// loadTile runs the loader, turning a panic into an error for this tile alone.
func (c *Cache) loadTile(idx tile.Index) (t *Tile, err error) {
	defer func() {
		if r := recover(); r != nil {
			lvv.Criticalf("Panic loading tile %s: %v\n%s", idx, r, debug.Stack())
			t, err = nil, fmt.Errorf("%w: panic loading tile %s: %v", lvv.ErrDecode, idx, r)
		}
	}()
	return c.loader.LoadTile(c.ctx, idx)
}

// Get returns a tile, loading it if it is not resident.  A tile outside the current
// neighborhood is returned but not kept resident.
func (c *Cache) Get(ctx context.Context, idx tile.Index) (*Tile, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if !c.format.Valid(idx) {
		c.mu.Unlock()
		return nil, fmt.Errorf("tile %s is outside the dataset", idx)
	}
	e, found := c.entries[idx]
	if !found {
		if c.hood.Contains(idx) && c.revive(idx) {
			e = c.entries[idx]
		} else if t, ok := c.retainedTile(idx); ok {
			c.mu.Unlock()
			return t, nil
		} else {
			e = c.schedule(idx, true)
		}
	}
	e.demanded = true
	done := e.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.tile, nil
}

func (c *Cache) retainedTile(idx tile.Index) (*Tile, bool) {
	if c.retained == nil {
		return nil, false
	}
	return c.retained.Get(idx)
}

// State returns the lifecycle stage of a tile.
func (c *Cache) State(idx tile.Index) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, found := c.entries[idx]; found {
		return e.state
	}
	return Absent
}

// IsReady returns true if the tile is loaded and resident.
func (c *Cache) IsReady(idx tile.Index) bool {
	return c.State(idx) == Loaded
}

// Neighborhood returns the current target tiles in Index order.
func (c *Cache) Neighborhood() []tile.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hood.Sorted()
}

// DumpKeys logs and returns the resident tiles in Index order.
func (c *Cache) DumpKeys() []tile.Index {
	c.mu.Lock()
	keys := make([]tile.Index, 0, len(c.entries))
	for idx, e := range c.entries {
		if e.state == Loaded {
			keys = append(keys, idx)
		}
	}
	c.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, idx := range keys {
		lvv.Infof("Resident tile %s at %s\n", idx, idx.RelativePath())
	}
	return keys
}

// Stats returns counters and an estimate of the memory held by resident tiles.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		Session:      c.session,
		Location:     c.source.Location(),
		Queued:       len(c.urgent) + len(c.queue),
		Neighborhood: len(c.hood),
		Loads:        c.loads,
		Failures:     c.failures,
		Evictions:    c.evictions,
		Revivals:     c.revivals,
		Skipped:      c.skipped,
	}
	var resident []*Tile
	for _, e := range c.entries {
		switch e.state {
		case Loaded:
			st.Resident++
			resident = append(resident, e.tile)
		case Loading:
			st.Loading++
		}
	}
	if c.retained != nil {
		st.Retained = c.retained.Len()
	}
	c.mu.Unlock()

	st.ResidentBytes = uint64(size.Of(resident))
	st.ResidentSize = humanize.Bytes(st.ResidentBytes)
	st.Source = c.source.Stats()
	return st
}

// Close stops the workers, cancels in-flight loads and waits for them, then releases the
// dataset.  Waiting
// Get calls for tiles that never started loading return ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	for _, idx := range append(c.urgent, c.queue...) {
		if e, found := c.entries[idx]; found {
			delete(c.entries, idx)
			e.err = ErrClosed
			close(e.done)
		}
	}
	c.urgent, c.queue = nil, nil
	c.mu.Unlock()

	c.wg.Wait()
	st := c.Stats()
	lvv.Infof("Closed tile cache %s: %d loads, %d failures, %d evictions\n", c.session, st.Loads, st.Failures, st.Evictions)
	return c.source.Close()
}
