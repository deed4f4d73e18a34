// Package neighborhood computes the set of tiles that should be resident around a focus
// point.
package neighborhood

import (
	"math"
	"sort"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/tile"
)

// Neighborhood is an unordered set of tiles.
type Neighborhood map[tile.Index]struct{}

// Contains returns true if the tile is part of the neighborhood.
func (n Neighborhood) Contains(idx tile.Index) bool {
	_, found := n[idx]
	return found
}

// Equal returns true if both neighborhoods hold the same tiles.
func (n Neighborhood) Equal(other Neighborhood) bool {
	if len(n) != len(other) {
		return false
	}
	for idx := range n {
		if _, found := other[idx]; !found {
			return false
		}
	}
	return true
}

// Sorted returns the tiles in Index order.
func (n Neighborhood) Sorted() []tile.Index {
	out := make([]tile.Index, 0, len(n))
	for idx := range n {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Builder computes the tiles to keep resident for a focus point in micrometers and a
// camera zoom level.  Returned tiles are always valid addresses within the volume.
type Builder interface {
	Neighborhood(focus lvv.Vector3d, zoom float64) (Neighborhood, error)
}

// quantize converts a continuous camera zoom to a dataset zoom level.
func quantize(f *tile.Format, zoom float64) int {
	if math.IsNaN(zoom) {
		return 0
	}
	return f.ClampZoom(int(math.Floor(zoom + 0.5)))
}

// clampTile restricts a tile coordinate to [0, n).
func clampTile(c int64, n int32) int32 {
	if c < 0 {
		return 0
	}
	if c >= int64(n) {
		return n - 1
	}
	return int32(c)
}
