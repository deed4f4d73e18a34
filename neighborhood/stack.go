package neighborhood

import (
	"fmt"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/tile"
)

// StackBuilder selects the tile holding the focus and its immediate neighbors, a block of
// up to 3x3x3 tiles clipped to the volume.
type StackBuilder struct {
	Format *tile.Format
	Axis   tile.Axis
}

func (b *StackBuilder) Neighborhood(focus lvv.Vector3d, zoom float64) (Neighborhood, error) {
	if b.Format == nil {
		return nil, fmt.Errorf("%w: stack neighborhood has no tile format", lvv.ErrConfiguration)
	}
	f := b.Format
	level := quantize(f, zoom)
	center := f.IndexForMicrometer(focus, level, b.Axis)
	n := f.TileRange(level, b.Axis)
	c := [3]int32{
		clampTile(int64(center.X), n[0]),
		clampTile(int64(center.Y), n[1]),
		clampTile(int64(center.Z), n[2]),
	}
	hood := make(Neighborhood)
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				idx := center
				idx.X, idx.Y, idx.Z = c[0]+dx, c[1]+dy, c[2]+dz
				if f.Valid(idx) {
					hood[idx] = struct{}{}
				}
			}
		}
	}
	return hood, nil
}
