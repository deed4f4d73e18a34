package neighborhood

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/tile"
)

// SphereBuilder selects every tile whose voxel box comes within RadiusMicrometers of the
// focus.  The radius is fixed in scene units, so coarser zoom levels need fewer tiles.
// Distances are measured with the dataset's voxel size along each axis.
type SphereBuilder struct {
	Format            *tile.Format
	RadiusMicrometers float64
	Axis              tile.Axis
}

func (b *SphereBuilder) Neighborhood(focus lvv.Vector3d, zoom float64) (Neighborhood, error) {
	return b.ComputeNeighborhood(focus, zoom, b.RadiusMicrometers)
}

// ComputeNeighborhood is Neighborhood with an explicit radius.
func (b *SphereBuilder) ComputeNeighborhood(focus lvv.Vector3d, zoom float64, radius float64) (Neighborhood, error) {
	if b.Format == nil {
		return nil, fmt.Errorf("%w: sphere neighborhood has no tile format", lvv.ErrConfiguration)
	}
	if radius < 0 || math.IsNaN(radius) {
		return nil, fmt.Errorf("%w: bad neighborhood radius %g", lvv.ErrConfiguration, radius)
	}
	f := b.Format
	level := quantize(f, zoom)
	center := f.MicrometerToVoxel(focus)
	scale := f.VoxelMicrometers()
	n := f.TileRange(level, b.Axis)
	tileSize := f.TileSize()

	var lo, hi [3]int32
	for i := 0; i < 3; i++ {
		span := float64(int64(tileSize[i]) * f.ZoomFactor(i, level, b.Axis))
		reach := radius / scale[i]
		lo[i] = clampTile(int64(math.Floor((center[i]-reach)/span)), n[i])
		hi[i] = clampTile(int64(math.Floor((center[i]+reach)/span)), n[i])
	}

	r2 := radius * radius
	hood := make(Neighborhood)
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				idx := tile.Index{
					X: x, Y: y, Z: z,
					Zoom:    level,
					MaxZoom: f.MaxZoom(),
					Axis:    b.Axis,
					Style:   f.Style(),
				}
				if f.VoxelBounds(idx).SquaredDistance(center, scale) <= r2 {
					hood[idx] = struct{}{}
				}
			}
		}
	}
	return hood, nil
}
