// Package volume holds decoded voxel data in memory, split into chunks so that no single
// allocation has to cover a whole volume.
//
// Two layouts are provided.  Partitioned volumes cut a bounded volume into a 3d grid of
// cubes suitable for piecewise upload.  Slabbed volumes cut a very large volume into a few
// z slabs.  In both, a global index is a byte offset into the logical volume where x varies
// fastest, then y, then z, with BytesPerVoxel bytes per voxel.
package volume

import (
	"fmt"

	"github.com/janelia-flyem/lvv/lvv"
)

// Data is byte addressable voxel storage.  Indices outside [0, Length()) are a programming
// error and panic.
type Data interface {
	SetValueAt(i int64, value byte)
	ValueAt(i int64) byte
	Length() int64

	// Chunks returns the underlying buffers without copying.
	Chunks() []*Chunk
}

// Chunk is one contiguous buffer covering a box of voxels starting at Start.  Within a chunk,
// x varies fastest.
type Chunk struct {
	Data          []byte
	Width         int32
	Height        int32
	Depth         int32
	BytesPerVoxel int
	Start         lvv.Point3d
}

// NumBytes returns the size the chunk's buffer has when materialized.
func (c *Chunk) NumBytes() int64 {
	return int64(c.Width) * int64(c.Height) * int64(c.Depth) * int64(c.BytesPerVoxel)
}

// Extents returns the inclusive voxel extents covered by the chunk.
func (c *Chunk) Extents() lvv.Extents3d {
	return lvv.Extents3d{
		MinPoint: c.Start,
		MaxPoint: c.Start.Add(lvv.Point3d{c.Width - 1, c.Height - 1, c.Depth - 1}),
	}
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk %dx%dx%d at %s", c.Width, c.Height, c.Depth, c.Start)
}

// Flatten copies any Data into a single buffer in the logical x, y, z order.  The extents
// are needed to place each chunk.
func Flatten(d Data, size lvv.Point3d, bytesPerVoxel int) []byte {
	out := make([]byte, d.Length())
	rowStride := int64(size[0]) * int64(bytesPerVoxel)
	planeStride := rowStride * int64(size[1])
	for _, c := range d.Chunks() {
		if c.Data == nil {
			continue
		}
		rowBytes := int64(c.Width) * int64(bytesPerVoxel)
		var src int64
		for z := int64(0); z < int64(c.Depth); z++ {
			for y := int64(0); y < int64(c.Height); y++ {
				dst := (int64(c.Start[2])+z)*planeStride + (int64(c.Start[1])+y)*rowStride +
					int64(c.Start[0])*int64(bytesPerVoxel)
				copy(out[dst:dst+rowBytes], c.Data[src:src+rowBytes])
				src += rowBytes
			}
		}
	}
	return out
}

func checkExtents(sx, sy, sz int32, bytesPerVoxel int) {
	if sx <= 0 || sy <= 0 || sz <= 0 || bytesPerVoxel <= 0 {
		panic(fmt.Sprintf("bad volume %d x %d x %d with %d bytes per voxel", sx, sy, sz, bytesPerVoxel))
	}
}

func outOfRange(i, length int64) {
	panic(fmt.Sprintf("volume index %d out of range [0, %d)", i, length))
}
