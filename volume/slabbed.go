package volume

import (
	"fmt"

	"github.com/janelia-flyem/lvv/lvv"
)

// Slabbed splits a volume along z into slabs that are allocated independently.  It behaves
// exactly like a single buffer of the whole volume.
type Slabbed struct {
	size          lvv.Point3d
	bytesPerVoxel int
	slabDepth     int32
	slabBytes     int64
	slabs         []*Chunk
	length        int64
}

// NewSlabbed returns a volume split into at most numSlabs slabs.  The slab count is clamped
// to [1, sz]; all slabs but the last have the same depth.
func NewSlabbed(sx, sy, sz int32, bytesPerVoxel int, numSlabs int) *Slabbed {
	checkExtents(sx, sy, sz, bytesPerVoxel)
	if numSlabs < 1 {
		numSlabs = 1
	}
	if numSlabs > int(sz) {
		numSlabs = int(sz)
	}
	depth := int32(lvv.CeilDiv(int64(sz), int64(numSlabs)))
	s := &Slabbed{
		size:          lvv.Point3d{sx, sy, sz},
		bytesPerVoxel: bytesPerVoxel,
		slabDepth:     depth,
		slabBytes:     int64(sx) * int64(sy) * int64(depth) * int64(bytesPerVoxel),
		length:        int64(sx) * int64(sy) * int64(sz) * int64(bytesPerVoxel),
	}
	for z := int32(0); z < sz; z += depth {
		c := &Chunk{
			Width:         sx,
			Height:        sy,
			Depth:         minInt32(depth, sz-z),
			BytesPerVoxel: bytesPerVoxel,
			Start:         lvv.Point3d{0, 0, z},
		}
		c.Data = make([]byte, c.NumBytes())
		s.slabs = append(s.slabs, c)
	}
	return s
}

// NewSlabbedForLimit returns a volume with the fewest slabs such that no slab exceeds
// maxSlabBytes.
func NewSlabbedForLimit(sx, sy, sz int32, bytesPerVoxel int, maxSlabBytes int64) (*Slabbed, error) {
	checkExtents(sx, sy, sz, bytesPerVoxel)
	plane := int64(sx) * int64(sy) * int64(bytesPerVoxel)
	if plane > maxSlabBytes {
		return nil, fmt.Errorf("%w: a single %d x %d plane needs %d bytes, over the %d byte limit",
			lvv.ErrConfiguration, sx, sy, plane, maxSlabBytes)
	}
	planesPerSlab := maxSlabBytes / plane
	numSlabs := lvv.CeilDiv(int64(sz), planesPerSlab)
	return NewSlabbed(sx, sy, sz, bytesPerVoxel, int(numSlabs)), nil
}

func (s *Slabbed) Size() lvv.Point3d { return s.size }

func (s *Slabbed) BytesPerVoxel() int { return s.bytesPerVoxel }

func (s *Slabbed) NumSlabs() int { return len(s.slabs) }

func (s *Slabbed) Length() int64 { return s.length }

func (s *Slabbed) SetValueAt(i int64, value byte) {
	if i < 0 || i >= s.length {
		outOfRange(i, s.length)
	}
	s.slabs[i/s.slabBytes].Data[i%s.slabBytes] = value
}

func (s *Slabbed) ValueAt(i int64) byte {
	if i < 0 || i >= s.length {
		outOfRange(i, s.length)
	}
	return s.slabs[i/s.slabBytes].Data[i%s.slabBytes]
}

// Chunks returns the slabs in increasing z.
func (s *Slabbed) Chunks() []*Chunk { return s.slabs }
