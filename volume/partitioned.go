package volume

import (
	"github.com/janelia-flyem/lvv/lvv"
)

// Partitioned splits a volume into a grid of cubes of a fixed edge length.  Cubes at the
// high edges of the volume are truncated.  Buffers are allocated on first write.
type Partitioned struct {
	size          lvv.Point3d
	bytesPerVoxel int
	partitionSize int32
	grid          lvv.Point3d
	chunks        []*Chunk // z, then y, then x partition order
	length        int64
}

// CreateCubedPartitions returns a partitioned volume of the given voxel extents with cubes
// of partitionSize voxels per edge.
func CreateCubedPartitions(sx, sy, sz int32, bytesPerVoxel int, partitionSize int32) *Partitioned {
	checkExtents(sx, sy, sz, bytesPerVoxel)
	if partitionSize <= 0 {
		panic("partition size must be positive")
	}
	p := &Partitioned{
		size:          lvv.Point3d{sx, sy, sz},
		bytesPerVoxel: bytesPerVoxel,
		partitionSize: partitionSize,
		length:        int64(sx) * int64(sy) * int64(sz) * int64(bytesPerVoxel),
	}
	for i := 0; i < 3; i++ {
		p.grid[i] = int32(lvv.CeilDiv(int64(p.size[i]), int64(partitionSize)))
	}
	p.chunks = make([]*Chunk, 0, p.grid.Prod())
	for pz := int32(0); pz < p.grid[2]; pz++ {
		for py := int32(0); py < p.grid[1]; py++ {
			for px := int32(0); px < p.grid[0]; px++ {
				start := lvv.Point3d{px * partitionSize, py * partitionSize, pz * partitionSize}
				c := &Chunk{BytesPerVoxel: bytesPerVoxel, Start: start}
				c.Width = minInt32(partitionSize, sx-start[0])
				c.Height = minInt32(partitionSize, sy-start[1])
				c.Depth = minInt32(partitionSize, sz-start[2])
				p.chunks = append(p.chunks, c)
			}
		}
	}
	return p
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// Size returns the voxel extents of the volume.
func (p *Partitioned) Size() lvv.Point3d { return p.size }

// Grid returns the number of partitions along each axis.
func (p *Partitioned) Grid() lvv.Point3d { return p.grid }

func (p *Partitioned) BytesPerVoxel() int { return p.bytesPerVoxel }

func (p *Partitioned) Length() int64 { return p.length }

// locate maps a global byte index to its chunk and the offset within that chunk.
func (p *Partitioned) locate(i int64) (*Chunk, int64) {
	if i < 0 || i >= p.length {
		outOfRange(i, p.length)
	}
	bpv := int64(p.bytesPerVoxel)
	voxel, b := i/bpv, i%bpv
	sx, sy := int64(p.size[0]), int64(p.size[1])
	x := voxel % sx
	y := (voxel / sx) % sy
	z := voxel / (sx * sy)
	ps := int64(p.partitionSize)
	c := p.ChunkAt(int32(x/ps), int32(y/ps), int32(z/ps))
	lx, ly, lz := x%ps, y%ps, z%ps
	return c, ((lz*int64(c.Height)+ly)*int64(c.Width)+lx)*bpv + b
}

func (p *Partitioned) SetValueAt(i int64, value byte) {
	c, off := p.locate(i)
	if c.Data == nil {
		c.Data = make([]byte, c.NumBytes())
	}
	c.Data[off] = value
}

func (p *Partitioned) ValueAt(i int64) byte {
	c, off := p.locate(i)
	if c.Data == nil {
		return 0
	}
	return c.Data[off]
}

// ChunkAt returns the chunk at the given partition grid position.
func (p *Partitioned) ChunkAt(px, py, pz int32) *Chunk {
	if px < 0 || py < 0 || pz < 0 || px >= p.grid[0] || py >= p.grid[1] || pz >= p.grid[2] {
		panic("partition position outside grid")
	}
	return p.chunks[(int64(pz)*int64(p.grid[1])+int64(py))*int64(p.grid[0])+int64(px)]
}

// Chunks returns the partitions in z, y, x grid order.  Partitions never written are
// returned with nil Data.
func (p *Partitioned) Chunks() []*Chunk { return p.chunks }

// CachedVolumeChunks returns the partitions in z, y, x grid order with every buffer
// materialized, for consumers that upload whole chunks.
func (p *Partitioned) CachedVolumeChunks() []*Chunk {
	for _, c := range p.chunks {
		if c.Data == nil {
			c.Data = make([]byte, c.NumBytes())
		}
	}
	return p.chunks
}

// MaterializedBytes returns the number of bytes currently allocated.
func (p *Partitioned) MaterializedBytes() int64 {
	var n int64
	for _, c := range p.chunks {
		n += int64(len(c.Data))
	}
	return n
}
