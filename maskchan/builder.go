package maskchan

import (
	"fmt"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/volume"
)

// DefaultMaxSlabBytes bounds single allocations of builder volumes.
const DefaultMaxSlabBytes = 1 << 30

// space is the target volume shared by the builders.  The first SetSpaceSize allocates it;
// later sessions into the same builder must declare the same padded extents.
type space struct {
	// PartitionSize, if positive, stores voxels in cubes of this edge length instead of
	// z slabs.
	PartitionSize int32

	// MaxSlabBytes bounds each slab when slabs are used.  Zero means DefaultMaxSlabBytes.
	MaxSlabBytes int64

	bytesPerVoxel int
	size          [3]int64
	padded        [3]int64
	coverage      [3]float32
	data          volume.Data
}

func (s *space) setSpaceSize(sx, sy, sz, px, py, pz int64, coverage [3]float32) error {
	padded := [3]int64{px, py, pz}
	if s.data != nil {
		if padded != s.padded {
			return fmt.Errorf("%w: space %v does not match existing %v", lvv.ErrContract, padded, s.padded)
		}
		return nil
	}
	s.size = [3]int64{sx, sy, sz}
	s.padded = padded
	s.coverage = coverage
	if s.PartitionSize > 0 {
		s.data = volume.CreateCubedPartitions(int32(px), int32(py), int32(pz), s.bytesPerVoxel, s.PartitionSize)
		return nil
	}
	limit := s.MaxSlabBytes
	if limit <= 0 {
		limit = DefaultMaxSlabBytes
	}
	var err error
	s.data, err = volume.NewSlabbedForLimit(int32(px), int32(py), int32(pz), s.bytesPerVoxel, limit)
	return err
}

func (s *space) offset(x, y, z int64) int64 {
	return ((z*s.padded[1]+y)*s.padded[0] + x) * int64(s.bytesPerVoxel)
}

// Volume returns the voxel store, or nil before the first decode.
func (s *space) Volume() volume.Data { return s.data }

// PaddedSize returns the extents of the stored volume.
func (s *space) PaddedSize() [3]int64 { return s.padded }

// Size returns the declared extents.
func (s *space) Size() [3]int64 { return s.size }

// Coverage returns the fraction of each padded axis holding declared voxels.
func (s *space) Coverage() [3]float32 { return s.coverage }

// MaskBuilder stores 16-bit little-endian mask ids per voxel.  Zero means no object.
type MaskBuilder struct {
	space
	counts map[int]int64
	bounds lvv.Extents3d
	any    bool
}

func NewMaskBuilder() *MaskBuilder {
	return &MaskBuilder{space: space{bytesPerVoxel: 2}, counts: make(map[int]int64)}
}

func (b *MaskBuilder) SetSpaceSize(sx, sy, sz, px, py, pz int64, coverage [3]float32) error {
	return b.setSpaceSize(sx, sy, sz, px, py, pz, coverage)
}

func (b *MaskBuilder) AddMaskData(maskID int, pos, x, y, z int64) (int, error) {
	if maskID < 0 || maskID > 0xFFFF {
		return 0, fmt.Errorf("%w: mask id %d does not fit in 16 bits", lvv.ErrContract, maskID)
	}
	i := pos * 2
	b.data.SetValueAt(i, byte(maskID))
	b.data.SetValueAt(i+1, byte(maskID>>8))
	b.counts[maskID]++
	pt := lvv.Point3d{int32(x), int32(y), int32(z)}
	if !b.any {
		b.bounds = lvv.Extents3d{MinPoint: pt, MaxPoint: pt}
		b.any = true
	} else {
		b.bounds.MinPoint.SetMinimum(pt)
		b.bounds.MaxPoint.SetMaximum(pt)
	}
	return 1, nil
}

func (b *MaskBuilder) AddChannelData(int, []byte, int64, int64, int64, int64, ChannelMetaData) (int, error) {
	return 0, fmt.Errorf("%w: mask builder given channel data", lvv.ErrContract)
}

func (b *MaskBuilder) SetChannelMetaData(ChannelMetaData) error { return nil }

func (b *MaskBuilder) AcceptableInputs() Acceptable { return AcceptMask }

func (b *MaskBuilder) EndData() error {
	lvv.Debugf("Mask volume %v holds %d objects within %s\n", b.padded, len(b.counts), b.bounds)
	return nil
}

// MaskAt returns the mask id stored at a voxel.
func (b *MaskBuilder) MaskAt(x, y, z int64) int {
	i := b.offset(x, y, z)
	return int(b.data.ValueAt(i)) | int(b.data.ValueAt(i+1))<<8
}

// Counts returns the number of voxels written per mask id.
func (b *MaskBuilder) Counts() map[int]int64 { return b.counts }

// Bounds returns the inclusive extents of all written voxels and false if none were.
func (b *MaskBuilder) Bounds() (lvv.Extents3d, bool) { return b.bounds, b.any }

// ChannelBuilder stores 8-bit RGBA per voxel, picking the recommended red, green and blue
// channels.  Two byte channels keep their high byte.  Alpha is the brightest of the three.
type ChannelBuilder struct {
	space
	meta ChannelMetaData
}

func NewChannelBuilder() *ChannelBuilder {
	return &ChannelBuilder{space: space{bytesPerVoxel: 4}}
}

func (b *ChannelBuilder) SetSpaceSize(sx, sy, sz, px, py, pz int64, coverage [3]float32) error {
	return b.setSpaceSize(sx, sy, sz, px, py, pz, coverage)
}

func (b *ChannelBuilder) SetChannelMetaData(meta ChannelMetaData) error {
	if meta.BytesPerChannel != 1 && meta.BytesPerChannel != 2 {
		return fmt.Errorf("%w: %d bytes per channel", lvv.ErrContract, meta.BytesPerChannel)
	}
	b.meta = meta
	return nil
}

func (b *ChannelBuilder) AddMaskData(int, int64, int64, int64, int64) (int, error) {
	return 0, fmt.Errorf("%w: channel builder given mask data", lvv.ErrContract)
}

func (b *ChannelBuilder) AddChannelData(maskID int, channel []byte, pos, x, y, z int64, meta ChannelMetaData) (int, error) {
	bpc := meta.BytesPerChannel
	value := func(ch int) byte {
		if ch >= meta.ChannelCount {
			return 0
		}
		return channel[ch*bpc+bpc-1]
	}
	rgba := [4]byte{value(meta.RedIndex), value(meta.GreenIndex), value(meta.BlueIndex)}
	for _, v := range rgba[:3] {
		if v > rgba[3] {
			rgba[3] = v
		}
	}
	i := pos * 4
	for j, v := range rgba {
		b.data.SetValueAt(i+int64(j), v)
	}
	return 1, nil
}

func (b *ChannelBuilder) AcceptableInputs() Acceptable { return AcceptChannel }

func (b *ChannelBuilder) EndData() error { return nil }

// RGBAAt returns the color stored at a voxel.
func (b *ChannelBuilder) RGBAAt(x, y, z int64) [4]byte {
	i := b.offset(x, y, z)
	var rgba [4]byte
	for j := range rgba {
		rgba[j] = b.data.ValueAt(i + int64(j))
	}
	return rgba
}
