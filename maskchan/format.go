package maskchan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/janelia-flyem/lvv/lvv"
)

// Traversal axes of a mask file.  Rays run along the axis; the ray index walks the other
// two axes with the listed one varying fastest.
const (
	AxisX byte = 0 // rays along x, ray index walks z then y
	AxisY byte = 1 // rays along y, ray index walks z then x
	AxisZ byte = 2 // rays along z, ray index walks y then x
)

// MaskHeader is the fixed-size start of a mask file.
type MaskHeader struct {
	Sx   int64
	Sy   int64
	Sz   int64

	// Microns is the voxel size.  It is only present in files written with micron headers.
	Microns [3]float32

	// Bounds of the object as x0, x1, y0, y1, z0, z1, inclusive.
	Bounds [6]int64

	TotalVoxels int64
	Axis        byte
}

// Record is one entry of the run list: skip whole rays, then mark the half-open intervals
// [start, end) along the next ray.
type Record struct {
	Skip  int64
	Pairs [][2]int64
}

// Voxels returns the number of voxels the record covers.
func (r Record) Voxels() int64 {
	var n int64
	for _, p := range r.Pairs {
		n += p[1] - p[0]
	}
	return n
}

// ChannelHeader is the fixed-size start of a channel file.
type ChannelHeader struct {
	TotalVoxels     int64
	Channels        byte
	Red             byte
	Green           byte
	Blue            byte
	BytesPerChannel byte
}

// MetaData returns the channel description handed to acceptors.
func (h ChannelHeader) MetaData() ChannelMetaData {
	return ChannelMetaData{
		RawChannelCount: int(h.Channels),
		ChannelCount:    int(h.Channels),
		RedIndex:        int(h.Red),
		GreenIndex:      int(h.Green),
		BlueIndex:       int(h.Blue),
		BytesPerChannel: int(h.BytesPerChannel),
	}
}

// stream reads little-endian fields and turns short reads into decode errors.
type stream struct {
	r   io.Reader
	buf [8]byte
	n   int64
}

func (s *stream) read(p []byte, what string) error {
	n, err := io.ReadFull(s.r, p)
	s.n += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: stream ended at byte %d while reading %s", lvv.ErrDecode, s.n, what)
		}
		return fmt.Errorf("%w: reading %s: %v", lvv.ErrDecode, what, err)
	}
	return nil
}

func (s *stream) readInt64(what string) (int64, error) {
	if err := s.read(s.buf[:8], what); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(s.buf[:8])), nil
}

func (s *stream) readFloat32(what string) (float32, error) {
	if err := s.read(s.buf[:4], what); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(s.buf[:4])), nil
}

func (s *stream) readByte(what string) (byte, error) {
	if err := s.read(s.buf[:1], what); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}

func readMaskHeader(s *stream, withMicrons bool) (MaskHeader, error) {
	var h MaskHeader
	var err error
	for i, dst := range []*int64{&h.Sx, &h.Sy, &h.Sz} {
		if *dst, err = s.readInt64(fmt.Sprintf("size %d", i)); err != nil {
			return h, err
		}
	}
	if withMicrons {
		for i := range h.Microns {
			if h.Microns[i], err = s.readFloat32("voxel microns"); err != nil {
				return h, err
			}
		}
	}
	for i := range h.Bounds {
		if h.Bounds[i], err = s.readInt64("bounds"); err != nil {
			return h, err
		}
	}
	if h.TotalVoxels, err = s.readInt64("total voxels"); err != nil {
		return h, err
	}
	if h.Axis, err = s.readByte("axis"); err != nil {
		return h, err
	}
	switch {
	case h.Sx <= 0 || h.Sy <= 0 || h.Sz <= 0 || h.Sx > math.MaxInt32 || h.Sy > math.MaxInt32 || h.Sz > math.MaxInt32:
		return h, fmt.Errorf("%w: bad mask extents %d x %d x %d", lvv.ErrDecode, h.Sx, h.Sy, h.Sz)
	case h.Axis > AxisZ:
		return h, fmt.Errorf("%w: unknown traversal axis %d", lvv.ErrDecode, h.Axis)
	case h.TotalVoxels < 0 || (h.Sx*h.Sy <= math.MaxInt64/h.Sz && h.TotalVoxels > h.Sx*h.Sy*h.Sz):
		return h, fmt.Errorf("%w: total voxels %d impossible for %d x %d x %d volume",
			lvv.ErrDecode, h.TotalVoxels, h.Sx, h.Sy, h.Sz)
	}
	return h, nil
}

// maxPairs bounds the pair count of a single record, which can never exceed half a ray.
func readRecord(s *stream, maxPairs int64) (Record, error) {
	var rec Record
	var err error
	if rec.Skip, err = s.readInt64("skip count"); err != nil {
		return rec, err
	}
	if rec.Skip < 0 {
		return rec, fmt.Errorf("%w: negative skip count %d", lvv.ErrDecode, rec.Skip)
	}
	numPairs, err := s.readInt64("pair count")
	if err != nil {
		return rec, err
	}
	if numPairs < 0 || numPairs > maxPairs {
		return rec, fmt.Errorf("%w: bad pair count %d", lvv.ErrDecode, numPairs)
	}
	rec.Pairs = make([][2]int64, numPairs)
	for i := range rec.Pairs {
		if rec.Pairs[i][0], err = s.readInt64("run start"); err != nil {
			return rec, err
		}
		if rec.Pairs[i][1], err = s.readInt64("run end"); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func readChannelHeader(s *stream) (ChannelHeader, error) {
	var h ChannelHeader
	var err error
	if h.TotalVoxels, err = s.readInt64("channel total voxels"); err != nil {
		return h, err
	}
	fields := []*byte{&h.Channels, &h.Red, &h.Green, &h.Blue, &h.BytesPerChannel}
	for _, dst := range fields {
		if *dst, err = s.readByte("channel header"); err != nil {
			return h, err
		}
	}
	switch {
	case h.Channels == 0:
		return h, fmt.Errorf("%w: channel file declares no channels", lvv.ErrDecode)
	case h.BytesPerChannel != 1 && h.BytesPerChannel != 2:
		return h, fmt.Errorf("%w: %d bytes per channel not supported", lvv.ErrDecode, h.BytesPerChannel)
	case h.Red >= h.Channels || h.Green >= h.Channels || h.Blue >= h.Channels:
		return h, fmt.Errorf("%w: recommended channels (%d,%d,%d) outside %d channels",
			lvv.ErrDecode, h.Red, h.Green, h.Blue, h.Channels)
	}
	return h, nil
}

// rayGeometry returns the ray length and the counts of the two axes the ray index walks,
// faster one first.
func rayGeometry(axis byte, sx, sy, sz int64) (fastest, second, slowest int64) {
	switch axis {
	case AxisX:
		return sx, sz, sy
	case AxisY:
		return sy, sz, sx
	default:
		return sz, sy, sx
	}
}

// place returns the voxel at position pos along a ray given the ray's line and slice.
func place(axis byte, pos, line, slice int64) (x, y, z int64) {
	switch axis {
	case AxisX:
		return pos, slice, line
	case AxisY:
		return slice, pos, line
	default:
		return slice, line, pos
	}
}
