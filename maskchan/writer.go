package maskchan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer encodes mask and channel files.
type Writer struct {
	// HeaderMicrons writes the voxel size floats after the mask extents.
	HeaderMicrons bool
}

type fieldWriter struct {
	w   *bufio.Writer
	buf [8]byte
}

func (fw *fieldWriter) putInt64(v int64) {
	binary.LittleEndian.PutUint64(fw.buf[:], uint64(v))
	fw.w.Write(fw.buf[:8])
}

func (fw *fieldWriter) putFloat32(v float32) {
	binary.LittleEndian.PutUint32(fw.buf[:], math.Float32bits(v))
	fw.w.Write(fw.buf[:4])
}

// WriteMask writes a mask header followed by its run records.  The records must account
// for exactly h.TotalVoxels voxels.
func (wr Writer) WriteMask(w io.Writer, h MaskHeader, records []Record) error {
	var total int64
	for _, rec := range records {
		total += rec.Voxels()
	}
	if total != h.TotalVoxels {
		return fmt.Errorf("records hold %d voxels, header declares %d", total, h.TotalVoxels)
	}
	fw := &fieldWriter{w: bufio.NewWriter(w)}
	fw.putInt64(h.Sx)
	fw.putInt64(h.Sy)
	fw.putInt64(h.Sz)
	if wr.HeaderMicrons {
		for _, m := range h.Microns {
			fw.putFloat32(m)
		}
	}
	for _, b := range h.Bounds {
		fw.putInt64(b)
	}
	fw.putInt64(h.TotalVoxels)
	fw.w.WriteByte(h.Axis)
	for _, rec := range records {
		fw.putInt64(rec.Skip)
		fw.putInt64(int64(len(rec.Pairs)))
		for _, p := range rec.Pairs {
			fw.putInt64(p[0])
			fw.putInt64(p[1])
		}
	}
	return fw.w.Flush()
}

// WriteChannels writes a channel header and one array per channel of
// h.TotalVoxels * h.BytesPerChannel bytes.
func (wr Writer) WriteChannels(w io.Writer, h ChannelHeader, data [][]byte) error {
	if len(data) != int(h.Channels) {
		return fmt.Errorf("got %d channel arrays for %d channels", len(data), h.Channels)
	}
	want := h.TotalVoxels * int64(h.BytesPerChannel)
	for i, ch := range data {
		if int64(len(ch)) != want {
			return fmt.Errorf("channel %d has %d bytes, expected %d", i, len(ch), want)
		}
	}
	fw := &fieldWriter{w: bufio.NewWriter(w)}
	fw.putInt64(h.TotalVoxels)
	fw.w.Write([]byte{h.Channels, h.Red, h.Green, h.Blue, h.BytesPerChannel})
	for _, ch := range data {
		fw.w.Write(ch)
	}
	return fw.w.Flush()
}

// RunsFor builds the header and run records describing the voxels for which inside returns
// true, traversing along the given axis.  Voxels are visited in the same order a Loader
// delivers them.
func RunsFor(sx, sy, sz int64, axis byte, inside func(x, y, z int64) bool) (MaskHeader, []Record) {
	h := MaskHeader{Sx: sx, Sy: sy, Sz: sz, Axis: axis}
	fastest, second, slowest := rayGeometry(axis, sx, sy, sz)
	var records []Record
	var nextRay int64
	first := true
	for ray := int64(0); ray < second*slowest; ray++ {
		line, slice := ray%second, ray/second
		var pairs [][2]int64
		start := int64(-1)
		for pos := int64(0); pos <= fastest; pos++ {
			in := false
			if pos < fastest {
				x, y, z := place(axis, pos, line, slice)
				if in = inside(x, y, z); in {
					h.extend(x, y, z, first)
					first = false
				}
			}
			switch {
			case in && start < 0:
				start = pos
			case !in && start >= 0:
				pairs = append(pairs, [2]int64{start, pos})
				h.TotalVoxels += pos - start
				start = -1
			}
		}
		if len(pairs) > 0 {
			records = append(records, Record{Skip: ray - nextRay, Pairs: pairs})
			nextRay = ray + 1
		}
	}
	return h, records
}

func (h *MaskHeader) extend(x, y, z int64, first bool) {
	c := [3]int64{x, y, z}
	for i, v := range c {
		if first || v < h.Bounds[2*i] {
			h.Bounds[2*i] = v
		}
		if first || v > h.Bounds[2*i+1] {
			h.Bounds[2*i+1] = v
		}
	}
}
