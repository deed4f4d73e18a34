package volume

import (
	"bytes"
	"errors"
	"testing"

	"github.com/janelia-flyem/lvv/lvv"
)

func testValue(i int64) byte {
	return byte(i*31 + 7)
}

func TestPartitionedRoundTrip(t *testing.T) {
	for ps := int32(1); ps <= 8; ps++ {
		p := CreateCubedPartitions(7, 5, 3, 2, ps)
		if p.Length() != 7*5*3*2 {
			t.Fatalf("bad length %d for partition size %d", p.Length(), ps)
		}
		// Write backwards so chunks materialize in a different order than they are read.
		for i := p.Length() - 1; i >= 0; i-- {
			p.SetValueAt(i, testValue(i))
		}
		for i := int64(0); i < p.Length(); i++ {
			if v := p.ValueAt(i); v != testValue(i) {
				t.Fatalf("partition size %d: index %d got %d, expected %d", ps, i, v, testValue(i))
			}
		}
	}
}

func TestCubedPartitionsPattern(t *testing.T) {
	pattern := make([]byte, 125)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	p := CreateCubedPartitions(5, 5, 5, 2, 2)
	if p.Grid() != (lvv.Point3d{3, 3, 3}) {
		t.Fatalf("expected 3x3x3 grid, got %s", p.Grid())
	}
	expected := make([]byte, p.Length())
	for i := range expected {
		expected[i] = pattern[i%len(pattern)]
		p.SetValueAt(int64(i), expected[i])
	}

	// Chunks come back in (z,y,x) partition order.  Each holds its own sub-block, so
	// concatenating them is not the flat volume; the pattern is checked by placing every
	// chunk byte at its global position.
	chunks := p.CachedVolumeChunks()
	if len(chunks) != 27 {
		t.Fatalf("expected 27 chunks, got %d", len(chunks))
	}
	var total int64
	for n, c := range chunks {
		pz, py, px := int32(n/9), int32(n/3%3), int32(n%3)
		if c.Start != (lvv.Point3d{2 * px, 2 * py, 2 * pz}) {
			t.Fatalf("chunk %d starts at %s", n, c.Start)
		}
		if c != p.ChunkAt(px, py, pz) {
			t.Fatalf("chunk %d is not at grid position (%d,%d,%d)", n, px, py, pz)
		}
		total += int64(len(c.Data))

		// Walk the chunk buffer and check each byte against its global position.
		var off int
		for z := c.Start[2]; z < c.Start[2]+c.Depth; z++ {
			for y := c.Start[1]; y < c.Start[1]+c.Height; y++ {
				for x := c.Start[0]; x < c.Start[0]+c.Width; x++ {
					for b := 0; b < 2; b++ {
						global := ((int64(z)*5+int64(y))*5+int64(x))*2 + int64(b)
						if c.Data[off] != expected[global] {
							t.Fatalf("chunk %d byte %d: got %d, expected %d", n, off, c.Data[off], expected[global])
						}
						off++
					}
				}
			}
		}
	}
	if total != p.Length() {
		t.Errorf("chunks hold %d bytes, expected %d", total, p.Length())
	}
	if got := Flatten(p, p.Size(), p.BytesPerVoxel()); !bytes.Equal(got, expected) {
		t.Errorf("reassembled chunks differ from written data")
	}
}

func TestPartitionedLazy(t *testing.T) {
	p := CreateCubedPartitions(10, 10, 10, 1, 4)
	if p.MaterializedBytes() != 0 {
		t.Fatalf("expected no allocation before writes")
	}
	if v := p.ValueAt(999); v != 0 {
		t.Errorf("unwritten voxel has value %d", v)
	}
	p.SetValueAt(999, 3)
	if p.MaterializedBytes() != 2*2*2 {
		t.Errorf("expected only the corner chunk to be allocated, got %d bytes", p.MaterializedBytes())
	}
	if p.ValueAt(999) != 3 {
		t.Errorf("bad value after write")
	}
}

func TestSlabbedTransparency(t *testing.T) {
	ref := NewSlabbed(6, 4, 9, 3, 1)
	if ref.NumSlabs() != 1 {
		t.Fatalf("expected 1 slab, got %d", ref.NumSlabs())
	}
	for _, n := range []int{2, 3, 4, 9, 20} {
		s := NewSlabbed(6, 4, 9, 3, n)
		if s.Length() != ref.Length() {
			t.Fatalf("%d slabs: length %d != %d", n, s.Length(), ref.Length())
		}
		if s.NumSlabs() > n || s.NumSlabs() > 9 {
			t.Fatalf("asked for %d slabs, got %d", n, s.NumSlabs())
		}
		for i := int64(0); i < s.Length(); i++ {
			s.SetValueAt(i, testValue(i))
			ref.SetValueAt(i, testValue(i))
		}
		for i := int64(0); i < s.Length(); i++ {
			if s.ValueAt(i) != ref.ValueAt(i) {
				t.Fatalf("%d slabs: index %d differs", n, i)
			}
		}
		if !bytes.Equal(Flatten(s, s.Size(), 3), Flatten(ref, ref.Size(), 3)) {
			t.Fatalf("%d slabs: flattened data differs", n)
		}
	}
}

func TestSlabbedForLimit(t *testing.T) {
	s, err := NewSlabbedForLimit(100, 100, 50, 2, 100*100*2*8)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumSlabs() != 7 {
		t.Errorf("expected 7 slabs of 8 planes, got %d", s.NumSlabs())
	}
	for _, c := range s.Chunks() {
		if int64(len(c.Data)) > 100*100*2*8 {
			t.Errorf("slab of %d bytes exceeds limit", len(c.Data))
		}
	}
	if _, err := NewSlabbedForLimit(100, 100, 50, 2, 1000); !errors.Is(err, lvv.ErrConfiguration) {
		t.Errorf("expected configuration error for tiny limit, got %v", err)
	}
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestOutOfRange(t *testing.T) {
	p := CreateCubedPartitions(3, 3, 3, 1, 2)
	s := NewSlabbed(3, 3, 3, 1, 2)
	expectPanic(t, "partitioned get", func() { p.ValueAt(27) })
	expectPanic(t, "partitioned set", func() { p.SetValueAt(-1, 0) })
	expectPanic(t, "slabbed get", func() { s.ValueAt(27) })
	expectPanic(t, "slabbed set", func() { s.SetValueAt(-1, 0) })
}
