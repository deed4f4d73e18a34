package neighborhood

import (
	"testing"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/tile"
)

func testFormat(t *testing.T) *tile.Format {
	f, err := tile.NewFormat(tile.FormatConfig{
		VolumeSize:       lvv.Point3d{1000, 800, 300},
		TileSize:         lvv.Point3d{100, 100, 50},
		VoxelMicrometers: lvv.Vector3d{0.5, 0.5, 2.0},
		ChannelCount:     2,
		BitDepth:         16,
		IntensityMax:     4095,
		ZoomLevelCount:   4,
		Style:            tile.Octree,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestSphereMatchesExhaustiveSearch(t *testing.T) {
	f := testFormat(t)
	b := &SphereBuilder{Format: f, RadiusMicrometers: 60, Axis: tile.ZAxis}
	foci := []lvv.Vector3d{
		{250, 200, 300},
		{0, 0, 0},
		{499, 399, 599},
		{123.4, 321.9, 17},
		{-20, 200, 300},
		{250, 450, 300},
	}
	for _, focus := range foci {
		for _, zoom := range []int{0, 1, 3} {
			hood, err := b.Neighborhood(focus, float64(zoom))
			if err != nil {
				t.Fatal(err)
			}
			center := f.MicrometerToVoxel(focus)
			n := f.TileRange(zoom, tile.ZAxis)
			var expected int
			for z := int32(0); z < n[2]; z++ {
				for y := int32(0); y < n[1]; y++ {
					for x := int32(0); x < n[0]; x++ {
						idx := tile.Index{X: x, Y: y, Z: z, Zoom: zoom, MaxZoom: 3, Axis: tile.ZAxis, Style: tile.Octree}
						intersects := f.VoxelBounds(idx).SquaredDistance(center, f.VoxelMicrometers()) <= 60*60
						if intersects {
							expected++
						}
						if intersects != hood.Contains(idx) {
							t.Fatalf("focus %s zoom %d: tile %s intersects %t, included %t",
								focus, zoom, idx, intersects, hood.Contains(idx))
						}
					}
				}
			}
			if len(hood) != expected {
				t.Errorf("focus %s zoom %d: %d tiles, expected %d", focus, zoom, len(hood), expected)
			}
			for idx := range hood {
				if !f.Valid(idx) {
					t.Errorf("focus %s zoom %d: invalid tile %s", focus, zoom, idx)
				}
			}
		}
	}
}

func TestSphereBoundaries(t *testing.T) {
	f := testFormat(t)
	b := &SphereBuilder{Format: f, RadiusMicrometers: 60, Axis: tile.ZAxis}

	hood, err := b.Neighborhood(lvv.Vector3d{-100, -100, -100}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hood) != 0 {
		t.Errorf("focus far outside the volume selected %d tiles", len(hood))
	}

	hood, err = b.Neighborhood(lvv.Vector3d{505, 405, 605}, 0)
	if err != nil {
		t.Fatal(err)
	}
	last := tile.Index{X: 9, Y: 7, Z: 5, MaxZoom: 3, Axis: tile.ZAxis, Style: tile.Octree}
	if !hood.Contains(last) {
		t.Errorf("focus just past the far corner should select the corner tile, got %v", hood.Sorted())
	}

	if _, err := b.ComputeNeighborhood(lvv.Vector3d{}, 0, -1); err == nil {
		t.Errorf("expected error for negative radius")
	}
	if _, err := (&SphereBuilder{}).Neighborhood(lvv.Vector3d{}, 0); err == nil {
		t.Errorf("expected error without a format")
	}
}

func TestSphereZoom(t *testing.T) {
	f := testFormat(t)
	b := &SphereBuilder{Format: f, RadiusMicrometers: 100, Axis: tile.ZAxis}
	focus := lvv.Vector3d{250, 200, 300}
	prev := -1
	for zoom := 3; zoom >= 0; zoom-- {
		hood, err := b.Neighborhood(focus, float64(zoom))
		if err != nil {
			t.Fatal(err)
		}
		if len(hood) < prev {
			t.Errorf("zoom %d selected %d tiles, fewer than %d at the coarser level", zoom, len(hood), prev)
		}
		prev = len(hood)
	}

	hood, err := b.Neighborhood(focus, 1.6)
	if err != nil {
		t.Fatal(err)
	}
	for idx := range hood {
		if idx.Zoom != 2 {
			t.Fatalf("camera zoom 1.6 should select zoom 2 tiles, got %s", idx)
		}
	}
	hood, err = b.Neighborhood(focus, 10)
	if err != nil {
		t.Fatal(err)
	}
	for idx := range hood {
		if idx.Zoom != 3 {
			t.Fatalf("camera zoom 10 should clamp to zoom 3, got %s", idx)
		}
	}
}

func TestStack(t *testing.T) {
	f := testFormat(t)
	b := &StackBuilder{Format: f, Axis: tile.ZAxis}

	hood, err := b.Neighborhood(lvv.Vector3d{250, 200, 300}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hood) != 27 {
		t.Errorf("interior stack has %d tiles", len(hood))
	}
	focusTile := f.IndexForMicrometer(lvv.Vector3d{250, 200, 300}, 0, tile.ZAxis)
	if !hood.Contains(focusTile) {
		t.Errorf("stack lacks focus tile %s", focusTile)
	}

	corner, err := b.Neighborhood(lvv.Vector3d{0, 0, 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(corner) != 8 {
		t.Errorf("corner stack has %d tiles", len(corner))
	}

	again, err := b.Neighborhood(lvv.Vector3d{251, 201, 301}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !hood.Equal(again) || hood.Equal(corner) {
		t.Errorf("bad neighborhood equality")
	}
	sorted := hood.Sorted()
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].Less(sorted[i]) {
			t.Fatalf("tiles not sorted at %d", i)
		}
	}
}
