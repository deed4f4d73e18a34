package tile

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/janelia-flyem/lvv/lvv"

	. "github.com/janelia-flyem/go/gocheck"
)

func Test(t *testing.T) { TestingT(t) }

type TileSuite struct{}

var _ = Suite(&TileSuite{})

func octreeConfig() FormatConfig {
	return FormatConfig{
		VolumeSize:       lvv.Point3d{1000, 800, 300},
		TileSize:         lvv.Point3d{100, 100, 50},
		VoxelMicrometers: lvv.Vector3d{0.5, 0.5, 2.0},
		ChannelCount:     2,
		BitDepth:         16,
		IntensityMax:     4095,
		ZoomLevelCount:   4,
		Style:            Octree,
	}
}

func quadtreeConfig() FormatConfig {
	cfg := octreeConfig()
	cfg.TileSize = lvv.Point3d{100, 100, 1}
	cfg.Style = Quadtree
	cfg.HasZSlices = true
	return cfg
}

func (s *TileSuite) TestBadFormats(c *C) {
	mods := []func(*FormatConfig){
		func(cfg *FormatConfig) { cfg.VoxelMicrometers[1] = 0 },
		func(cfg *FormatConfig) { cfg.VolumeSize[2] = -3 },
		func(cfg *FormatConfig) { cfg.TileSize[0] = 0 },
		func(cfg *FormatConfig) { cfg.ZoomLevelCount = 0 },
		func(cfg *FormatConfig) { cfg.ZoomLevelCount = 1 },
		func(cfg *FormatConfig) { cfg.BitDepth = 12 },
		func(cfg *FormatConfig) { cfg.ChannelCount = 0 },
		func(cfg *FormatConfig) { cfg.IntensityMin = 5000 },
		func(cfg *FormatConfig) { cfg.MicronToVoxel = []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1} },
		func(cfg *FormatConfig) {
			cfg.MicronToVoxel = []float64{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1}
			cfg.VoxelToMicron = []float64{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1}
		},
	}
	for i, mod := range mods {
		cfg := octreeConfig()
		mod(&cfg)
		_, err := NewFormat(cfg)
		c.Assert(err, NotNil, Commentf("config %d should fail", i))
		c.Assert(errors.Is(err, lvv.ErrConfiguration), Equals, true)
	}
}

func (s *TileSuite) TestTransforms(c *C) {
	f, err := NewFormat(octreeConfig())
	c.Assert(err, IsNil)
	c.Assert(f.MicrometerToVoxel(lvv.Vector3d{1, 1, 4}), Equals, lvv.Vector3d{2, 2, 2})
	c.Assert(f.VoxelToMicrometer(lvv.Vector3d{2, 2, 2}), Equals, lvv.Vector3d{1, 1, 4})

	cfg := octreeConfig()
	cfg.MicronToVoxel = []float64{2, 0, 0, -10, 0, 2, 0, -10, 0, 0, 0.5, -10, 0, 0, 0, 1}
	cfg.VoxelToMicron = []float64{0.5, 0, 0, 5, 0, 0.5, 0, 5, 0, 0, 2, 20, 0, 0, 0, 1}
	f, err = NewFormat(cfg)
	c.Assert(err, IsNil)
	c.Assert(f.MicrometerToVoxel(lvv.Vector3d{10, 20, 40}), Equals, lvv.Vector3d{10, 30, 10})
	c.Assert(f.VoxelToMicrometer(lvv.Vector3d{10, 30, 10}), Equals, lvv.Vector3d{10, 20, 40})

	t, err := NewTransform(cfg.MicronToVoxel)
	c.Assert(err, IsNil)
	inv, err := t.Inverse()
	c.Assert(err, IsNil)
	c.Assert(inv.IsInverseOf(t, DefaultInverseTolerance), Equals, true)
	_, err = NewTransform([]float64{1, 2, 3})
	c.Assert(err, NotNil)
}

func (s *TileSuite) TestOctreeGeometry(c *C) {
	f, err := NewFormat(octreeConfig())
	c.Assert(err, IsNil)
	c.Assert(f.MaxZoom(), Equals, 3)
	c.Assert(f.TileBytes(), Equals, int64(100*100*50*2*2))

	pt := lvv.Vector3d{60, 60, 120} // voxel (120, 120, 60)
	idx := f.IndexForMicrometer(pt, 0, ZAxis)
	c.Assert(idx, Equals, Index{X: 1, Y: 1, Z: 1, Zoom: 0, MaxZoom: 3, Axis: ZAxis, Style: Octree})
	idx = f.IndexForMicrometer(pt, 1, ZAxis)
	c.Assert([3]int32{idx.X, idx.Y, idx.Z}, Equals, [3]int32{0, 0, 0})

	c.Assert(f.TileRange(0, ZAxis), Equals, lvv.Point3d{10, 8, 6})
	c.Assert(f.TileRange(3, ZAxis), Equals, lvv.Point3d{2, 1, 1})

	last := Index{X: 9, Y: 7, Z: 5, MaxZoom: 3, Style: Octree, Axis: ZAxis}
	c.Assert(f.Valid(last), Equals, true)
	c.Assert(f.VoxelBounds(last), Equals, lvv.Extents3d{
		MinPoint: lvv.Point3d{900, 700, 250},
		MaxPoint: lvv.Point3d{999, 799, 299},
	})
	outside := last
	outside.X = 10
	c.Assert(f.Valid(outside), Equals, false)

	// Coarsest tiles are clipped to the volume.
	coarse := Index{X: 1, Zoom: 3, MaxZoom: 3, Style: Octree, Axis: ZAxis}
	c.Assert(f.VoxelBounds(coarse), Equals, lvv.Extents3d{
		MinPoint: lvv.Point3d{800, 0, 0},
		MaxPoint: lvv.Point3d{999, 799, 299},
	})

	first := Index{MaxZoom: 3, Style: Octree, Axis: ZAxis}
	c.Assert(f.CenterMicrometers(first), Equals, lvv.Vector3d{25, 25, 50})

	min, max := f.BoundingBoxMicrometers()
	c.Assert(min, Equals, lvv.Vector3d{0, 0, 0})
	c.Assert(max, Equals, lvv.Vector3d{500, 400, 600})
}

func (s *TileSuite) TestQuadtreeGeometry(c *C) {
	f, err := NewFormat(quadtreeConfig())
	c.Assert(err, IsNil)
	c.Assert(f.TileRange(2, ZAxis), Equals, lvv.Point3d{3, 2, 300})
	idx := f.IndexForMicrometer(lvv.Vector3d{60, 60, 120}, 2, ZAxis)
	c.Assert(idx, Equals, Index{X: 0, Y: 0, Z: 60, Zoom: 2, MaxZoom: 3, Axis: ZAxis, Style: Quadtree})
	c.Assert(f.VoxelBounds(idx), Equals, lvv.Extents3d{
		MinPoint: lvv.Point3d{0, 0, 60},
		MaxPoint: lvv.Point3d{399, 399, 60},
	})
}

func (s *TileSuite) TestCameraZoom(c *C) {
	f, err := NewFormat(octreeConfig())
	c.Assert(err, IsNil)
	tests := []struct {
		pixelsPerMicron float64
		zoom            int
	}{
		{2, 0},
		{100, 0},
		{0.5, 2},
		{0.25, 3},
		{0.01, 3},
		{0, 3},
		{math.SmallestNonzeroFloat64, 3},
		{math.Inf(1), 0},
		{math.NaN(), 3},
	}
	for _, tc := range tests {
		c.Assert(f.ZoomLevelForCameraZoom(tc.pixelsPerMicron), Equals, tc.zoom, Commentf("pixels per micron %g", tc.pixelsPerMicron))
	}
}

func (s *TileSuite) TestIndexKeys(c *C) {
	a := Index{X: 5, Y: 2, Z: 7, Zoom: 0, MaxZoom: 3, Style: Octree}
	b := a
	set := map[Index]struct{}{a: {}, b: {}}
	c.Assert(set, HasLen, 1)
	b.Axis = XAxis
	set[b] = struct{}{}
	c.Assert(set, HasLen, 2)

	c.Assert(a.Less(a), Equals, false)
	d := a
	d.X++
	c.Assert(a.Less(d), Equals, true)
	c.Assert(d.Less(a), Equals, false)
	d = a
	d.Zoom = 1
	d.X = 0
	c.Assert(a.Less(d), Equals, true)

	c.Assert(a.OctreePath(), Equals, "6/7/6")
	c.Assert(a.RelativePath(), Equals, "6/7/6")
	top := Index{Zoom: 3, MaxZoom: 3, Style: Octree}
	c.Assert(top.RelativePath(), Equals, ".")

	q := Index{X: 1, Y: 2, Z: 60, Zoom: 2, MaxZoom: 3, Axis: ZAxis, Style: Quadtree}
	c.Assert(q.RelativePath(), Equals, "2/z/60/2/1")
}

const testDescriptor = `format_version: 1.2.0
volume_size: [1000, 800, 300]
tile_size: [100, 100, 50]
origin: [0, 0, 0]
voxel_micrometers: [0.5, 0.5, 2.0]
channel_count: 2
bit_depth: 16
intensity_max: 4095
zoom_level_count: 4
index_style: octree
`

func (s *TileSuite) TestDescriptor(c *C) {
	d, err := LoadDescriptor(strings.NewReader(testDescriptor))
	c.Assert(err, IsNil)
	c.Assert(d.Format.VolumeSize, Equals, lvv.Point3d{1000, 800, 300})
	c.Assert(d.Format.Style, Equals, Octree)
	f, err := NewFormat(d.Format)
	c.Assert(err, IsNil)
	c.Assert(f.ChannelCount(), Equals, 2)

	var buf bytes.Buffer
	c.Assert(WriteDescriptor(&buf, quadtreeConfig()), IsNil)
	f, err = NewFormatFromDescriptor(&buf)
	c.Assert(err, IsNil)
	c.Assert(f.Style(), Equals, Quadtree)
	c.Assert(f.TileSize(), Equals, lvv.Point3d{100, 100, 1})

	_, err = LoadDescriptor(strings.NewReader(strings.Replace(testDescriptor, "1.2.0", "2.0.0", 1)))
	c.Assert(errors.Is(err, lvv.ErrConfiguration), Equals, true)
	_, err = LoadDescriptor(strings.NewReader(testDescriptor + "bogus: 1\n"))
	c.Assert(err, NotNil)
	_, err = LoadDescriptor(strings.NewReader(strings.Replace(testDescriptor, "octree", "hextree", 1)))
	c.Assert(err, NotNil)
}
