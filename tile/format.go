package tile

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/lvv/lvv"
)

// FormatConfig holds the dataset metadata from which a Format is built.  It is normally
// read from the dataset descriptor; see LoadDescriptor.
type FormatConfig struct {
	VolumeSize       lvv.Point3d  `yaml:"volume_size"`
	TileSize         lvv.Point3d  `yaml:"tile_size"`
	Origin           lvv.Point3d  `yaml:"origin"`
	VoxelMicrometers lvv.Vector3d `yaml:"voxel_micrometers"`
	ChannelCount     int          `yaml:"channel_count"`
	BitDepth         int          `yaml:"bit_depth"`
	IntensityMin     int          `yaml:"intensity_min"`
	IntensityMax     int          `yaml:"intensity_max"`
	SRGB             bool         `yaml:"srgb"`
	HasXSlices       bool         `yaml:"has_x_slices"`
	HasYSlices       bool         `yaml:"has_y_slices"`
	HasZSlices       bool         `yaml:"has_z_slices"`
	ZoomLevelCount   int          `yaml:"zoom_level_count"`
	Style            IndexStyle   `yaml:"index_style"`

	// Optional row-major 4x4 matrices.  When both are empty they are derived from the
	// voxel size and origin.
	MicronToVoxel []float64 `yaml:"micron_to_voxel,omitempty"`
	VoxelToMicron []float64 `yaml:"voxel_to_micron,omitempty"`
}

// Format is the immutable tile geometry of one dataset.
type Format struct {
	cfg           FormatConfig
	micronToVoxel Transform
	voxelToMicron Transform
}

// NewFormat validates the configuration and returns the geometry.  All failures wrap
// lvv.ErrConfiguration.
func NewFormat(cfg FormatConfig) (*Format, error) {
	for i := 0; i < 3; i++ {
		if cfg.VolumeSize[i] <= 0 {
			return nil, fmt.Errorf("%w: volume size %s must be positive", lvv.ErrConfiguration, cfg.VolumeSize)
		}
		if cfg.TileSize[i] <= 0 {
			return nil, fmt.Errorf("%w: tile size %s must be positive", lvv.ErrConfiguration, cfg.TileSize)
		}
		if !(cfg.VoxelMicrometers[i] > 0) {
			return nil, fmt.Errorf("%w: voxel size %s must be positive", lvv.ErrConfiguration, cfg.VoxelMicrometers)
		}
	}
	if cfg.ZoomLevelCount < 1 {
		return nil, fmt.Errorf("%w: zoom level count %d must be at least 1", lvv.ErrConfiguration, cfg.ZoomLevelCount)
	}
	if cfg.ChannelCount < 1 {
		return nil, fmt.Errorf("%w: channel count %d must be at least 1", lvv.ErrConfiguration, cfg.ChannelCount)
	}
	if cfg.BitDepth != 8 && cfg.BitDepth != 16 {
		return nil, fmt.Errorf("%w: bit depth %d must be 8 or 16", lvv.ErrConfiguration, cfg.BitDepth)
	}
	if cfg.IntensityMin > cfg.IntensityMax {
		return nil, fmt.Errorf("%w: intensity min %d exceeds max %d", lvv.ErrConfiguration, cfg.IntensityMin, cfg.IntensityMax)
	}
	if cfg.Style != Quadtree && cfg.Style != Octree {
		return nil, fmt.Errorf("%w: bad index style %s", lvv.ErrConfiguration, cfg.Style)
	}
	if cfg.Style == Quadtree && !cfg.HasXSlices && !cfg.HasYSlices && !cfg.HasZSlices {
		cfg.HasZSlices = true
	}

	f := &Format{cfg: cfg}
	switch {
	case len(cfg.MicronToVoxel) == 0 && len(cfg.VoxelToMicron) == 0:
		var scale, inv, translate, back lvv.Vector3d
		for i := 0; i < 3; i++ {
			scale[i] = 1.0 / cfg.VoxelMicrometers[i]
			inv[i] = cfg.VoxelMicrometers[i]
			translate[i] = -float64(cfg.Origin[i])
			back[i] = float64(cfg.Origin[i]) * cfg.VoxelMicrometers[i]
		}
		f.micronToVoxel = ScaleTranslate(scale, translate)
		f.voxelToMicron = ScaleTranslate(inv, back)
	case len(cfg.MicronToVoxel) == 0 || len(cfg.VoxelToMicron) == 0:
		return nil, fmt.Errorf("%w: both micron/voxel matrices must be given or neither", lvv.ErrConfiguration)
	default:
		var err error
		if f.micronToVoxel, err = NewTransform(cfg.MicronToVoxel); err != nil {
			return nil, err
		}
		if f.voxelToMicron, err = NewTransform(cfg.VoxelToMicron); err != nil {
			return nil, err
		}
		if !f.micronToVoxel.IsInverseOf(f.voxelToMicron, DefaultInverseTolerance) {
			return nil, fmt.Errorf("%w: micron->voxel and voxel->micron matrices are not inverses", lvv.ErrConfiguration)
		}
	}

	// The coarsest zoom level has to span the volume to within one of its tiles.
	maxZoom := cfg.ZoomLevelCount - 1
	for i := 0; i < 3; i++ {
		if !f.zoomsAxis(i) {
			continue
		}
		coarse := int64(cfg.TileSize[i]) << uint(maxZoom)
		if int64(cfg.VolumeSize[i]) > 2*coarse {
			return nil, fmt.Errorf("%w: %d zoom levels of %d voxel tiles cannot cover volume extent %d along axis %d",
				lvv.ErrConfiguration, cfg.ZoomLevelCount, cfg.TileSize[i], cfg.VolumeSize[i], i)
		}
	}
	return f, nil
}

// zoomsAxis returns true if zoom scales the given axis for at least one tile orientation.
func (f *Format) zoomsAxis(i int) bool {
	if f.cfg.Style == Octree {
		return true
	}
	slices := [3]bool{f.cfg.HasXSlices, f.cfg.HasYSlices, f.cfg.HasZSlices}
	for a := 0; a < 3; a++ {
		if slices[a] && a != i {
			return true
		}
	}
	return false
}

// Config returns a copy of the configuration the format was built from.
func (f *Format) Config() FormatConfig { return f.cfg }

func (f *Format) Style() IndexStyle { return f.cfg.Style }

func (f *Format) VolumeSize() lvv.Point3d { return f.cfg.VolumeSize }

func (f *Format) TileSize() lvv.Point3d { return f.cfg.TileSize }

func (f *Format) VoxelMicrometers() lvv.Vector3d { return f.cfg.VoxelMicrometers }

func (f *Format) ZoomLevelCount() int { return f.cfg.ZoomLevelCount }

func (f *Format) ChannelCount() int { return f.cfg.ChannelCount }

func (f *Format) BytesPerChannel() int { return f.cfg.BitDepth / 8 }

// TileBytes returns the size of the channel data of one tile.
func (f *Format) TileBytes() int64 {
	return f.cfg.TileSize.Prod() * int64(f.cfg.ChannelCount*f.BytesPerChannel())
}

// MinVoxelMicrometers returns the smallest voxel dimension.
func (f *Format) MinVoxelMicrometers() float64 {
	vs := f.cfg.VoxelMicrometers
	return math.Min(vs[0], math.Min(vs[1], vs[2]))
}

// ZoomFactor returns how many full resolution voxels one zoomed voxel spans along axis i
// for tiles sliced along the given orientation.
func (f *Format) ZoomFactor(i int, zoom int, sliceAxis Axis) int64 {
	if f.cfg.Style == Quadtree && Axis(i) == sliceAxis {
		return 1
	}
	return int64(1) << uint(zoom)
}

// MicrometerToVoxel converts a scene point to continuous voxel coordinates.
func (f *Format) MicrometerToVoxel(pt lvv.Vector3d) lvv.Vector3d {
	return f.micronToVoxel.Apply(pt)
}

// VoxelToMicrometer converts continuous voxel coordinates to a scene point.
func (f *Format) VoxelToMicrometer(v lvv.Vector3d) lvv.Vector3d {
	return f.voxelToMicron.Apply(v)
}

// BoundingBoxMicrometers returns the scene space corners of the whole volume.
func (f *Format) BoundingBoxMicrometers() (min, max lvv.Vector3d) {
	a := f.VoxelToMicrometer(lvv.Vector3d{})
	vs := f.cfg.VolumeSize
	b := f.VoxelToMicrometer(lvv.Vector3d{float64(vs[0]), float64(vs[1]), float64(vs[2])})
	for i := 0; i < 3; i++ {
		min[i] = math.Min(a[i], b[i])
		max[i] = math.Max(a[i], b[i])
	}
	return
}

// TileRange returns the number of tiles along each axis at the given zoom level.  Valid
// tile coordinates along axis i are [0, n[i]).
func (f *Format) TileRange(zoom int, sliceAxis Axis) lvv.Point3d {
	var n lvv.Point3d
	for i := 0; i < 3; i++ {
		span := int64(f.cfg.TileSize[i]) * f.ZoomFactor(i, zoom, sliceAxis)
		n[i] = int32(lvv.CeilDiv(int64(f.cfg.VolumeSize[i]), span))
	}
	return n
}

// MaxZoom returns the coarsest zoom level.
func (f *Format) MaxZoom() int { return f.cfg.ZoomLevelCount - 1 }

// ClampZoom restricts a zoom level to the levels present in the dataset.
func (f *Format) ClampZoom(zoom int) int {
	if zoom < 0 {
		return 0
	}
	if zoom > f.MaxZoom() {
		return f.MaxZoom()
	}
	return zoom
}

// IndexForMicrometer returns the address of the tile containing the scene point.  The
// result is not clipped; use Valid to check it.
func (f *Format) IndexForMicrometer(pt lvv.Vector3d, zoom int, sliceAxis Axis) Index {
	voxel := f.MicrometerToVoxel(pt)
	var coord [3]int32
	for i := 0; i < 3; i++ {
		span := float64(int64(f.cfg.TileSize[i]) * f.ZoomFactor(i, zoom, sliceAxis))
		coord[i] = int32(math.Floor(voxel[i] / span))
	}
	return Index{
		X: coord[0], Y: coord[1], Z: coord[2],
		Zoom:    zoom,
		MaxZoom: f.MaxZoom(),
		Axis:    sliceAxis,
		Style:   f.cfg.Style,
	}
}

// Valid returns true if the index addresses a tile within the volume.
func (f *Format) Valid(idx Index) bool {
	if idx.Zoom < 0 || idx.Zoom > f.MaxZoom() || idx.Style != f.cfg.Style {
		return false
	}
	n := f.TileRange(idx.Zoom, idx.Axis)
	c := [3]int32{idx.X, idx.Y, idx.Z}
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= n[i] {
			return false
		}
	}
	return true
}

// VoxelBounds returns the inclusive full resolution voxel extents covered by a valid tile,
// clipped to the volume.
func (f *Format) VoxelBounds(idx Index) lvv.Extents3d {
	c := [3]int32{idx.X, idx.Y, idx.Z}
	var ext lvv.Extents3d
	for i := 0; i < 3; i++ {
		span := int64(f.cfg.TileSize[i]) * f.ZoomFactor(i, idx.Zoom, idx.Axis)
		lo := int64(c[i]) * span
		hi := lo + span - 1
		if last := int64(f.cfg.VolumeSize[i]) - 1; hi > last {
			hi = last
		}
		if hi < lo {
			hi = lo
		}
		ext.MinPoint[i] = int32(lo)
		ext.MaxPoint[i] = int32(hi)
	}
	return ext
}

// CenterMicrometers returns the scene space center of a tile.
func (f *Format) CenterMicrometers(idx Index) lvv.Vector3d {
	ext := f.VoxelBounds(idx)
	var center lvv.Vector3d
	for i := 0; i < 3; i++ {
		center[i] = 0.5 * float64(int64(ext.MinPoint[i])+int64(ext.MaxPoint[i])+1)
	}
	return f.VoxelToMicrometer(center)
}

// ZoomLevelForCameraZoom picks the zoom level whose voxels best match the screen pixel
// size, given the number of screen pixels per scene unit (micrometer).
func (f *Format) ZoomLevelForCameraZoom(pixelsPerSceneUnit float64) int {
	if !(pixelsPerSceneUnit > 0) {
		return f.MaxZoom()
	}
	voxelsPerPixel := 1.0 / (pixelsPerSceneUnit * f.MinVoxelMicrometers())
	switch {
	case math.IsInf(voxelsPerPixel, 1):
		return f.MaxZoom()
	case !(voxelsPerPixel > 0):
		return 0
	}
	return f.ClampZoom(int(math.Log2(voxelsPerPixel) + 0.5))
}

func (f *Format) String() string {
	return fmt.Sprintf("%s volume %s, tiles %s, %d zoom levels, %d channels x %d bits",
		f.cfg.Style, f.cfg.VolumeSize, f.cfg.TileSize, f.cfg.ZoomLevelCount, f.cfg.ChannelCount, f.cfg.BitDepth)
}
