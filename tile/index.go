package tile

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// IndexStyle is the tiling scheme of a dataset.
type IndexStyle uint8

const (
	// Quadtree tiles are 2d slabs; zoom never scales the slice axis.
	Quadtree IndexStyle = iota

	// Octree tiles are 3d blocks; zoom scales all three axes.
	Octree
)

func (s IndexStyle) String() string {
	switch s {
	case Quadtree:
		return "quadtree"
	case Octree:
		return "octree"
	default:
		return fmt.Sprintf("style(%d)", uint8(s))
	}
}

// UnmarshalText lets descriptors spell the style by name.
func (s *IndexStyle) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "quadtree":
		*s = Quadtree
	case "octree":
		*s = Octree
	default:
		return fmt.Errorf("unknown index style %q", string(text))
	}
	return nil
}

func (s IndexStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Axis is a coordinate axis, used as the slice orientation of a tile.
type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

func (a Axis) String() string {
	switch a {
	case XAxis:
		return "x"
	case YAxis:
		return "y"
	case ZAxis:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", uint8(a))
	}
}

// UnmarshalText parses "x", "y", or "z".
func (a *Axis) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "x":
		*a = XAxis
	case "y":
		*a = YAxis
	case "z":
		*a = ZAxis
	default:
		return fmt.Errorf("unknown axis %q", string(text))
	}
	return nil
}

// Index is the identity of one tile.  It is a comparable value type with no references so it
// can be used directly as a map key, and all fields take part in equality.
type Index struct {
	X, Y, Z int32
	Zoom    int
	MaxZoom int
	Axis    Axis
	Style   IndexStyle
}

// Less imposes a total order: style, axis, zoom, max zoom, then z, y, x.
func (i Index) Less(j Index) bool {
	switch {
	case i.Style != j.Style:
		return i.Style < j.Style
	case i.Axis != j.Axis:
		return i.Axis < j.Axis
	case i.Zoom != j.Zoom:
		return i.Zoom < j.Zoom
	case i.MaxZoom != j.MaxZoom:
		return i.MaxZoom < j.MaxZoom
	case i.Z != j.Z:
		return i.Z < j.Z
	case i.Y != j.Y:
		return i.Y < j.Y
	default:
		return i.X < j.X
	}
}

func (i Index) String() string {
	return fmt.Sprintf("%s[%d,%d,%d] zoom %d/%d axis %s", i.Style, i.X, i.Y, i.Z, i.Zoom, i.MaxZoom, i.Axis)
}

// RelativePath returns the location of the tile's files relative to the dataset root.
// Octree tiles use one octant digit (1-8) per level below the coarsest zoom, so the
// coarsest tile lives at the root.  Quadtree tiles use zoom/axis/slice/row/column.
func (i Index) RelativePath() string {
	if i.Style == Octree {
		return i.OctreePath()
	}
	var slice, row, col int32
	switch i.Axis {
	case XAxis:
		slice, row, col = i.X, i.Z, i.Y
	case YAxis:
		slice, row, col = i.Y, i.Z, i.X
	default:
		slice, row, col = i.Z, i.Y, i.X
	}
	return path.Join(strconv.Itoa(i.Zoom), i.Axis.String(),
		strconv.Itoa(int(slice)), strconv.Itoa(int(row)), strconv.Itoa(int(col)))
}

// OctreePath returns the octant digit path of an octree tile.
func (i Index) OctreePath() string {
	depth := i.MaxZoom - i.Zoom
	if depth <= 0 {
		return "."
	}
	parts := make([]string, depth)
	for level := 0; level < depth; level++ {
		bit := uint(depth - 1 - level)
		octant := 1 + (i.X>>bit)&1 + 2*((i.Y>>bit)&1) + 4*((i.Z>>bit)&1)
		parts[level] = strconv.Itoa(int(octant))
	}
	return path.Join(parts...)
}

func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
