package lvv

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point3d is an ordered list of three 32-bit signed integers that implements a 3d point
// in voxel or tile space.
type Point3d [3]int32

// SetMinimum sets the point to the minimum elements of current and passed points.
func (p *Point3d) SetMinimum(p2 Point3d) {
	for i := 0; i < 3; i++ {
		if p[i] > p2[i] {
			p[i] = p2[i]
		}
	}
}

// SetMaximum sets the point to the maximum elements of current and passed points.
func (p *Point3d) SetMaximum(p2 Point3d) {
	for i := 0; i < 3; i++ {
		if p[i] < p2[i] {
			p[i] = p2[i]
		}
	}
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// AddScalar adds a scalar value to this point.
func (p Point3d) AddScalar(value int32) Point3d {
	return Point3d{p[0] + value, p[1] + value, p[2] + value}
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// StringToPoint3d parses a string of format "%d<sep>%d<sep>%d".
func StringToPoint3d(str, separator string) (Point3d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return Point3d{}, fmt.Errorf("can't convert string %q (length %d) to Point3d", str, len(elems))
	}
	var p Point3d
	for i, elem := range elems {
		v, err := strconv.ParseInt(strings.TrimSpace(elem), 10, 32)
		if err != nil {
			return Point3d{}, err
		}
		p[i] = int32(v)
	}
	return p, nil
}

// Vector3d is a 3D vector of 64-bit floats, a recommended type for math operations.
type Vector3d [3]float64

func StringToVector3d(str, separator string) (Vector3d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return Vector3d{}, fmt.Errorf("can't convert string %q (length %d) to Vector3d", str, len(elems))
	}
	var v Vector3d
	var err error
	for i, elem := range elems {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(elem), 64)
		if err != nil {
			return Vector3d{}, err
		}
	}
	return v, nil
}

// Distance returns the distance between two points a and b.
func (v Vector3d) Distance(x Vector3d) float64 {
	dx := x[0] - v[0]
	dy := x[1] - v[1]
	dz := x[2] - v[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vector3d) Subtract(x Vector3d) Vector3d {
	return Vector3d{v[0] - x[0], v[1] - x[1], v[2] - x[2]}
}

func (v Vector3d) Add(x Vector3d) Vector3d {
	return Vector3d{v[0] + x[0], v[1] + x[1], v[2] + x[2]}
}

func (v Vector3d) DivideScalar(x float64) Vector3d {
	return Vector3d{v[0] / x, v[1] / x, v[2] / x}
}

func (v Vector3d) String() string {
	return fmt.Sprintf("(%f,%f,%f)", v[0], v[1], v[2])
}

// Extents3d is an axis-aligned box with inclusive corners.
type Extents3d struct {
	MinPoint Point3d
	MaxPoint Point3d
}

// NewExtents3d returns extents spanning the two corners given in any order.
func NewExtents3d(a, b Point3d) Extents3d {
	ext := Extents3d{MinPoint: a, MaxPoint: a}
	ext.MinPoint.SetMinimum(b)
	ext.MaxPoint.SetMaximum(b)
	return ext
}

// Contains returns true if the given coordinate is within the inclusive extents.
func (ext Extents3d) Contains(x, y, z int64) bool {
	return x >= int64(ext.MinPoint[0]) && x <= int64(ext.MaxPoint[0]) &&
		y >= int64(ext.MinPoint[1]) && y <= int64(ext.MaxPoint[1]) &&
		z >= int64(ext.MinPoint[2]) && z <= int64(ext.MaxPoint[2])
}

// Size returns the number of voxels along each dimension.
func (ext Extents3d) Size() Point3d {
	return ext.MaxPoint.Sub(ext.MinPoint).AddScalar(1)
}

// SquaredDistance returns the squared Euclidean distance from the point to the closest
// point within the extents, where each voxel coordinate is scaled by the given factors.
// Points within the extents return 0.
func (ext Extents3d) SquaredDistance(pt Vector3d, scale Vector3d) float64 {
	var dist2 float64
	for i := 0; i < 3; i++ {
		lo := float64(ext.MinPoint[i])
		hi := float64(ext.MaxPoint[i]) + 1
		var d float64
		switch {
		case pt[i] < lo:
			d = lo - pt[i]
		case pt[i] > hi:
			d = pt[i] - hi
		}
		d *= scale[i]
		dist2 += d * d
	}
	return dist2
}

func (ext Extents3d) String() string {
	return fmt.Sprintf("%s -> %s", ext.MinPoint, ext.MaxPoint)
}
