package tile

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/lvv/lvv"
	"gonum.org/v1/gonum/mat"
)

// DefaultInverseTolerance is the largest element-wise deviation from identity allowed when
// checking that two transforms are mutual inverses.
const DefaultInverseTolerance = 1e-6

// Transform is an affine 4x4 homogeneous transform applied to column vectors.
type Transform struct {
	m *mat.Dense
}

// NewTransform returns a transform from 16 row-major values.
func NewTransform(rowMajor []float64) (Transform, error) {
	if len(rowMajor) != 16 {
		return Transform{}, fmt.Errorf("%w: transform needs 16 values, got %d", lvv.ErrConfiguration, len(rowMajor))
	}
	data := make([]float64, 16)
	copy(data, rowMajor)
	return Transform{mat.NewDense(4, 4, data)}, nil
}

// ScaleTranslate returns the transform that scales each axis and then adds the translation.
func ScaleTranslate(scale, translate lvv.Vector3d) Transform {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, scale[i])
		m.Set(i, 3, translate[i])
	}
	m.Set(3, 3, 1)
	return Transform{m}
}

// Apply transforms a point.
func (t Transform) Apply(v lvv.Vector3d) lvv.Vector3d {
	in := mat.NewVecDense(4, []float64{v[0], v[1], v[2], 1})
	var out mat.VecDense
	out.MulVec(t.m, in)
	w := out.AtVec(3)
	if w == 0 {
		w = 1
	}
	return lvv.Vector3d{out.AtVec(0) / w, out.AtVec(1) / w, out.AtVec(2) / w}
}

// Inverse returns the inverse transform or an error if the matrix is singular.
func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.m); err != nil {
		return Transform{}, fmt.Errorf("%w: transform is not invertible: %v", lvv.ErrConfiguration, err)
	}
	return Transform{&inv}, nil
}

// IsInverseOf returns true if t * other is the identity within the given tolerance.
func (t Transform) IsInverseOf(other Transform, tolerance float64) bool {
	var prod mat.Dense
	prod.Mul(t.m, other.m)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(prod.At(i, j)-want) > tolerance {
				return false
			}
		}
	}
	return true
}

// RowMajor returns the 16 matrix values in row-major order.
func (t Transform) RowMajor() []float64 {
	out := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		out = append(out, t.m.RawRowView(i)...)
	}
	return out
}

func (t Transform) String() string {
	return fmt.Sprintf("%v", mat.Formatted(t.m, mat.Squeeze()))
}
