package maskchan

import (
	"fmt"

	"github.com/janelia-flyem/lvv/lvv"
)

// CropFilter forwards only voxels inside at least one crop box to the wrapped acceptor.
// Boxes are inclusive voxel extents.  Dropped voxels report zero voxels written without
// error.  Filters may be nested.
type CropFilter struct {
	wrapped Acceptor
	boxes   []lvv.Extents3d
}

// NewCropFilter wraps an acceptor.  With no boxes, every voxel is dropped.
func NewCropFilter(wrapped Acceptor, boxes ...lvv.Extents3d) *CropFilter {
	return &CropFilter{wrapped: wrapped, boxes: boxes}
}

func (f *CropFilter) inside(x, y, z int64) bool {
	for _, box := range f.boxes {
		if box.Contains(x, y, z) {
			return true
		}
	}
	return false
}

func (f *CropFilter) AddMaskData(maskID int, pos, x, y, z int64) (int, error) {
	if !f.inside(x, y, z) {
		return 0, nil
	}
	n, err := f.wrapped.AddMaskData(maskID, pos, x, y, z)
	if err == nil && n == 0 && !filters(f.wrapped) {
		err = fmt.Errorf("%w: cropped acceptor wrote no mask voxel at (%d,%d,%d)", lvv.ErrContract, x, y, z)
	}
	return n, err
}

func (f *CropFilter) AddChannelData(maskID int, channel []byte, pos, x, y, z int64, meta ChannelMetaData) (int, error) {
	if !f.inside(x, y, z) {
		return 0, nil
	}
	n, err := f.wrapped.AddChannelData(maskID, channel, pos, x, y, z, meta)
	if err == nil && n == 0 && !filters(f.wrapped) {
		err = fmt.Errorf("%w: cropped acceptor wrote no channel voxel at (%d,%d,%d)", lvv.ErrContract, x, y, z)
	}
	return n, err
}

func (f *CropFilter) SetSpaceSize(sx, sy, sz, px, py, pz int64, coverage [3]float32) error {
	return f.wrapped.SetSpaceSize(sx, sy, sz, px, py, pz, coverage)
}

func (f *CropFilter) SetChannelMetaData(meta ChannelMetaData) error {
	return f.wrapped.SetChannelMetaData(meta)
}

func (f *CropFilter) AcceptableInputs() Acceptable { return f.wrapped.AcceptableInputs() }

func (f *CropFilter) EndData() error { return f.wrapped.EndData() }

func (f *CropFilter) FiltersVoxels() bool { return true }
