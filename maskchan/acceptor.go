// Package maskchan decodes the sparse mask/channel file pair used to ship segmented
// objects and feeds the decoded voxels to acceptors.
//
// A mask file lists, for one object, runs of voxels along a traversal axis.  The optional
// channel file holds per-voxel intensities for the same voxels in the order the runs visit
// them.  Decoding is a push model: the Loader walks the runs and calls every Acceptor that
// declared interest in mask data, channel data, or both.
package maskchan

import "fmt"

// Acceptable declares which inputs an Acceptor wants.
type Acceptable uint8

const (
	AcceptMask Acceptable = iota
	AcceptChannel
	AcceptBoth
)

func (a Acceptable) String() string {
	switch a {
	case AcceptMask:
		return "mask"
	case AcceptChannel:
		return "channel"
	case AcceptBoth:
		return "mask+channel"
	default:
		return fmt.Sprintf("acceptable(%d)", uint8(a))
	}
}

// Mask returns true if mask data should be delivered.
func (a Acceptable) Mask() bool { return a == AcceptMask || a == AcceptBoth }

// Channel returns true if channel data should be delivered.
func (a Acceptable) Channel() bool { return a == AcceptChannel || a == AcceptBoth }

// ChannelMetaData describes the per-voxel channel bytes handed to AddChannelData.  Channel i
// of a voxel occupies bytes [i*BytesPerChannel, (i+1)*BytesPerChannel), little-endian.
type ChannelMetaData struct {
	RawChannelCount int
	ChannelCount    int
	RedIndex        int
	GreenIndex      int
	BlueIndex       int
	BytesPerChannel int
}

// VoxelBytes returns the number of channel bytes per voxel.
func (m ChannelMetaData) VoxelBytes() int { return m.ChannelCount * m.BytesPerChannel }

// MaxValue returns the largest intensity a channel can hold.
func (m ChannelMetaData) MaxValue() int {
	return 1<<(8*uint(m.BytesPerChannel)) - 1
}

// Acceptor receives decoded voxels.  SetSpaceSize is called before any voxel data.  Calls
// within one decode session are sequential; concurrent sessions need separate acceptors.
type Acceptor interface {
	// AddMaskData records that the voxel at linear position pos within the padded space
	// belongs to the given mask.  It returns the number of voxels written, which must be 1.
	AddMaskData(maskID int, pos, x, y, z int64) (int, error)

	// AddChannelData records channel bytes for one voxel.  The channel slice is reused
	// between calls.
	AddChannelData(maskID int, channel []byte, pos, x, y, z int64, meta ChannelMetaData) (int, error)

	// SetSpaceSize gives the declared extents, the padded extents used for linear
	// positions, and the fraction of each padded axis that holds real data.
	SetSpaceSize(sx, sy, sz, px, py, pz int64, coverage [3]float32) error

	// SetChannelMetaData describes the channel data before any is delivered.
	SetChannelMetaData(meta ChannelMetaData) error

	AcceptableInputs() Acceptable

	// EndData is called after the last voxel of a session.
	EndData() error
}

// Filter is implemented by acceptors that may legitimately report zero voxels written,
// such as those discarding voxels outside a region of interest.
type Filter interface {
	Acceptor
	FiltersVoxels() bool
}

func filters(a Acceptor) bool {
	f, ok := a.(Filter)
	return ok && f.FiltersVoxels()
}
