package lvv

import "errors"

// Error kinds.  Per-tile failures wrap ErrDecode and are isolated to that tile; the others
// abort whatever operation triggered them.
var (
	// ErrConfiguration marks malformed or inconsistent tile geometry or settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrDecode marks a truncated or malformed mask/channel stream.
	ErrDecode = errors.New("decode error")

	// ErrResource marks an unreachable dataset location.
	ErrResource = errors.New("resource error")

	// ErrContract marks a programming defect, e.g., a sink that accepted a voxel but
	// reported writing none.
	ErrContract = errors.New("contract violation")
)
