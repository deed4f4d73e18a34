package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/maskchan"
	"github.com/janelia-flyem/lvv/tile"
)

// File names within a tile's directory.  Either may also be stored compressed.
const (
	MaskFile    = "mask.bin"
	ChannelFile = "channel.bin"
)

// Tile is the decoded content of one tile.  It is read-only once returned by a loader.
type Tile struct {
	Index       tile.Index
	Masks       *maskchan.MaskBuilder
	Colors      *maskchan.ChannelBuilder
	StoredBytes int
	Voxels      int64
	LoadedAt    time.Time
}

// TileLoader materializes one tile.  Implementations must be safe for concurrent use
// across different tiles.
type TileLoader interface {
	LoadTile(ctx context.Context, idx tile.Index) (*Tile, error)
}

// MaskChanTileLoader reads the mask file, and channel file when present, from a tile's
// directory and decodes them into fresh builders.
type MaskChanTileLoader struct {
	Source *Source

	// MaskID tags every voxel of a tile.
	MaskID int

	// Decode adjusts the decoder, e.g. padding and intensity scaling.
	Decode maskchan.LoaderConfig

	// Crop restricts decoding to these voxel boxes when non-empty.
	Crop []lvv.Extents3d

	// SkipChannels ignores channel files and builds masks only.
	SkipChannels bool

	// PartitionSize, if positive, stores tile volumes as cubes of this edge length.
	PartitionSize int32
}

func (l *MaskChanTileLoader) LoadTile(ctx context.Context, idx tile.Index) (*Tile, error) {
	dir := idx.RelativePath()
	maskData, stored, err := Resolve(ctx, l.Source, path.Join(dir, MaskFile))
	if err != nil {
		return nil, err
	}
	var channel io.Reader
	if !l.SkipChannels {
		chanData, n, err := Resolve(ctx, l.Source, path.Join(dir, ChannelFile))
		switch {
		case err == nil:
			channel = bytes.NewReader(chanData)
			stored += n
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	t := &Tile{Index: idx, StoredBytes: stored, Masks: maskchan.NewMaskBuilder()}
	t.Masks.PartitionSize = l.PartitionSize
	acceptors := []maskchan.Acceptor{t.Masks}
	if !l.SkipChannels {
		t.Colors = maskchan.NewChannelBuilder()
		t.Colors.PartitionSize = l.PartitionSize
		acceptors = append(acceptors, t.Colors)
	}
	if len(l.Crop) > 0 {
		for i, a := range acceptors {
			acceptors[i] = maskchan.NewCropFilter(a, l.Crop...)
		}
	}
	loader := maskchan.NewLoader(l.MaskID, l.Decode, acceptors...)
	if err := loader.Read(bytes.NewReader(maskData), channel); err != nil {
		return nil, fmt.Errorf("tile %s: %w", idx, err)
	}
	t.Voxels = loader.VoxelsRead()
	t.LoadedAt = time.Now()
	return t, nil
}
