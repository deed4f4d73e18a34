package maskchan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/janelia-flyem/lvv/lvv"
)

// DefaultAxialDivisibility is the multiple each padded axis is rounded up to.
const DefaultAxialDivisibility = 64

// maxChannelBytes bounds the size of one channel's array in a channel file.
const maxChannelBytes = 1<<31 - 1

// LoaderConfig adjusts how a Loader decodes.
type LoaderConfig struct {
	// AxialDivisibility pads each axis of the target space up to a multiple of this value.
	// Zero means DefaultAxialDivisibility; 1 disables padding.
	AxialDivisibility int64

	// IntensityDivisor divides every channel value.  Zero means 1.
	IntensityDivisor int

	// InvertedY flips y so that y' = sy - y - 1.
	InvertedY bool

	// When NumSegments > 1, only voxels whose linear position lies in the Segment-th of
	// NumSegments equal ranges of the padded space are delivered.
	Segment     int
	NumSegments int

	// HeaderMicrons is set for mask files that carry three float32 voxel sizes after the
	// extents.
	HeaderMicrons bool
}

// Loader decodes one mask file, and optionally its channel file, into acceptors.  A Loader
// is used for one decode session at a time.
type Loader struct {
	cfg              LoaderConfig
	maskID           int
	acceptors        []Acceptor
	maskAcceptors    []Acceptor
	channelAcceptors []Acceptor

	header     MaskHeader
	padded     [3]int64
	coverage   [3]float32
	meta       ChannelMetaData
	averages   []float64
	voxelsRead int64
	delivered  int64
}

// NewLoader returns a loader that files every decoded voxel under maskID.
func NewLoader(maskID int, cfg LoaderConfig, acceptors ...Acceptor) *Loader {
	if cfg.AxialDivisibility <= 0 {
		cfg.AxialDivisibility = DefaultAxialDivisibility
	}
	if cfg.IntensityDivisor <= 0 {
		cfg.IntensityDivisor = 1
	}
	l := &Loader{cfg: cfg, maskID: maskID, acceptors: acceptors}
	for _, a := range acceptors {
		inputs := a.AcceptableInputs()
		if inputs.Mask() {
			l.maskAcceptors = append(l.maskAcceptors, a)
		}
		if inputs.Channel() {
			l.channelAcceptors = append(l.channelAcceptors, a)
		}
	}
	return l
}

// Header returns the mask header of the last decode.
func (l *Loader) Header() MaskHeader { return l.header }

// PaddedSize returns the padded extents of the last decode.
func (l *Loader) PaddedSize() [3]int64 { return l.padded }

// Coverage returns the fraction of each padded axis holding declared voxels.
func (l *Loader) Coverage() [3]float32 { return l.coverage }

// ChannelMetaData returns the channel description of the last decode.
func (l *Loader) ChannelMetaData() ChannelMetaData { return l.meta }

// ChannelAverages returns, per channel, the mean intensity normalized to [0, 1].  It is nil
// when no channel data was read.
func (l *Loader) ChannelAverages() []float64 { return l.averages }

// VoxelsRead returns the number of voxels decoded by the last Read.
func (l *Loader) VoxelsRead() int64 { return l.voxelsRead }

// VoxelsDelivered returns the number of voxels within the selected segment.
func (l *Loader) VoxelsDelivered() int64 { return l.delivered }

// VoxelCount reads only the header of a mask stream and returns its declared voxel count.
func (l *Loader) VoxelCount(mask io.Reader) (int64, error) {
	h, err := readMaskHeader(&stream{r: mask}, l.cfg.HeaderMicrons)
	if err != nil {
		return 0, err
	}
	return h.TotalVoxels, nil
}

// PadExtents rounds each extent up to a multiple of divisibility and returns the padded
// extents and the fraction of each covered by the unpadded size.
func PadExtents(size [3]int64, divisibility int64) ([3]int64, [3]float32) {
	padded := size
	coverage := [3]float32{1, 1, 1}
	if divisibility <= 1 {
		return padded, coverage
	}
	for i := range padded {
		if leftover := size[i] % divisibility; leftover > 0 {
			padded[i] = size[i] + divisibility - leftover
			coverage[i] = float32(size[i]) / float32(padded[i])
		}
	}
	return padded, coverage
}

// Read decodes the mask stream, and the channel stream when non-nil, into the acceptors.
// Without a channel stream, channel acceptors receive a constant mid-intensity color.
func (l *Loader) Read(mask io.Reader, channel io.Reader) error {
	timedLog := lvv.NewTimeLog()
	l.voxelsRead, l.delivered, l.averages = 0, 0, nil

	ms := &stream{r: bufio.NewReader(mask)}
	h, err := readMaskHeader(ms, l.cfg.HeaderMicrons)
	if err != nil {
		return err
	}
	l.header = h
	lvv.Debugf("Mask %d: %d x %d x %d volume, %d voxels along axis %d\n", l.maskID, h.Sx, h.Sy, h.Sz, h.TotalVoxels, h.Axis)

	l.padded, l.coverage = PadExtents([3]int64{h.Sx, h.Sy, h.Sz}, l.cfg.AxialDivisibility)
	px, py, pz := l.padded[0], l.padded[1], l.padded[2]
	if px > math.MaxInt32 || py > math.MaxInt32 || pz > math.MaxInt32 || px > math.MaxInt64/py/pz {
		return fmt.Errorf("%w: padded mask volume %d x %d x %d is too large", lvv.ErrDecode, px, py, pz)
	}
	segLo, segHi := int64(0), px*py*pz
	if l.cfg.NumSegments > 1 {
		if l.cfg.Segment < 0 || l.cfg.Segment >= l.cfg.NumSegments {
			return fmt.Errorf("%w: segment %d of %d", lvv.ErrConfiguration, l.cfg.Segment, l.cfg.NumSegments)
		}
		segSize := lvv.CeilDiv(segHi, int64(l.cfg.NumSegments))
		segLo = int64(l.cfg.Segment) * segSize
		if segLo+segSize < segHi {
			segHi = segLo + segSize
		}
	}

	for _, a := range l.acceptors {
		if err := a.SetSpaceSize(h.Sx, h.Sy, h.Sz, px, py, pz, l.coverage); err != nil {
			return err
		}
	}

	var channels [][]byte
	var voxelBytes []byte
	if channel == nil {
		l.meta = ChannelMetaData{
			RawChannelCount: 3,
			ChannelCount:    4,
			RedIndex:        0,
			GreenIndex:      1,
			BlueIndex:       2,
			BytesPerChannel: 1,
		}
		voxelBytes = []byte{127, 127, 127, 0}
	} else {
		if channels, err = l.readChannels(channel); err != nil {
			return err
		}
		voxelBytes = make([]byte, l.meta.VoxelBytes())
	}
	for _, a := range l.channelAcceptors {
		if err := a.SetChannelMetaData(l.meta); err != nil {
			return err
		}
	}

	fastest, second, slowest := rayGeometry(h.Axis, h.Sx, h.Sy, h.Sz)
	numRays := second * slowest
	maxPairs := (fastest + 1) / 2
	var ray int64
	for l.voxelsRead < h.TotalVoxels {
		rec, err := readRecord(ms, maxPairs)
		if err != nil {
			return err
		}
		n := rec.Voxels()
		if n <= 0 {
			return fmt.Errorf("%w: record after ray %d adds no voxels", lvv.ErrDecode, ray)
		}
		if l.voxelsRead+n > h.TotalVoxels {
			return fmt.Errorf("%w: runs exceed the declared %d voxels", lvv.ErrDecode, h.TotalVoxels)
		}
		ray += rec.Skip
		if ray >= numRays {
			return fmt.Errorf("%w: ray %d beyond the %d rays of the volume", lvv.ErrDecode, ray, numRays)
		}
		line, slice := ray%second, ray/second
		for _, pair := range rec.Pairs {
			if pair[0] < 0 || pair[1] < pair[0] || pair[1] > fastest {
				return fmt.Errorf("%w: run [%d, %d) outside ray of length %d", lvv.ErrDecode, pair[0], pair[1], fastest)
			}
			for pos := pair[0]; pos < pair[1]; pos++ {
				x, y, z := place(h.Axis, pos, line, slice)
				if l.cfg.InvertedY {
					y = h.Sy - y - 1
				}
				linear := z*px*py + y*px + x
				if linear >= segLo && linear < segHi {
					if err := l.deliver(linear, x, y, z, channels, voxelBytes); err != nil {
						return err
					}
					l.delivered++
				}
				l.voxelsRead++
			}
		}
		ray++
	}

	for _, a := range l.acceptors {
		if err := a.EndData(); err != nil {
			return err
		}
	}
	timedLog.Debugf("Decoded mask %d: %d voxels, %d delivered", l.maskID, l.voxelsRead, l.delivered)
	return nil
}

func (l *Loader) deliver(linear, x, y, z int64, channels [][]byte, voxelBytes []byte) error {
	for _, a := range l.maskAcceptors {
		n, err := a.AddMaskData(l.maskID, linear, x, y, z)
		if err != nil {
			return fmt.Errorf("mask %d voxel (%d,%d,%d): %w", l.maskID, x, y, z, err)
		}
		if n == 0 && !filters(a) {
			return fmt.Errorf("%w: acceptor wrote no mask voxel at (%d,%d,%d)", lvv.ErrContract, x, y, z)
		}
	}
	if len(l.channelAcceptors) == 0 {
		return nil
	}
	if channels != nil {
		l.fillVoxel(voxelBytes, channels, l.voxelsRead)
	}
	for _, a := range l.channelAcceptors {
		n, err := a.AddChannelData(l.maskID, voxelBytes, linear, x, y, z, l.meta)
		if err != nil {
			return fmt.Errorf("mask %d channel voxel (%d,%d,%d): %w", l.maskID, x, y, z, err)
		}
		if n == 0 && !filters(a) {
			return fmt.Errorf("%w: acceptor wrote no channel voxel at (%d,%d,%d)", lvv.ErrContract, x, y, z)
		}
	}
	return nil
}

// fillVoxel gathers the channel values of one voxel, in stream order, into dst.
func (l *Loader) fillVoxel(dst []byte, channels [][]byte, voxel int64) {
	bpc := int64(l.meta.BytesPerChannel)
	div := l.cfg.IntensityDivisor
	for i, ch := range channels {
		src := ch[voxel*bpc : voxel*bpc+bpc]
		if bpc == 1 {
			dst[i] = byte(int(src[0]) / div)
			continue
		}
		v := int(binary.LittleEndian.Uint16(src)) / div
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
	}
}

// readChannels reads the channel header and, if any acceptor wants channel data, every
// channel array.
func (l *Loader) readChannels(channel io.Reader) ([][]byte, error) {
	cs := &stream{r: bufio.NewReader(channel)}
	ch, err := readChannelHeader(cs)
	if err != nil {
		return nil, err
	}
	if ch.TotalVoxels != l.header.TotalVoxels {
		return nil, fmt.Errorf("%w: mask declares %d voxels but channel file has %d",
			lvv.ErrDecode, l.header.TotalVoxels, ch.TotalVoxels)
	}
	l.meta = ch.MetaData()
	if len(l.channelAcceptors) == 0 {
		return nil, nil
	}
	size := ch.TotalVoxels * int64(ch.BytesPerChannel)
	if size > maxChannelBytes {
		return nil, fmt.Errorf("%w: channel arrays of %d bytes are too large", lvv.ErrDecode, size)
	}
	channels := make([][]byte, ch.Channels)
	for i := range channels {
		channels[i] = make([]byte, size)
		if err := cs.read(channels[i], fmt.Sprintf("channel %d", i)); err != nil {
			return nil, err
		}
	}
	l.averages = averages(channels, l.meta)
	return channels, nil
}

func averages(channels [][]byte, meta ChannelMetaData) []float64 {
	avg := make([]float64, len(channels))
	maxValue := float64(meta.MaxValue())
	for i, ch := range channels {
		var sum float64
		var count int
		if meta.BytesPerChannel == 1 {
			for _, b := range ch {
				sum += float64(b)
			}
			count = len(ch)
		} else {
			for off := 0; off+1 < len(ch); off += 2 {
				sum += float64(binary.LittleEndian.Uint16(ch[off:]))
			}
			count = len(ch) / 2
		}
		if count > 0 {
			avg[i] = sum / float64(count) / maxValue
		}
	}
	return avg
}
