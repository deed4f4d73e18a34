// Command-line interface to tile caches of large volume datasets.
// Provides a cache inspection server and utilities to decode and generate mask/channel data.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/janelia-flyem/lvv/cache"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/maskchan"
	"github.com/janelia-flyem/lvv/server"
	"github.com/janelia-flyem/lvv/tile"
	"golang.org/x/sync/errgroup"
)

// Version is the release of the lvv tools.
const Version = "0.9.0"

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication, overriding the TOML setting.
	httpAddress = flag.String("http", "", "")

	// Number of concurrent tile loads or file decodes.
	workers = flag.Int("workers", 0, "")

	// Neighborhood radius in micrometers for the keys command.
	radius = flag.Float64("radius", cache.DefaultRadius, "")

	// Compression of files written by the generate command.
	compression = flag.String("compress", "zstd", "")

	// Tile edge length in voxels for the generate command.
	tileSize = flag.Int("tilesize", 32, "")

	// Pad decoded spaces to multiples of this value.
	divisibility = flag.Int64("divisibility", maskchan.DefaultAxialDivisibility, "")
)

const helpMessage = `
lvv manages tile caches of large volume datasets stored as mask/channel files

Usage: lvv [options] <command>

      -http         =string   Address for HTTP communication, overriding the TOML file.
      -workers      =number   Number of concurrent tile loads or file decodes.
      -radius       =number   Neighborhood radius in micrometers for the keys command.
      -compress     =string   Compression for generated files: none, zstd, gzip, snappy.
      -tilesize     =number   Tile edge in voxels for generated datasets.
      -divisibility =number   Pad decoded spaces to multiples of this value.
      -verbose      (flag)    Run in verbose mode.
  -h, -help         (flag)    Show help message

Commands:

	about
	help
	serve    <config.toml>
	keys     <dataset location> <x> <y> <z> [zoom]
	decode   <mask file>[,<channel file>] ...
	generate <dataset directory> <volume edge in voxels>
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		lvv.SetLogMode(lvv.DebugMode)
	}

	// Capture ctrl+c and other interrupts and cancel the running command.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command")
	}
	args := cmd[1:]
	switch cmd[0] {
	case "about":
		fmt.Printf("lvv %s (%s, %d logical CPUs)\n", Version, runtime.Version(), runtime.NumCPU())
		return nil
	case "serve":
		return DoServe(ctx, args)
	case "keys":
		return DoKeys(ctx, args)
	case "decode":
		return DoDecode(ctx, args)
	case "generate":
		return DoGenerate(ctx, args)
	default:
		return fmt.Errorf("unknown command %q; try 'lvv help'", cmd[0])
	}
}

// DoServe starts the cache inspection server described by a TOML file.
func DoServe(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("serve requires a TOML configuration file")
	}
	config, err := server.LoadConfig(args[0])
	if err != nil {
		return err
	}
	if err := config.Logging.SetLogger(); err != nil {
		return err
	}
	defer lvv.Shutdown()
	if *runVerbose {
		lvv.SetLogMode(lvv.DebugMode)
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	if *workers > 0 {
		config.Cache.Workers = *workers
	}
	s, err := server.NewService(ctx, config)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// DoKeys prefetches the neighborhood of a focus point and lists the resident tiles.
func DoKeys(ctx context.Context, args []string) error {
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("keys requires a dataset location, x, y, z and an optional zoom")
	}
	var coords [4]float64
	for i, arg := range args[1:] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("bad coordinate %q: %v", arg, err)
		}
		coords[i] = v
	}
	c, err := cache.Open(ctx, args[0], cache.Config{
		Workers:           *workers,
		Prefetch:          true,
		RadiusMicrometers: *radius,
		Decode:            maskchan.LoaderConfig{AxialDivisibility: *divisibility},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	timedLog := lvv.NewTimeLog()
	c.SetCameraZoom(coords[3])
	c.SetFocus(coords[0], coords[1], coords[2])
	for {
		st := c.Stats()
		if st.Loading == 0 && st.Queued == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	timedLog.Infof("Loaded neighborhood of %d tiles", len(c.Neighborhood()))

	for _, idx := range c.DumpKeys() {
		fmt.Printf("%s\t%s\n", idx, idx.RelativePath())
	}
	st := c.Stats()
	fmt.Printf("%d resident (%s), %d loads, %d failures\n", st.Resident, st.ResidentSize, st.Loads, st.Failures)
	return nil
}

// DoDecode decodes mask files, each optionally paired with a channel file, and reports
// what they contain.
func DoDecode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("decode requires at least one mask file")
	}
	reports := make([]string, len(args))
	g, ctx := errgroup.WithContext(ctx)
	limit := *workers
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := decodeFiles(arg)
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			reports[i] = report
			return nil
		})
	}
	err := g.Wait()
	for _, report := range reports {
		if report != "" {
			fmt.Print(report)
		}
	}
	return err
}

func decodeFiles(arg string) (string, error) {
	files := strings.SplitN(arg, ",", 2)
	maskData, err := readMaybeCompressed(files[0])
	if err != nil {
		return "", err
	}
	var channel io.Reader
	if len(files) == 2 {
		chanData, err := readMaybeCompressed(files[1])
		if err != nil {
			return "", err
		}
		channel = bytes.NewReader(chanData)
	}

	masks := maskchan.NewMaskBuilder()
	acceptors := []maskchan.Acceptor{masks}
	if channel != nil {
		acceptors = append(acceptors, maskchan.NewChannelBuilder())
	}
	loader := maskchan.NewLoader(1, maskchan.LoaderConfig{AxialDivisibility: *divisibility}, acceptors...)
	if err := loader.Read(bytes.NewReader(maskData), channel); err != nil {
		return "", err
	}

	var b strings.Builder
	h := loader.Header()
	fmt.Fprintf(&b, "%s: %d x %d x %d voxels, axis %d, %d in mask\n", files[0], h.Sx, h.Sy, h.Sz, h.Axis, h.TotalVoxels)
	if bounds, ok := masks.Bounds(); ok {
		fmt.Fprintf(&b, "  bounds %s, padded to %v (coverage %v)\n", bounds, loader.PaddedSize(), loader.Coverage())
	}
	if channel != nil {
		meta := loader.ChannelMetaData()
		fmt.Fprintf(&b, "  %d channels of %d bytes, averages %v\n", meta.ChannelCount, meta.BytesPerChannel, loader.ChannelAverages())
	}
	return b.String(), nil
}

// readMaybeCompressed reads a file, decompressing it according to its suffix.
func readMaybeCompressed(filename string) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	for _, c := range cache.Compressions {
		if c != cache.Uncompressed && strings.HasSuffix(filename, string(c)) {
			return c.Decode(data)
		}
	}
	return data, nil
}

// DoGenerate writes a synthetic octree dataset holding a sphere centered in a cube volume.
// Every tile intersecting the sphere gets a mask file and a one channel intensity file.
func DoGenerate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("generate requires a dataset directory and a volume edge length")
	}
	dir := args[0]
	edge, err := strconv.Atoi(args[1])
	if err != nil || edge <= 0 {
		return fmt.Errorf("bad volume edge %q", args[1])
	}
	comp := cache.Uncompressed
	if *compression != "none" {
		if comp, err = cache.ParseCompression(*compression); err != nil {
			return err
		}
	}
	te := int32(*tileSize)
	zoomLevels := 1
	for int64(te)<<uint(zoomLevels-1) < int64(edge) {
		zoomLevels++
	}
	cfg := tile.FormatConfig{
		VolumeSize:       lvv.Point3d{int32(edge), int32(edge), int32(edge)},
		TileSize:         lvv.Point3d{te, te, te},
		VoxelMicrometers: lvv.Vector3d{1, 1, 1},
		ChannelCount:     1,
		BitDepth:         8,
		IntensityMax:     255,
		ZoomLevelCount:   zoomLevels,
		Style:            tile.Octree,
	}
	format, err := tile.NewFormat(cfg)
	if err != nil {
		return err
	}
	var descriptor bytes.Buffer
	if err := tile.WriteDescriptor(&descriptor, cfg); err != nil {
		return err
	}
	if err := cache.WriteFile(ctx, dir, tile.DescriptorName, descriptor.Bytes()); err != nil {
		return err
	}

	timedLog := lvv.NewTimeLog()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var numTiles int
	for zoom := 0; zoom <= format.MaxZoom(); zoom++ {
		n := format.TileRange(zoom, tile.ZAxis)
		for z := int32(0); z < n[2]; z++ {
			for y := int32(0); y < n[1]; y++ {
				for x := int32(0); x < n[0]; x++ {
					idx := tile.Index{X: x, Y: y, Z: z, Zoom: zoom, MaxZoom: format.MaxZoom(), Axis: tile.ZAxis, Style: tile.Octree}
					numTiles++
					g.Go(func() error {
						return writeSphereTile(ctx, dir, format, idx, comp)
					})
				}
			}
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	timedLog.Infof("Generated %d tiles over %d zoom levels in %s", numTiles, zoomLevels, dir)
	return nil
}

func writeSphereTile(ctx context.Context, dir string, format *tile.Format, idx tile.Index, comp cache.Compression) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edge := float64(format.VolumeSize()[0])
	center, r := edge/2, edge/3
	bounds := format.VoxelBounds(idx)
	factor := float64(format.ZoomFactor(0, idx.Zoom, idx.Axis))
	ts := format.TileSize()

	var intensities []byte
	inside := func(x, y, z int64) bool {
		p := [3]int64{x, y, z}
		var d2 float64
		for i := 0; i < 3; i++ {
			g := float64(bounds.MinPoint[i]) + (float64(p[i])+0.5)*factor - center
			d2 += g * g
		}
		if d2 > r*r {
			return false
		}
		// Voxels are visited in delivery order, so channel values line up with mask voxels.
		intensities = append(intensities, byte(255-int(200*d2/(r*r))))
		return true
	}
	h, records := maskchan.RunsFor(int64(ts[0]), int64(ts[1]), int64(ts[2]), maskchan.AxisX, inside)
	if h.TotalVoxels == 0 {
		return nil
	}

	var mask, channel bytes.Buffer
	var w maskchan.Writer
	if err := w.WriteMask(&mask, h, records); err != nil {
		return err
	}
	ch := maskchan.ChannelHeader{TotalVoxels: h.TotalVoxels, Channels: 1, BytesPerChannel: 1}
	if err := w.WriteChannels(&channel, ch, [][]byte{intensities}); err != nil {
		return err
	}
	for file, data := range map[string][]byte{cache.MaskFile: mask.Bytes(), cache.ChannelFile: channel.Bytes()} {
		encoded, err := comp.Encode(data)
		if err != nil {
			return err
		}
		key := path.Join(idx.RelativePath(), file+string(comp))
		if err := cache.WriteFile(ctx, dir, key, encoded); err != nil {
			return err
		}
	}
	lvv.Debugf("Wrote tile %s (%d voxels)\n", idx, h.TotalVoxels)
	return nil
}
