package server

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/lvv/cache"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/maskchan"
	"github.com/janelia-flyem/lvv/tile"
)

const (
	// DefaultWebAddress is the default address of the cache inspection server.
	DefaultWebAddress = "localhost:8600"
)

// Config is the parsed TOML configuration of a server.
type Config struct {
	Server  serverConfig
	Logging lvv.LogConfig
	Dataset datasetConfig
	Cache   cacheConfig
	Cors    corsConfig

	// location of the TOML file, if loaded from one.
	path string
}

type serverConfig struct {
	HTTPAddress string `toml:"httpAddress"`
	Note        string
}

type datasetConfig struct {
	// Location is a directory or bucket URL holding volume.yaml and the tile tree.
	Location string
	MaskID   int `toml:"mask_id"`
}

type cacheConfig struct {
	Workers           int
	Prefetch          bool
	Neighborhood      string  // "sphere" or "stack"
	Axis              string  // slice axis of quadtree tiles
	RadiusUm          float64 `toml:"radius_um"`
	RetainEvicted     int     `toml:"retain_evicted"`
	ByteCacheMB       int     `toml:"byte_cache_mb"`
	AxialDivisibility int64   `toml:"axial_divisibility"`
	IntensityDivisor  int     `toml:"intensity_divisor"`
	InvertedY         bool    `toml:"inverted_y"`
	SkipChannels      bool    `toml:"skip_channels"`
	HeaderMicrons     bool    `toml:"header_microns"`
}

type corsConfig struct {
	Domains []string
}

// LoadConfig reads a TOML configuration file.  Relative paths within it are taken
// relative to the file's own directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: no server TOML configuration file provided", lvv.ErrConfiguration)
	}
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("%w: could not decode TOML config %q: %v", lvv.ErrConfiguration, filename, err)
	}
	c.path = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("%w: could not convert relative paths in %q: %v", lvv.ErrConfiguration, filename, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	lvv.Debugf("tomlConfig: %+v\n", c)
	return &c, nil
}

// Some settings can be given as relative paths.  This converts them in-place, assuming
// they are relative to the TOML file's directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = lvv.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [dataset].location unless it is a bucket URL
	if c.Dataset.Location != "" && !strings.Contains(c.Dataset.Location, "://") {
		c.Dataset.Location, err = lvv.ConvertToAbsolute(c.Dataset.Location, configDir)
		if err != nil {
			return fmt.Errorf("error converting dataset location to absolute path")
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.Dataset.Location == "" {
		return fmt.Errorf("%w: no [dataset] location given", lvv.ErrConfiguration)
	}
	if c.Logging.Level != "" {
		if _, err := lvv.ParseLogMode(c.Logging.Level); err != nil {
			return err
		}
	}
	switch c.Cache.Neighborhood {
	case "", "sphere", "stack":
	default:
		return fmt.Errorf("%w: unknown neighborhood %q, expected sphere or stack", lvv.ErrConfiguration, c.Cache.Neighborhood)
	}
	if _, err := c.axis(); err != nil {
		return err
	}
	if c.Cache.Workers < 0 || c.Cache.RetainEvicted < 0 || c.Cache.ByteCacheMB < 0 || c.Cache.AxialDivisibility < 0 || c.Cache.IntensityDivisor < 0 {
		return fmt.Errorf("%w: negative [cache] setting", lvv.ErrConfiguration)
	}
	return nil
}

func (c *Config) axis() (tile.Axis, error) {
	var a tile.Axis
	if c.Cache.Axis == "" {
		return tile.ZAxis, nil
	}
	if err := a.UnmarshalText([]byte(c.Cache.Axis)); err != nil {
		return a, fmt.Errorf("%w: %v", lvv.ErrConfiguration, err)
	}
	return a, nil
}

// HTTPAddress returns the address to listen on.
func (c *Config) HTTPAddress() string {
	if c.Server.HTTPAddress == "" {
		return DefaultWebAddress
	}
	return c.Server.HTTPAddress
}

// Location returns the TOML file the configuration came from.
func (c *Config) Location() string {
	return c.path
}

// CacheConfig translates the [cache] and [dataset] sections into cache settings.
func (c *Config) CacheConfig() cache.Config {
	axis, _ := c.axis()
	return cache.Config{
		Workers:           c.Cache.Workers,
		Prefetch:          c.Cache.Prefetch,
		RadiusMicrometers: c.Cache.RadiusUm,
		Axis:              axis,
		RetainEvicted:     c.Cache.RetainEvicted,
		FileCacheBytes:    c.Cache.ByteCacheMB * lvv.Mega,
		MaskID:            c.Dataset.MaskID,
		Decode:            c.DecodeConfig(),
		SkipChannels:      c.Cache.SkipChannels,
	}
}

// DecodeConfig returns the mask and channel decoding settings.
func (c *Config) DecodeConfig() maskchan.LoaderConfig {
	return maskchan.LoaderConfig{
		AxialDivisibility: c.Cache.AxialDivisibility,
		IntensityDivisor:  c.Cache.IntensityDivisor,
		InvertedY:         c.Cache.InvertedY,
		HeaderMicrons:     c.Cache.HeaderMicrons,
	}
}
