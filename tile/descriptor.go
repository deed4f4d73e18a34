package tile

import (
	"fmt"
	"io"

	"github.com/blang/semver"
	"github.com/janelia-flyem/lvv/lvv"
	"gopkg.in/yaml.v3"
)

// DescriptorName is the file name of the dataset descriptor at the root of a dataset.
const DescriptorName = "volume.yaml"

// DescriptorVersion is the descriptor format written by this package.
var DescriptorVersion = semver.MustParse("1.0.0")

var supportedDescriptors = semver.MustParseRange(">=1.0.0 <2.0.0")

// Descriptor is the YAML dataset metadata file.
type Descriptor struct {
	FormatVersion string       `yaml:"format_version"`
	Format        FormatConfig `yaml:",inline"`
}

// LoadDescriptor decodes a dataset descriptor and checks its format version.
func LoadDescriptor(r io.Reader) (*Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: bad dataset descriptor: %v", lvv.ErrConfiguration, err)
	}
	ver, err := semver.Parse(d.FormatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: bad descriptor format_version %q: %v", lvv.ErrConfiguration, d.FormatVersion, err)
	}
	if !supportedDescriptors(ver) {
		return nil, fmt.Errorf("%w: unsupported descriptor format_version %s", lvv.ErrConfiguration, ver)
	}
	return &d, nil
}

// WriteDescriptor encodes the format configuration as a current-version descriptor.
func WriteDescriptor(w io.Writer, cfg FormatConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	d := Descriptor{FormatVersion: DescriptorVersion.String(), Format: cfg}
	if err := enc.Encode(&d); err != nil {
		return err
	}
	return enc.Close()
}

// NewFormatFromDescriptor reads a descriptor and builds its geometry.
func NewFormatFromDescriptor(r io.Reader) (*Format, error) {
	d, err := LoadDescriptor(r)
	if err != nil {
		return nil, err
	}
	return NewFormat(d.Format)
}
