package lvv

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// ConvertToAbsolute converts a path that may be relative to the given base directory into an
// absolute path.  Absolute paths are cleaned and returned unchanged.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path can't be made absolute")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Abs(filepath.Join(baseDir, path))
}

// CeilDiv returns the ceiling of a / b for positive b.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		panic(fmt.Sprintf("CeilDiv by non-positive divisor %d", b))
	}
	return (a + b - 1) / b
}
