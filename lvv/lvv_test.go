package lvv

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

func Test(t *testing.T) { TestingT(t) }

type CoreSuite struct{}

var _ = Suite(&CoreSuite{})

func (s *CoreSuite) TestPoint3d(c *C) {
	a := Point3d{10, 21, 837821}
	b := Point3d{78312, -200, 40123}
	c.Assert(a.Add(b), Equals, Point3d{78322, -179, 877944})
	c.Assert(a.Sub(b), Equals, Point3d{-78302, 221, 797698})
	c.Assert(a.AddScalar(10), Equals, Point3d{20, 31, 837831})
	c.Assert(a.String(), Equals, "(10,21,837821)")

	min := a
	min.SetMinimum(b)
	c.Assert(min, Equals, Point3d{10, -200, 40123})
	max := a
	max.SetMaximum(b)
	c.Assert(max, Equals, Point3d{78312, 21, 837821})

	c.Assert(Point3d{2, 3, 4}.Prod(), Equals, int64(24))

	p, err := StringToPoint3d("1, 2,3", ",")
	c.Assert(err, IsNil)
	c.Assert(p, Equals, Point3d{1, 2, 3})
	_, err = StringToPoint3d("1,2", ",")
	c.Assert(err, NotNil)
}

func (s *CoreSuite) TestVector3d(c *C) {
	v, err := StringToVector3d("1.5,2,3", ",")
	c.Assert(err, IsNil)
	c.Assert(v, Equals, Vector3d{1.5, 2, 3})
	c.Assert(Vector3d{0, 0, 0}.Distance(Vector3d{3, 4, 0}), Equals, 5.0)
	c.Assert(v.Add(Vector3d{1, 1, 1}).Subtract(Vector3d{1, 1, 1}), Equals, v)
	c.Assert(Vector3d{2, 4, 6}.DivideScalar(2), Equals, Vector3d{1, 2, 3})
}

func (s *CoreSuite) TestExtents(c *C) {
	ext := NewExtents3d(Point3d{10, 0, 5}, Point3d{0, 10, 0})
	c.Assert(ext.MinPoint, Equals, Point3d{0, 0, 0})
	c.Assert(ext.MaxPoint, Equals, Point3d{10, 10, 5})
	c.Assert(ext.Size(), Equals, Point3d{11, 11, 6})
	c.Assert(ext.Contains(0, 0, 0), Equals, true)
	c.Assert(ext.Contains(10, 10, 5), Equals, true)
	c.Assert(ext.Contains(11, 10, 5), Equals, false)
	c.Assert(ext.Contains(5, -1, 2), Equals, false)

	unit := Vector3d{1, 1, 1}
	c.Assert(ext.SquaredDistance(Vector3d{5, 5, 3}, unit), Equals, 0.0)
	c.Assert(ext.SquaredDistance(Vector3d{14, 5, 3}, unit), Equals, 9.0)
	c.Assert(ext.SquaredDistance(Vector3d{14, 5, 3}, Vector3d{2, 1, 1}), Equals, 36.0)
}

func (s *CoreSuite) TestErrorKinds(c *C) {
	err := fmt.Errorf("%w: truncated stream", ErrDecode)
	c.Assert(errors.Is(err, ErrDecode), Equals, true)
	c.Assert(errors.Is(err, ErrResource), Equals, false)
}

func (s *CoreSuite) TestConvertToAbsolute(c *C) {
	abs, err := ConvertToAbsolute("logs/lvv.log", "/etc/lvv")
	c.Assert(err, IsNil)
	c.Assert(abs, Equals, filepath.Join("/etc/lvv", "logs/lvv.log"))
	abs, err = ConvertToAbsolute("/var/log/../log/lvv.log", "/etc/lvv")
	c.Assert(err, IsNil)
	c.Assert(abs, Equals, "/var/log/lvv.log")
	_, err = ConvertToAbsolute("", "/etc")
	c.Assert(err, NotNil)
	c.Assert(CeilDiv(10, 3), Equals, int64(4))
	c.Assert(CeilDiv(9, 3), Equals, int64(3))
}

func (s *CoreSuite) TestLogMode(c *C) {
	m, err := ParseLogMode(" Warning")
	c.Assert(err, IsNil)
	c.Assert(m, Equals, WarningMode)
	c.Assert(m.String(), Equals, "warning")
	_, err = ParseLogMode("chatty")
	c.Assert(errors.Is(err, ErrConfiguration), Equals, true)

	saved := LogMode()
	defer SetLogMode(saved)
	cfg := &LogConfig{Level: "error"}
	c.Assert(cfg.SetLogger(), IsNil)
	c.Assert(LogMode(), Equals, ErrorMode)
	c.Assert((&LogConfig{Level: "loud"}).SetLogger(), NotNil)
	c.Assert(LogMode(), Equals, ErrorMode)
}
