// Package reproject converts bounding boxes between the EPSG coordinate
// reference systems known to github.com/wroge/wgs84: geographic WGS 84,
// Web Mercator, the UTM zones and a set of national grids.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"

	"github.com/piwi3910/wpsgate/internal/wps/data"
)

// ErrUnsupportedCRS is returned for reference systems the reprojector cannot handle.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

const (
	epsgWGS84       = 4326
	epsgWebMercator = 3857

	// Web Mercator is undefined at the poles.
	maxMercatorLatitude = 85.0511287798066
)

// aliases maps codes the EPSG registry does not carry to their equivalent.
var aliases = map[int]int{
	84:     epsgWGS84,
	3785:   epsgWebMercator,
	102100: epsgWebMercator,
	900913: epsgWebMercator,
}

// Code normalizes a CRS identifier such as "EPSG:4326",
// "urn:ogc:def:crs:EPSG::3857" or "http://www.opengis.net/gml/srs/epsg.xml#4326"
// to its EPSG code. It does not check that the code is supported.
func Code(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	if i := strings.LastIndexAny(s, ":#/"); i >= 0 {
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, crs)
	}
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	return code, nil
}

// Reprojector reprojects bounding boxes corner by corner.
type Reprojector struct {
	epsg *wgs84.Repository
}

var _ data.Reprojector = (*Reprojector)(nil)

// New returns a Reprojector over the EPSG codes of github.com/wroge/wgs84.
func New() *Reprojector {
	return &Reprojector{epsg: wgs84.EPSG()}
}

// Supports reports whether crs names a reference system the reprojector knows.
func (r *Reprojector) Supports(crs string) bool {
	_, err := r.system(crs)
	return err == nil
}

// Reproject implements data.Reprojector. A corner outside the area of use of
// either reference system is an error.
func (r *Reprojector) Reproject(box data.BoundingBox, target string) (data.BoundingBox, error) {
	from, err := r.system(box.CRS)
	if err != nil {
		return data.BoundingBox{}, err
	}
	to, err := r.system(target)
	if err != nil {
		return data.BoundingBox{}, err
	}

	out := data.BoundingBox{CRS: target}
	if from.code == to.code {
		out.Lower, out.Upper = box.Lower, box.Upper
		return out, nil
	}

	if out.Lower, err = transform(from, to, box.Lower); err != nil {
		return data.BoundingBox{}, fmt.Errorf("lower corner: %w", err)
	}
	if out.Upper, err = transform(from, to, box.Upper); err != nil {
		return data.BoundingBox{}, fmt.Errorf("upper corner: %w", err)
	}
	return out, nil
}

type system struct {
	code int
	crs  wgs84.CoordinateReferenceSystem
}

func (r *Reprojector) system(crs string) (system, error) {
	code, err := Code(crs)
	if err != nil {
		return system{}, err
	}
	c := r.epsg.Code(code)
	if c == nil {
		return system{}, fmt.Errorf("%w: %q", ErrUnsupportedCRS, crs)
	}
	return system{code: code, crs: c}, nil
}

// transform goes through geographic WGS 84 so latitudes can be clamped
// before they reach Web Mercator.
func transform(from, to system, p data.Point) (data.Point, error) {
	geographic := wgs84.LonLat()
	lon, lat := p.X, p.Y
	if from.code != epsgWGS84 {
		lon, lat, _ = wgs84.Transform(from.crs, geographic)(p.X, p.Y, 0)
	}
	if to.code == epsgWebMercator {
		lat = math.Max(-maxMercatorLatitude, math.Min(maxMercatorLatitude, lat))
	}
	x, y, _, err := wgs84.SafeTransform(geographic, to.crs)(lon, lat, 0)
	if err != nil {
		return data.Point{}, fmt.Errorf("(%g %g) to EPSG:%d: %w", p.X, p.Y, to.code, err)
	}
	return data.Point{X: x, Y: y}, nil
}
