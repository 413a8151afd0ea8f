package data

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// Point is a two-dimensional coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned box in a coordinate reference system.
// An empty CRS means the descriptor's default CRS.
type BoundingBox struct {
	CRS   string `json:"crs,omitempty"`
	Lower Point  `json:"lower"`
	Upper Point  `json:"upper"`
}

// Reprojector transforms a bounding box into another CRS.
type Reprojector interface {
	Reproject(box BoundingBox, targetCRS string) (BoundingBox, error)
}

// BoundingBoxDescriptor describes a bounding box input or output. The first
// supported CRS is the default.
type BoundingBoxDescriptor struct {
	SupportedCRS []string
}

func (*BoundingBoxDescriptor) isKind() {}

// Type implements Kind.
func (*BoundingBoxDescriptor) Type() KindType { return KindBoundingBox }

// Describe implements Kind.
func (d *BoundingBoxDescriptor) Describe() Description {
	return Description{Kind: KindBoundingBox, SupportedCRS: d.SupportedCRS}
}

// DefaultCRS returns the default CRS or "" when none was declared.
func (d *BoundingBoxDescriptor) DefaultCRS() string {
	if len(d.SupportedCRS) == 0 {
		return ""
	}
	return d.SupportedCRS[0]
}

// Supports reports whether crs is among the supported reference systems.
func (d *BoundingBoxDescriptor) Supports(crs string) bool {
	for _, c := range d.SupportedCRS {
		if c == crs {
			return true
		}
	}
	return false
}

// ParseBoundingBox reads a BoundingBoxData or BoundingBoxOutput element.
func ParseBoundingBox(n *ows.Node) (*BoundingBoxDescriptor, ows.Warnings, error) {
	var warnings ows.Warnings
	d := &BoundingBoxDescriptor{}

	def := firstChildOf(n, ows.WPS("Default"), ows.OWS("Default"))
	if def == nil {
		return nil, warnings, ows.MissingElement("BoundingBoxData", ows.WPS("Default"))
	}
	crs := firstChildOf(def, ows.WPS("CRS"), ows.OWS("CRS"))
	if crs == nil {
		return nil, warnings, ows.MissingElement("BoundingBoxData/Default", ows.WPS("CRS"))
	}
	defaultCRS := crsValue(crs)
	if defaultCRS == "" {
		return nil, warnings, fmt.Errorf("%w: default CRS of BoundingBoxData is empty", ows.ErrElementMissing)
	}
	d.SupportedCRS = append(d.SupportedCRS, defaultCRS)

	if sup := firstChildOf(n, ows.WPS("Supported"), ows.OWS("Supported")); sup != nil {
		entries := sup.Child(ows.WPS("CRS"))
		if len(entries) == 0 {
			entries = sup.Child(ows.OWS("CRS"))
		}
		for _, e := range entries {
			v := crsValue(e)
			if v == "" {
				warnings.Add(ows.WarnEmptyValue, "BoundingBoxData/Supported/CRS", "supported CRS is empty")
				continue
			}
			if d.Supports(v) {
				continue
			}
			d.SupportedCRS = append(d.SupportedCRS, v)
		}
	}
	return d, warnings, nil
}

func crsValue(n *ows.Node) string {
	if v, ok := n.FirstAttr("href", "xlink:href"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return n.Text()
}

// Encode renders the wps:Data element carrying the bounding box. A box in an
// unsupported CRS is reprojected once into the default CRS.
func (d *BoundingBoxDescriptor) Encode(v Value, r Reprojector) (string, error) {
	var box BoundingBox
	switch val := v.(type) {
	case BoundingBoxValue:
		if val.Box == nil {
			return "", ErrNoBoundingBox
		}
		box = *val.Box
	case nil:
		return "", ErrNoBoundingBox
	default:
		return "", fmt.Errorf("%w: %T for a bounding box input", ErrValueKind, v)
	}

	crs := box.CRS
	switch {
	case crs == "":
		crs = d.DefaultCRS()
	case !d.Supports(crs):
		if r == nil {
			return "", fmt.Errorf("%w: %s is not supported", ErrReprojectionUnavailable, crs)
		}
		target := d.DefaultCRS()
		projected, err := r.Reproject(box, target)
		if err != nil {
			return "", fmt.Errorf("reproject bounding box from %s to %s: %w", crs, target, err)
		}
		box, crs = projected, target
	}

	var b strings.Builder
	b.WriteString("<wps:Data><wps:BoundingBoxData")
	if crs != "" {
		fmt.Fprintf(&b, ` crs="%s"`, ows.EscapeAttr(crs))
	}
	b.WriteString(` dimensions="2">`)
	fmt.Fprintf(&b, "<ows:LowerCorner>%s %s</ows:LowerCorner>", formatCoord(box.Lower.X), formatCoord(box.Lower.Y))
	fmt.Fprintf(&b, "<ows:UpperCorner>%s %s</ows:UpperCorner>", formatCoord(box.Upper.X), formatCoord(box.Upper.Y))
	b.WriteString("</wps:BoundingBoxData></wps:Data>")
	return b.String(), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseCorner reads a "x y" corner as written in ows:LowerCorner and ows:UpperCorner.
func ParseCorner(s string) (Point, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Point{}, fmt.Errorf("corner %q needs two coordinates", s)
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, fmt.Errorf("corner %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("corner %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}
