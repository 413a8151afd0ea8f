// Package format models WPS complex-data formats (MIME type, schema, encoding)
// and derives which families of data a list of formats can carry.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// Well-known MIME types, encodings and schemas.
const (
	MimeTextXML         = "text/xml"
	MimeZippedShapefile = "application/x-zipped-shp"

	EncodingUTF8   = "UTF-8"
	EncodingBase64 = "Base64"

	GML2SchemaPrefix  = "http://schemas.opengis.net/gml/2"
	GML3SchemaPrefix  = "http://schemas.opengis.net/gml/3"
	GML311FeatureXSD  = "http://schemas.opengis.net/gml/3.1.1/base/feature.xsd"
	KML22SchemaOGC    = "http://schemas.opengis.net/kml/2.2.0/ogckml22.xsd"
	gmlPacketFileName = "gmlpacket.xsd"
	featureFileName   = "feature.xsd"
)

var rasterMimeTypes = map[string]struct{}{
	"image/jpeg":     {},
	"image/gif":      {},
	"image/png":      {},
	"image/png8":     {},
	"image/tiff":     {},
	"image/tiff8":    {},
	"image/geotiff":  {},
	"image/geotiff8": {},
	"image/svg":      {},
}

// Format describes one representation a complex input or output accepts.
// Schema and Encoding are empty when the description omits them.
type Format struct {
	MimeType string `json:"mimeType"`
	Schema   string `json:"schema,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Parse reads a Format element. The MIME type is looked up in the OWS namespace
// first and in the WPS namespace second; the second lookup raises a warning.
func Parse(n *ows.Node) (Format, ows.Warnings, error) {
	var warnings ows.Warnings

	mime := n.FirstChild(ows.OWS("MimeType"))
	if mime == nil {
		mime = n.FirstChild(ows.WPS("MimeType"))
		if mime == nil {
			return Format{}, warnings, ows.MissingElement("Format", ows.OWS("MimeType"))
		}
		warnings.Add(ows.WarnWrongNamespace, "Format/MimeType",
			"MIME type should be in the OWS namespace but uses the WPS namespace")
	}
	if !mime.HasText() {
		return Format{}, warnings, fmt.Errorf("%w: MimeType of Format has no text", ows.ErrElementMissing)
	}

	f := Format{MimeType: mime.Text()}
	if enc, ok := n.ChildText(ows.WPS("Encoding")); ok {
		f.Encoding = enc
	}
	if schema, ok := n.ChildText(ows.WPS("Schema")); ok {
		f.Schema = schema
	}
	return f, warnings, nil
}

// IsXML reports whether the format carries XML (vector) data.
func (f Format) IsXML() bool {
	return strings.EqualFold(f.MimeType, MimeTextXML)
}

// IsRaster reports whether the format is one of the supported raster image types.
func (f Format) IsRaster() bool {
	_, ok := rasterMimeTypes[strings.ToLower(f.MimeType)]
	return ok
}

// IsZippedShapefileBase64 reports whether the format is a base64 zipped shapefile.
func (f Format) IsZippedShapefileBase64() bool {
	return strings.EqualFold(f.MimeType, MimeZippedShapefile) && strings.EqualFold(f.Encoding, EncodingBase64)
}

// IsGML2 reports whether the schema is a GML 2 schema.
func (f Format) IsGML2() bool { return strings.HasPrefix(f.Schema, GML2SchemaPrefix) }

// IsGML3 reports whether the schema is a GML 3 schema.
func (f Format) IsGML3() bool { return strings.HasPrefix(f.Schema, GML3SchemaPrefix) }

// IsGMLFamily reports whether the schema is one of the GML packet or feature schemas.
func (f Format) IsGMLFamily() bool {
	return strings.Contains(f.Schema, gmlPacketFileName) || strings.Contains(f.Schema, featureFileName)
}

func (f Format) String() string {
	parts := []string{f.MimeType}
	if f.Schema != "" {
		parts = append(parts, "schema="+f.Schema)
	}
	if f.Encoding != "" {
		parts = append(parts, "encoding="+f.Encoding)
	}
	return strings.Join(parts, " ")
}

// Tag names a family of data a list of formats can carry. Callers map tags to
// input affordances: a vector-layer picker, an image-layer picker or a file picker.
type Tag string

// Capability tags.
const (
	TagXML                   Tag = "xml"
	TagRaster                Tag = "raster"
	TagZippedShapefileBase64 Tag = "zipped-shapefile-base64"
)

var tagOrder = map[Tag]int{TagXML: 0, TagRaster: 1, TagZippedShapefileBase64: 2}

// List is a ranked list of formats; the first entry is the default.
type List []Format

// Default returns the default format and false if the list is empty.
func (l List) Default() (Format, bool) {
	if len(l) == 0 {
		return Format{}, false
	}
	return l[0], true
}

// Tags derives the capability tags of the list. The result is sorted and free
// of duplicates, so it does not depend on the order or repetition of formats.
func (l List) Tags() []Tag {
	seen := make(map[Tag]struct{}, len(tagOrder))
	for _, f := range l {
		switch {
		case f.IsXML():
			seen[TagXML] = struct{}{}
		case f.IsRaster():
			seen[TagRaster] = struct{}{}
		case f.IsZippedShapefileBase64():
			seen[TagZippedShapefileBase64] = struct{}{}
		}
	}
	tags := make([]Tag, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tagOrder[tags[i]] < tagOrder[tags[j]] })
	return tags
}

// HasTag reports whether the list supports the tag.
func (l List) HasTag(tag Tag) bool {
	for _, t := range l.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

// HasMimeType reports whether any format uses the MIME type.
func (l List) HasMimeType(mime string) bool {
	for _, f := range l {
		if f.MimeType == mime {
			return true
		}
	}
	return false
}

// HasSchema reports whether any format uses the schema.
func (l List) HasSchema(schema string) bool {
	for _, f := range l {
		if f.Schema == schema {
			return true
		}
	}
	return false
}

// HasEncoding reports whether any format uses the encoding.
func (l List) HasEncoding(encoding string) bool {
	for _, f := range l {
		if f.Encoding == encoding {
			return true
		}
	}
	return false
}

// PreferredGML picks the format used to request GML by reference: the first GML 2
// schema wins; without one, the first GML 3 schema is used.
func (l List) PreferredGML() (Format, bool) {
	for _, f := range l {
		if f.IsGML2() {
			return f, true
		}
	}
	for _, f := range l {
		if f.IsGML3() {
			return f, true
		}
	}
	return Format{}, false
}
