package data

import (
	"fmt"
	"math"
	"strconv"
)

// SourceKind names a strategy for supplying complex data.
type SourceKind string

// Source kinds.
const (
	SourceReference  SourceKind = "reference"
	SourceWFSFeature SourceKind = "wfs-feature"
	SourceInlineXML  SourceKind = "inline-xml"
	SourceBase64     SourceKind = "base64"
)

// Source is where the data of a complex input comes from.
type Source interface {
	Kind() SourceKind
}

// ServiceType is the OGC service a reference points at.
type ServiceType string

// Referenced services.
const (
	ServiceWFS ServiceType = "WFS"
	ServiceWMS ServiceType = "WMS"
)

// Extent is a layer extent appended to references as a BBOX parameter.
type Extent struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// BBOX renders the extent as a BBOX parameter value with at most nine decimals.
func (e Extent) BBOX() string {
	return fmt.Sprintf("%s,%s,%s,%s", bboxNumber(e.MinX), bboxNumber(e.MinY), bboxNumber(e.MaxX), bboxNumber(e.MaxY))
}

func bboxNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e9)/1e9, 'f', -1, 64)
}

// ReferenceSource is a layer served by a WFS or WMS, passed to the process by URL.
type ReferenceSource struct {
	Service ServiceType
	URL     string
	Extent  *Extent
}

// Kind implements Source.
func (ReferenceSource) Kind() SourceKind { return SourceReference }

// WFSFeatureSource is a WFS feature type the process fetches as GML 3.
type WFSFeatureSource struct {
	Endpoint      string
	FeaturePrefix string
	FeatureType   string
	SRSName       string
}

// Kind implements Source.
func (WFSFeatureSource) Kind() SourceKind { return SourceWFSFeature }

// Dialect is the XML vocabulary of an inline payload.
type Dialect string

// Inline dialects.
const (
	DialectGML Dialect = "GML"
	DialectKML Dialect = "KML"
)

// InlineXMLSource carries serialized features in the request body.
type InlineXMLSource struct {
	Dialect Dialect
	Payload string
}

// Kind implements Source.
func (InlineXMLSource) Kind() SourceKind { return SourceInlineXML }

// Base64Source carries a zipped shapefile in the request body.
type Base64Source struct {
	Data []byte
}

// Kind implements Source.
func (Base64Source) Kind() SourceKind { return SourceBase64 }
