package data

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// ComplexDescriptor describes a complex input or output. The first format is the default.
type ComplexDescriptor struct {
	Formats          format.List
	MaximumMegabytes float64
}

func (*ComplexDescriptor) isKind() {}

// Type implements Kind.
func (*ComplexDescriptor) Type() KindType { return KindComplex }

// Describe implements Kind.
func (d *ComplexDescriptor) Describe() Description {
	return Description{
		Kind:             KindComplex,
		Formats:          d.Formats,
		MaximumMegabytes: d.MaximumMegabytes,
		Tags:             d.Formats.Tags(),
	}
}

// Tags returns the capability tags of the supported formats.
func (d *ComplexDescriptor) Tags() []format.Tag { return d.Formats.Tags() }

// ParseComplex reads a ComplexData or ComplexOutput element.
func ParseComplex(n *ows.Node) (*ComplexDescriptor, ows.Warnings, error) {
	var warnings ows.Warnings
	d := &ComplexDescriptor{}

	if v, ok := n.Attr("maximumMegabytes"); ok {
		mb, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			warnings.Add(ows.WarnInvalidValue, "ComplexData", "maximumMegabytes %q is not a number", v)
		} else {
			d.MaximumMegabytes = mb
		}
	}

	def := firstChildOf(n, ows.WPS("Default"), ows.OWS("Default"))
	if def == nil {
		return nil, warnings, ows.MissingElement("ComplexData", ows.WPS("Default"))
	}
	df := firstChildOf(def, ows.WPS("Format"), ows.OWS("Format"))
	if df == nil {
		return nil, warnings, ows.MissingElement("ComplexData/Default", ows.WPS("Format"))
	}
	f, ws, err := format.Parse(df)
	warnings.Merge("Default", ws)
	if err != nil {
		return nil, warnings, err
	}
	d.Formats = append(d.Formats, f)

	if sup := firstChildOf(n, ows.WPS("Supported"), ows.OWS("Supported")); sup != nil {
		entries := sup.Child(ows.WPS("Format"))
		if len(entries) == 0 {
			entries = sup.Child(ows.OWS("Format"))
		}
		for i, e := range entries {
			f, ws, err := format.Parse(e)
			scope := fmt.Sprintf("Supported/Format[%d]", i)
			warnings.Merge(scope, ws)
			if err != nil {
				warnings.Add(ows.WarnElementMissing, scope, "skipping format: %v", err)
				continue
			}
			d.Formats = append(d.Formats, f)
		}
	}
	return d, warnings, nil
}

// Encode renders the element that hands the source to the process: a
// wps:Reference for referenced layers and a wps:Data element for inline data.
func (d *ComplexDescriptor) Encode(v Value) (string, ows.Warnings, error) {
	var warnings ows.Warnings

	var src Source
	switch val := v.(type) {
	case ComplexValue:
		src = val.Source
	case nil:
	default:
		return "", warnings, fmt.Errorf("%w: %T for a complex input", ErrValueKind, v)
	}

	switch s := src.(type) {
	case nil:
		return "", warnings, ErrNoSourceLayer
	case ReferenceSource:
		return d.encodeReference(s)
	case *ReferenceSource:
		if s == nil {
			return "", warnings, ErrNoSourceLayer
		}
		return d.encodeReference(*s)
	case WFSFeatureSource:
		return encodeWFSFeature(s), warnings, nil
	case InlineXMLSource:
		out, err := encodeInline(s)
		return out, warnings, err
	case Base64Source:
		out, err := encodeBase64(s)
		return out, warnings, err
	default:
		return "", warnings, fmt.Errorf("%w: %s", ErrUnsupportedSourceKind, src.Kind())
	}
}

func (d *ComplexDescriptor) encodeReference(s ReferenceSource) (string, ows.Warnings, error) {
	var warnings ows.Warnings
	if s.URL == "" {
		return "", warnings, ErrNoSourceLayer
	}

	switch s.Service {
	case ServiceWFS:
		ref := s.URL
		sel, matched := d.Formats.PreferredGML()
		if matched && !strings.Contains(strings.ToLower(ref), "&outputformat") {
			if sel.IsGML2() {
				ref += "&outputFormat=GML2"
			} else {
				ref += "&outputFormat=GML3"
			}
		}
		ref = appendBBOX(ref, s.Extent)

		var b strings.Builder
		b.WriteString("<wps:Reference")
		if matched {
			fmt.Fprintf(&b, ` mimeType="%s"`, ows.EscapeAttr(sel.MimeType))
			if sel.Schema != "" {
				fmt.Fprintf(&b, ` schema="%s"`, ows.EscapeAttr(sel.Schema))
			}
			if sel.Encoding != "" {
				fmt.Fprintf(&b, ` encoding="%s"`, ows.EscapeAttr(sel.Encoding))
			}
		} else {
			warnings.Add(ows.WarnNoSchemaMatch, "ComplexData",
				"no GML 2 or GML 3 schema among the supported formats; sending the reference without format attributes")
		}
		fmt.Fprintf(&b, ` xlink:href="%s" method="GET"/>`, ows.EscapeAttr(ref))
		return b.String(), warnings, nil

	case ServiceWMS:
		ref := appendBBOX(s.URL, s.Extent)
		return fmt.Sprintf(`<wps:Reference xlink:href="%s" method="GET"/>`, ows.EscapeAttr(ref)), warnings, nil

	default:
		return "", warnings, fmt.Errorf("%w: reference to %q service", ErrUnsupportedSourceKind, s.Service)
	}
}

func appendBBOX(ref string, e *Extent) string {
	if e == nil || strings.Contains(ref, "&BBOX") {
		return ref
	}
	return ref + "&BBOX=" + e.BBOX()
}

func encodeWFSFeature(s WFSFeatureSource) string {
	typeName := s.FeatureType
	if s.FeaturePrefix != "" {
		typeName = s.FeaturePrefix + ":" + s.FeatureType
	}
	ref := s.Endpoint + "?SERVICE=WFS&VERSION=1.0.0&REQUEST=GetFeature&TYPENAME=" + typeName +
		"&SRS=" + s.SRSName + "&OUTPUTFORMAT=GML3"
	return fmt.Sprintf(`<wps:Reference schema="%s" xlink:href="%s" method="GET"/>`,
		format.GML311FeatureXSD, ows.EscapeAttr(ref))
}

func encodeInline(s InlineXMLSource) (string, error) {
	if strings.TrimSpace(s.Payload) == "" {
		return "", fmt.Errorf("%w: inline payload is empty", ErrNoSourceLayer)
	}

	var schema string
	switch s.Dialect {
	case DialectGML:
		schema = format.GML311FeatureXSD
	case DialectKML:
		schema = format.KML22SchemaOGC
	default:
		return "", fmt.Errorf("%w: inline dialect %q", ErrUnsupportedSourceKind, s.Dialect)
	}

	return fmt.Sprintf(`<wps:Data><wps:ComplexData mimeType="%s" schema="%s" encoding="%s">%s</wps:ComplexData></wps:Data>`,
		format.MimeTextXML, schema, format.EncodingUTF8, escapeInlinePayload(s.Payload)), nil
}

// escapeInlinePayload escapes raw ampersands. A payload that already carries
// &amp; is left alone except for hyphens, which are written as &#45;.
func escapeInlinePayload(payload string) string {
	if !strings.Contains(payload, "&amp;") {
		return strings.ReplaceAll(payload, "&", "&amp;")
	}
	if strings.Contains(payload, "-") {
		return strings.ReplaceAll(payload, "-", "&#45;")
	}
	return payload
}

func encodeBase64(s Base64Source) (string, error) {
	if len(s.Data) == 0 {
		return "", fmt.Errorf("%w: shapefile archive is empty", ErrNoSourceLayer)
	}
	return fmt.Sprintf(`<wps:Data><wps:ComplexData mimeType="%s" encoding="%s">%s</wps:ComplexData></wps:Data>`,
		format.MimeZippedShapefile, format.EncodingBase64, base64.StdEncoding.EncodeToString(s.Data)), nil
}
