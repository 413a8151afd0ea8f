package data

import (
	"fmt"

	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// ResultKind discriminates decoded outputs.
type ResultKind string

// Result kinds.
const (
	ResultLiteral     ResultKind = "literal"
	ResultComplex     ResultKind = "complex"
	ResultBoundingBox ResultKind = "boundingBox"
	ResultReference   ResultKind = "reference"
)

// Result is one decoded process output. Exactly one of the kind fields is set.
type Result struct {
	IdentifiedObject
	Kind ResultKind `json:"kind"`

	Literal     *LiteralResult   `json:"literal,omitempty"`
	Complex     *ComplexResult   `json:"complex,omitempty"`
	BoundingBox *BoundingBox     `json:"boundingBox,omitempty"`
	Reference   *ReferenceResult `json:"reference,omitempty"`
}

// LiteralResult is an inline literal output.
type LiteralResult struct {
	Value    string `json:"value"`
	DataType string `json:"dataType,omitempty"`
	UOM      string `json:"uom,omitempty"`
}

// ComplexResult is an inline complex output. Payload holds the serialized
// content of the ComplexData element for a renderer to turn into a layer.
type ComplexResult struct {
	format.Format
	Payload string `json:"payload"`
}

// ReferenceResult is an output the server stored and returned by URL.
type ReferenceResult struct {
	format.Format
	Href string `json:"href"`
}

// DecodeOutput reads an Output element of an ExecuteResponse. When desc is
// known, formats outside its supported list raise warnings.
func DecodeOutput(n *ows.Node, desc *OutputDescriptor) (*Result, ows.Warnings, error) {
	id, warnings, err := ParseIdentification(n, "ProcessOutputs/Output")
	if err != nil {
		return nil, warnings, err
	}
	res := &Result{IdentifiedObject: id}

	if d := n.FirstChild(ows.WPS("Data")); d != nil {
		switch {
		case d.FirstChild(ows.WPS("LiteralData")) != nil:
			lit := d.FirstChild(ows.WPS("LiteralData"))
			res.Kind = ResultLiteral
			res.Literal = &LiteralResult{
				Value:    lit.Text(),
				DataType: lit.AttrValue("dataType", ""),
				UOM:      lit.AttrValue("uom", ""),
			}
		case d.FirstChild(ows.WPS("ComplexData")) != nil:
			cd := d.FirstChild(ows.WPS("ComplexData"))
			payload, err := cd.InnerXML()
			if err != nil {
				return nil, warnings, fmt.Errorf("serialize complex output %s: %w", id.Identifier, err)
			}
			res.Kind = ResultComplex
			res.Complex = &ComplexResult{Format: formatAttrs(cd), Payload: payload}
			checkFormat(res.Complex.Format, desc, id.Identifier, &warnings)
		case d.FirstChild(ows.WPS("BoundingBoxData")) != nil:
			box, err := decodeBoundingBox(d.FirstChild(ows.WPS("BoundingBoxData")))
			if err != nil {
				return nil, warnings, fmt.Errorf("bounding box output %s: %w", id.Identifier, err)
			}
			res.Kind = ResultBoundingBox
			res.BoundingBox = &box
		default:
			return nil, warnings, fmt.Errorf("%w: output %s carries no LiteralData, ComplexData or BoundingBoxData",
				ows.ErrUnrecognizedDataKind, id.Identifier)
		}
		return res, warnings, nil
	}

	if r := n.FirstChild(ows.WPS("Reference")); r != nil {
		href, ok := r.FirstAttr("href", "xlink:href")
		if !ok || href == "" {
			return nil, warnings, ows.MissingAttribute("Reference of output "+id.Identifier, "href")
		}
		res.Kind = ResultReference
		res.Reference = &ReferenceResult{Format: formatAttrs(r), Href: href}
		checkFormat(res.Reference.Format, desc, id.Identifier, &warnings)
		return res, warnings, nil
	}

	return nil, warnings, ows.MissingElement("Output "+id.Identifier, ows.WPS("Data"))
}

func formatAttrs(n *ows.Node) format.Format {
	mime, _ := n.FirstAttr("mimeType", "format")
	return format.Format{
		MimeType: mime,
		Schema:   n.AttrValue("schema", ""),
		Encoding: n.AttrValue("encoding", ""),
	}
}

func checkFormat(f format.Format, desc *OutputDescriptor, id string, warnings *ows.Warnings) {
	if desc == nil {
		return
	}
	cd, ok := desc.Kind.(*ComplexDescriptor)
	if !ok {
		return
	}
	if f.MimeType != "" && !cd.Formats.HasMimeType(f.MimeType) {
		warnings.Add(ows.WarnUnsupportedFormat, id, "MIME type %s is not among the described formats", f.MimeType)
	}
	if f.Encoding != "" && !cd.Formats.HasEncoding(f.Encoding) {
		warnings.Add(ows.WarnUnsupportedFormat, id, "encoding %s is not among the described formats", f.Encoding)
	}
	if f.Schema != "" && !cd.Formats.HasSchema(f.Schema) {
		warnings.Add(ows.WarnUnsupportedFormat, id, "schema %s is not among the described formats", f.Schema)
	}
}

func decodeBoundingBox(n *ows.Node) (BoundingBox, error) {
	lowerText, ok := n.ChildText(ows.OWS("LowerCorner"))
	if !ok {
		return BoundingBox{}, ows.MissingElement("BoundingBoxData", ows.OWS("LowerCorner"))
	}
	upperText, ok := n.ChildText(ows.OWS("UpperCorner"))
	if !ok {
		return BoundingBox{}, ows.MissingElement("BoundingBoxData", ows.OWS("UpperCorner"))
	}
	lower, err := ParseCorner(lowerText)
	if err != nil {
		return BoundingBox{}, err
	}
	upper, err := ParseCorner(upperText)
	if err != nil {
		return BoundingBox{}, err
	}
	return BoundingBox{CRS: n.AttrValue("crs", ""), Lower: lower, Upper: upper}, nil
}
