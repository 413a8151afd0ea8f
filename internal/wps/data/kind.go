// Package data models the three WPS data kinds (literal, bounding box, complex):
// parsing their constraints from DescribeProcess documents, describing them
// without any UI assumptions, encoding supplied values into Execute fragments
// and decoding process outputs.
package data

import (
	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// KindType discriminates the data kinds.
type KindType string

// Data kinds.
const (
	KindLiteral     KindType = "literal"
	KindBoundingBox KindType = "boundingBox"
	KindComplex     KindType = "complex"
)

// Kind is one of *LiteralDescriptor, *BoundingBoxDescriptor or *ComplexDescriptor.
type Kind interface {
	Type() KindType
	Describe() Description
	isKind()
}

// IdentifiedObject carries the identification shared by processes, inputs and outputs.
type IdentifiedObject struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract,omitempty"`
}

// UndefinedTitle replaces a title or name the document left empty.
const UndefinedTitle = "Undefined!"

// ParseIdentification reads ows:Identifier (mandatory), ows:Title and ows:Abstract
// from the direct children of n.
func ParseIdentification(n *ows.Node, where string) (IdentifiedObject, ows.Warnings, error) {
	var warnings ows.Warnings

	id, ok := n.ChildText(ows.OWS("Identifier"))
	if !ok || id == "" {
		return IdentifiedObject{}, warnings, ows.MissingElement(where, ows.OWS("Identifier"))
	}

	obj := IdentifiedObject{Identifier: id}
	if title, ok := n.ChildText(ows.OWS("Title")); ok && title != "" {
		obj.Title = title
	} else {
		warnings.Add(ows.WarnTextNodeMissing, id, "title is missing")
		obj.Title = UndefinedTitle
	}
	if abstract, ok := n.ChildText(ows.OWS("Abstract")); ok {
		obj.Abstract = abstract
	}
	return obj, warnings, nil
}

// Description is a UI-agnostic summary of a data kind's constraints. Only the
// fields of the described kind are populated.
type Description struct {
	Kind KindType `json:"kind"`

	DataType          *DataType       `json:"dataType,omitempty"`
	UnitsOfMeasure    []UnitOfMeasure `json:"unitsOfMeasure,omitempty"`
	Mode              ConstraintMode  `json:"mode,omitempty"`
	AllowedValues     []string        `json:"allowedValues,omitempty"`
	Ranges            []Range         `json:"ranges,omitempty"`
	ValuesReference   *ValuesRef      `json:"valuesReference,omitempty"`
	DefaultValue      string          `json:"defaultValue,omitempty"`
	TextFieldEligible bool            `json:"textFieldEligible,omitempty"`
	Boolean           bool            `json:"boolean,omitempty"`

	SupportedCRS []string `json:"supportedCRS,omitempty"`

	Formats          format.List  `json:"formats,omitempty"`
	MaximumMegabytes float64      `json:"maximumMegabytes,omitempty"`
	Tags             []format.Tag `json:"tags,omitempty"`
}
