package ows

import (
	"errors"
	"fmt"
)

// Sentinel errors raised while parsing WPS documents.
var (
	// ErrMalformedDocument is returned when a response is not well-formed XML.
	ErrMalformedDocument = errors.New("malformed XML document")

	// ErrElementMissing is returned when a mandatory element is absent.
	ErrElementMissing = errors.New("mandatory element missing")

	// ErrAttributeMissing is returned when a mandatory attribute is absent or unusable.
	ErrAttributeMissing = errors.New("mandatory attribute missing")

	// ErrInvalidAttribute is returned when a mandatory attribute holds an unusable value.
	ErrInvalidAttribute = errors.New("invalid attribute value")

	// ErrUnrecognizedDataKind is returned when an input or output carries none of the
	// ComplexData, LiteralData or BoundingBoxData variants.
	ErrUnrecognizedDataKind = errors.New("unrecognized data kind")

	// ErrWrongOrMissingService is returned when the service attribute is not "WPS".
	ErrWrongOrMissingService = errors.New("wrong or missing service attribute")

	// ErrWrongOrMissingVersion is returned when the version attribute is absent or unsupported.
	ErrWrongOrMissingVersion = errors.New("wrong or missing version attribute")

	// ErrWrongOrMissingLang is returned when neither lang nor xml:lang is present.
	ErrWrongOrMissingLang = errors.New("wrong or missing language attribute")
)

// MissingElement builds an ErrElementMissing error naming the element and its parent.
func MissingElement(parent string, name Name) error {
	return fmt.Errorf("%w: %s in %s", ErrElementMissing, name, parent)
}

// MissingAttribute builds an ErrAttributeMissing error naming the attribute and its element.
func MissingAttribute(element, attr string) error {
	return fmt.Errorf("%w: %s on %s", ErrAttributeMissing, attr, element)
}
