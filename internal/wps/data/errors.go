package data

import "errors"

// Encoding-time errors. They abort one Execute-build attempt; callers are expected
// to ask for corrected values instead of submitting a malformed request.
var (
	// ErrEmptyValue is returned when a literal that needs a value receives an empty one.
	ErrEmptyValue = errors.New("empty literal value")

	// ErrLiteralModeUnset is returned when a literal input has no usable constraint mode.
	ErrLiteralModeUnset = errors.New("literal input has no constraint mode")

	// ErrValueNotAllowed is returned when a literal value is outside its allowed values and ranges.
	ErrValueNotAllowed = errors.New("literal value not allowed")

	// ErrInvalidValue is returned when a value cannot be read as the declared datatype.
	ErrInvalidValue = errors.New("invalid literal value")

	// ErrNoBoundingBox is returned when a bounding box input received no bounds.
	ErrNoBoundingBox = errors.New("no bounding box supplied")

	// ErrReprojectionUnavailable is returned when a bounding box needs reprojection but no
	// reprojector was configured.
	ErrReprojectionUnavailable = errors.New("bounding box reprojection unavailable")

	// ErrNoSourceLayer is returned when a complex input has no data source or the source is empty.
	ErrNoSourceLayer = errors.New("no source layer for complex input")

	// ErrUnsupportedSourceKind is returned for complex sources the encoder does not know.
	ErrUnsupportedSourceKind = errors.New("unsupported complex source kind")

	// ErrValueKind is returned when a supplied value does not match the input's data kind.
	ErrValueKind = errors.New("value does not match input data kind")
)
