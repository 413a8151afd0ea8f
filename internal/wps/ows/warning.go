package ows

import (
	"fmt"
	"strings"
)

// WarningCode classifies a non-fatal parse or decode problem.
type WarningCode string

// Warning codes.
const (
	WarnWrongNamespace    WarningCode = "WrongNamespace"
	WarnElementMissing    WarningCode = "ElementMissing"
	WarnTextNodeMissing   WarningCode = "TextNodeMissing"
	WarnAttributeMissing  WarningCode = "AttributeMissing"
	WarnInvalidValue      WarningCode = "InvalidValue"
	WarnEmptyValue        WarningCode = "EmptyValue"
	WarnNoConstraint      WarningCode = "NoConstraint"
	WarnUnsupportedFormat WarningCode = "UnsupportedFormat"
	WarnNoSchemaMatch     WarningCode = "NoSchemaMatch"
)

// Warning is a problem that did not abort parsing. Warnings are surfaced to the
// caller for display or logging.
type Warning struct {
	Code    WarningCode `json:"code"`
	Locator string      `json:"locator,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Locator == "" {
		return fmt.Sprintf("%s: %s", w.Code, w.Message)
	}
	return fmt.Sprintf("%s at %s: %s", w.Code, w.Locator, w.Message)
}

// Warnings accumulates warnings in the order they were raised.
type Warnings []Warning

// Add appends a warning with a formatted message.
func (ws *Warnings) Add(code WarningCode, locator, format string, args ...any) {
	*ws = append(*ws, Warning{Code: code, Locator: locator, Message: fmt.Sprintf(format, args...)})
}

// Merge appends other, prefixing each locator with scope when one is given.
func (ws *Warnings) Merge(scope string, other Warnings) {
	for _, w := range other {
		if scope != "" {
			if w.Locator == "" {
				w.Locator = scope
			} else {
				w.Locator = scope + "/" + w.Locator
			}
		}
		*ws = append(*ws, w)
	}
}

// Has reports whether a warning with the given code was raised.
func (ws Warnings) Has(code WarningCode) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}

func (ws Warnings) String() string {
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, "; ")
}
