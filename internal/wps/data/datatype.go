package data

import "strings"

// DefaultDataTypeReference is assumed when a literal does not name its datatype.
const DefaultDataTypeReference = "xs:string"

var xmlSchemaPrefixes = []string{
	"xs:",
	"http://www.w3.org/TR/xmlschema-2/#",
	"http://www.w3.org/TR/2001/REC-xmlschema-2-20010502/#",
}

var primitiveTypes = toSet(
	"double", "Double", "float", "Float", "decimal", "Decimal",
	"anyURI", "AnyURI", "string", "String",
	"Duration", "duration", "DateTime", "dateTime", "Time", "time", "Date", "date",
	"GYearMonth", "GMonthDay", "GDay", "GMonth", "GYear",
	"qName", "gMonthDay", "gDay", "gMonth", "gYear", "QName",
)

var derivedTypes = toSet(
	"integer", "nonPositiveInteger", "negativeInteger", "long", "int", "short",
	"nonNegativeInteger", "unsignedLong", "unsignedInt", "unsignedShort", "positiveInteger",
	"normalizedString", "token", "language", "Name", "NCName",
)

func toSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// localTypeName strips one of the XML Schema prefixes from ref. It returns false
// when ref does not use any of them.
func localTypeName(ref string) (string, bool) {
	for _, p := range xmlSchemaPrefixes {
		if strings.HasPrefix(ref, p) {
			return strings.TrimPrefix(ref, p), true
		}
	}
	return "", false
}

// IsTextFieldEligible reports whether values of the datatype can be typed as free text:
// XML Schema primitive and derived types, excluding boolean.
func IsTextFieldEligible(ref string) bool {
	name, ok := localTypeName(ref)
	if !ok {
		return false
	}
	if _, ok := primitiveTypes[name]; ok {
		return true
	}
	_, ok = derivedTypes[name]
	return ok
}

// IsBoolean reports whether the datatype is XML Schema boolean.
func IsBoolean(ref string) bool {
	name, ok := localTypeName(ref)
	return ok && strings.EqualFold(name, "boolean")
}
