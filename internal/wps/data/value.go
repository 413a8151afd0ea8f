package data

// Value is a caller-supplied value for one input occurrence: LiteralValue,
// BooleanValue, BoundingBoxValue or ComplexValue.
type Value interface {
	isValue()
}

// LiteralValue is a literal typed as text. UOM optionally names the unit of measure.
type LiteralValue struct {
	Text string
	UOM  string
}

// BooleanValue is a literal supplied as a toggle.
type BooleanValue struct {
	Set bool
}

// BoundingBoxValue carries the bounds of a bounding box input. A nil Box
// means no bounds were supplied; a box with all-zero corners is a valid box.
type BoundingBoxValue struct {
	Box *BoundingBox
}

// ComplexValue names the data source of a complex input.
type ComplexValue struct {
	Source Source
}

func (LiteralValue) isValue()     {}
func (BooleanValue) isValue()     {}
func (BoundingBoxValue) isValue() {}
func (ComplexValue) isValue()     {}

// Occurrence is one supplied value of an input. Occurrences past an input's
// minOccurs are only encoded when Used is set.
type Occurrence struct {
	Value Value
	Used  bool
}
