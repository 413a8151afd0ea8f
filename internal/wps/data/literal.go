package data

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// DataType names the datatype of a literal.
type DataType struct {
	Name      string `json:"name"`
	Reference string `json:"reference"`
}

// UnitOfMeasure is one unit a literal may be expressed in.
type UnitOfMeasure struct {
	Name      string `json:"name"`
	Reference string `json:"reference,omitempty"`
}

// ConstraintMode says how the values of a literal input are constrained.
type ConstraintMode string

// Constraint modes. ModeUnset marks an input that cannot be encoded.
const (
	ModeUnset           ConstraintMode = ""
	ModeAnyValue        ConstraintMode = "anyValue"
	ModeAllowedValues   ConstraintMode = "allowedValues"
	ModeValuesReference ConstraintMode = "valuesReference"
)

// Closure says which ends of a range are included.
type Closure string

// Range closures.
const (
	ClosureClosed     Closure = "closed"
	ClosureOpen       Closure = "open"
	ClosureClosedOpen Closure = "closed-open"
	ClosureOpenClosed Closure = "open-closed"
)

func validClosure(c string) bool {
	switch Closure(c) {
	case ClosureClosed, ClosureOpen, ClosureClosedOpen, ClosureOpenClosed:
		return true
	}
	return false
}

// Range is a numeric interval. A nil bound is unbounded.
type Range struct {
	Closure Closure  `json:"closure"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// Contains reports whether x lies in the range.
func (r Range) Contains(x float64) bool {
	lowerClosed := r.Closure == ClosureClosed || r.Closure == ClosureClosedOpen
	upperClosed := r.Closure == ClosureClosed || r.Closure == ClosureOpenClosed
	if r.Min != nil && (x < *r.Min || (!lowerClosed && x == *r.Min)) {
		return false
	}
	if r.Max != nil && (x > *r.Max || (!upperClosed && x == *r.Max)) {
		return false
	}
	return true
}

// ValuesRef points at an externally published list of values.
type ValuesRef struct {
	Reference string `json:"reference"`
	Form      string `json:"form,omitempty"`
}

// LiteralDescriptor describes a literal input or output.
type LiteralDescriptor struct {
	DataType       *DataType
	UnitsOfMeasure []UnitOfMeasure

	Mode            ConstraintMode
	AllowedValues   []string
	Ranges          []Range
	ValuesReference *ValuesRef
	DefaultValue    string
}

func (*LiteralDescriptor) isKind() {}

// Type implements Kind.
func (*LiteralDescriptor) Type() KindType { return KindLiteral }

// DataTypeReference returns the datatype reference, defaulting to xs:string.
func (d *LiteralDescriptor) DataTypeReference() string {
	if d.DataType == nil || d.DataType.Reference == "" {
		return DefaultDataTypeReference
	}
	return d.DataType.Reference
}

// Describe implements Kind.
func (d *LiteralDescriptor) Describe() Description {
	ref := d.DataTypeReference()
	return Description{
		Kind:              KindLiteral,
		DataType:          d.DataType,
		UnitsOfMeasure:    d.UnitsOfMeasure,
		Mode:              d.Mode,
		AllowedValues:     d.AllowedValues,
		Ranges:            d.Ranges,
		ValuesReference:   d.ValuesReference,
		DefaultValue:      d.DefaultValue,
		TextFieldEligible: IsTextFieldEligible(ref),
		Boolean:           IsBoolean(ref),
	}
}

// Permits reports whether text satisfies the allowed values and ranges. Without
// any constraint every value is permitted.
func (d *LiteralDescriptor) Permits(text string) bool {
	if len(d.AllowedValues) == 0 && len(d.Ranges) == 0 {
		return true
	}
	for _, v := range d.AllowedValues {
		if v == text {
			return true
		}
	}
	if len(d.Ranges) == 0 {
		return false
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return false
	}
	for _, r := range d.Ranges {
		if r.Contains(x) {
			return true
		}
	}
	return false
}

// ParseLiteral reads a LiteralData or LiteralOutput element. Constraint modes are
// only read for inputs; outputs carry no constraint.
func ParseLiteral(n *ows.Node, input bool) (*LiteralDescriptor, ows.Warnings, error) {
	var warnings ows.Warnings
	d := &LiteralDescriptor{}

	if dt := n.FirstChild(ows.OWS("DataType")); dt != nil {
		t := DataType{Name: dt.Text()}
		if t.Name == "" {
			warnings.Add(ows.WarnTextNodeMissing, "DataType", "datatype name is missing")
			t.Name = UndefinedTitle
		}
		if ref, ok := dt.FirstAttr("reference", "ows:reference"); ok && ref != "" {
			t.Reference = ref
		} else {
			warnings.Add(ows.WarnAttributeMissing, "DataType", "no reference, assuming %s", DefaultDataTypeReference)
			t.Reference = DefaultDataTypeReference
		}
		d.DataType = &t
	} else {
		warnings.Add(ows.WarnElementMissing, "DataType", "no datatype, assuming %s", DefaultDataTypeReference)
		d.DataType = &DataType{Name: "string", Reference: DefaultDataTypeReference}
	}

	if uoms := firstChildOf(n, ows.OWS("UOMs"), ows.WPS("UOMs")); uoms != nil {
		d.UnitsOfMeasure = parseUOMs(uoms, &warnings)
	}

	if !input {
		return d, warnings, nil
	}

	if def, ok := firstChildText(n, ows.OWS("DefaultValue"), ows.WPS("DefaultValue")); ok {
		d.DefaultValue = def
	}

	switch {
	case n.FirstChild(ows.OWS("AllowedValues")) != nil:
		parseAllowedValues(n.FirstChild(ows.OWS("AllowedValues")), d, &warnings)
	case firstChildOf(n, ows.WPS("ValuesReference"), ows.OWS("ValuesReference")) != nil:
		ref := firstChildOf(n, ows.WPS("ValuesReference"), ows.OWS("ValuesReference"))
		vr := &ValuesRef{}
		if v, ok := ref.FirstAttr("valuesReference", "reference", "ows:reference"); ok && v != "" {
			vr.Reference = v
		} else {
			warnings.Add(ows.WarnAttributeMissing, "ValuesReference", "reference attribute is missing")
		}
		vr.Form = ref.AttrValue("valuesForm", "")
		d.Mode = ModeValuesReference
		d.ValuesReference = vr
	case n.FirstChild(ows.OWS("AnyValue")) != nil:
		d.Mode = ModeAnyValue
	default:
		warnings.Add(ows.WarnNoConstraint, "LiteralData",
			"none of AllowedValues, ValuesReference or AnyValue is present; the input cannot be encoded")
	}
	return d, warnings, nil
}

func parseUOMs(n *ows.Node, warnings *ows.Warnings) []UnitOfMeasure {
	var out []UnitOfMeasure
	read := func(u *ows.Node, where string) UnitOfMeasure {
		uom := UnitOfMeasure{Name: u.Text()}
		if uom.Name == "" {
			warnings.Add(ows.WarnTextNodeMissing, where, "unit of measure has no name")
			uom.Name = UndefinedTitle
		}
		uom.Reference, _ = u.FirstAttr("reference", "ows:reference")
		return uom
	}

	if def := firstChildOf(n, ows.WPS("Default"), ows.OWS("Default")); def != nil {
		if u := def.FirstChild(ows.OWS("UOM")); u != nil {
			out = append(out, read(u, "UOMs/Default"))
		}
	}
	if sup := firstChildOf(n, ows.WPS("Supported"), ows.OWS("Supported")); sup != nil {
		for _, u := range sup.Child(ows.OWS("UOM")) {
			uom := read(u, "UOMs/Supported")
			if len(out) > 0 && out[0] == uom {
				continue
			}
			out = append(out, uom)
		}
	}
	return out
}

func parseAllowedValues(n *ows.Node, d *LiteralDescriptor, warnings *ows.Warnings) {
	for _, v := range n.Child(ows.OWS("Value")) {
		if !v.HasText() {
			warnings.Add(ows.WarnEmptyValue, "AllowedValues/Value", "allowed value is empty")
			continue
		}
		d.AllowedValues = append(d.AllowedValues, v.Text())
	}

	for i, r := range n.Child(ows.OWS("Range")) {
		where := fmt.Sprintf("AllowedValues/Range[%d]", i)
		rng := Range{Closure: ClosureClosed}
		if c, ok := r.FirstAttr("rangeClosure", "ows:rangeClosure"); ok {
			if validClosure(c) {
				rng.Closure = Closure(c)
			} else {
				warnings.Add(ows.WarnInvalidValue, where, "invalid range closure %q, using closed", c)
			}
		}
		rng.Min = parseBound(r, "MinimumValue", where, warnings)
		rng.Max = parseBound(r, "MaximumValue", where, warnings)
		d.Ranges = append(d.Ranges, rng)
	}

	if len(d.AllowedValues) == 0 && len(d.Ranges) == 0 {
		warnings.Add(ows.WarnEmptyValue, "AllowedValues", "no usable allowed values, accepting any value")
		d.Mode = ModeAnyValue
		return
	}
	d.Mode = ModeAllowedValues
}

func parseBound(r *ows.Node, local, where string, warnings *ows.Warnings) *float64 {
	text, ok := r.ChildText(ows.OWS(local))
	if !ok || text == "" {
		warnings.Add(ows.WarnElementMissing, where, "%s is missing", local)
		return nil
	}
	x, err := strconv.ParseFloat(text, 64)
	if err != nil {
		warnings.Add(ows.WarnInvalidValue, where, "%s %q is not a number", local, text)
		return nil
	}
	return &x
}

// Encode renders the wps:Data element carrying v for an Execute request.
func (d *LiteralDescriptor) Encode(v Value) (string, error) {
	text, uom, err := d.valueText(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<wps:Data><wps:LiteralData")
	if d.DataType != nil && d.DataType.Reference != "" {
		fmt.Fprintf(&b, ` dataType="%s"`, ows.EscapeAttr(d.DataType.Reference))
	}
	if uom != "" {
		fmt.Fprintf(&b, ` uom="%s"`, ows.EscapeAttr(uom))
	}
	b.WriteString(">")
	b.WriteString(ows.EscapeText(text))
	b.WriteString("</wps:LiteralData></wps:Data>")
	return b.String(), nil
}

func (d *LiteralDescriptor) valueText(v Value) (string, string, error) {
	if IsBoolean(d.DataTypeReference()) {
		switch val := v.(type) {
		case BooleanValue:
			return strconv.FormatBool(val.Set), "", nil
		case LiteralValue:
			if strings.TrimSpace(val.Text) == "" {
				return "false", val.UOM, nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(val.Text))
			if err != nil {
				return "", "", fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, val.Text)
			}
			return strconv.FormatBool(b), val.UOM, nil
		case nil:
			return "false", "", nil
		default:
			return "", "", fmt.Errorf("%w: %T for a literal input", ErrValueKind, v)
		}
	}

	var lit LiteralValue
	switch val := v.(type) {
	case LiteralValue:
		lit = val
	case nil:
	default:
		return "", "", fmt.Errorf("%w: %T for a literal input", ErrValueKind, v)
	}

	switch d.Mode {
	case ModeAnyValue, ModeValuesReference:
		if lit.Text == "" {
			return "", "", ErrEmptyValue
		}
	case ModeAllowedValues:
		if lit.Text == "" {
			return "", "", ErrEmptyValue
		}
		if !d.Permits(lit.Text) {
			return "", "", fmt.Errorf("%w: %q", ErrValueNotAllowed, lit.Text)
		}
	default:
		return "", "", ErrLiteralModeUnset
	}
	return lit.Text, lit.UOM, nil
}

func firstChildOf(n *ows.Node, names ...ows.Name) *ows.Node {
	for _, name := range names {
		if c := n.FirstChild(name); c != nil {
			return c
		}
	}
	return nil
}

func firstChildText(n *ows.Node, names ...ows.Name) (string, bool) {
	if c := firstChildOf(n, names...); c != nil {
		return c.Text(), true
	}
	return "", false
}
