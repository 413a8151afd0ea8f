package data

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// Unbounded is the MaxOccurs of an input declared with maxOccurs="unbounded".
const Unbounded = math.MaxInt32

// InputDescriptor describes one process input.
type InputDescriptor struct {
	IdentifiedObject
	MinOccurs int
	MaxOccurs int
	Kind      Kind
}

// OutputDescriptor describes one process output.
type OutputDescriptor struct {
	IdentifiedObject
	Kind Kind
}

// ParseInput reads an Input element of a ProcessDescription. The data kind is
// chosen by the first of ComplexData, LiteralData and BoundingBoxData present.
func ParseInput(n *ows.Node) (*InputDescriptor, ows.Warnings, error) {
	id, warnings, err := ParseIdentification(n, "Input")
	if err != nil {
		return nil, warnings, err
	}
	in := &InputDescriptor{IdentifiedObject: id}

	if in.MinOccurs, err = occursAttr(n, "minOccurs", id.Identifier); err != nil {
		return nil, warnings, err
	}
	if in.MaxOccurs, err = occursAttr(n, "maxOccurs", id.Identifier); err != nil {
		return nil, warnings, err
	}
	if in.MaxOccurs < in.MinOccurs {
		return nil, warnings, fmt.Errorf("%w: maxOccurs %d is below minOccurs %d on input %s",
			ows.ErrInvalidAttribute, in.MaxOccurs, in.MinOccurs, id.Identifier)
	}

	kind, ws, err := parseKind(n, id.Identifier, "ComplexData", "LiteralData", "BoundingBoxData", true)
	warnings.Merge(id.Identifier, ws)
	if err != nil {
		return nil, warnings, err
	}
	in.Kind = kind
	return in, warnings, nil
}

// ParseOutput reads an Output element of a ProcessDescription.
func ParseOutput(n *ows.Node) (*OutputDescriptor, ows.Warnings, error) {
	id, warnings, err := ParseIdentification(n, "Output")
	if err != nil {
		return nil, warnings, err
	}
	kind, ws, err := parseKind(n, id.Identifier, "ComplexOutput", "LiteralOutput", "BoundingBoxOutput", false)
	warnings.Merge(id.Identifier, ws)
	if err != nil {
		return nil, warnings, err
	}
	return &OutputDescriptor{IdentifiedObject: id, Kind: kind}, warnings, nil
}

func occursAttr(n *ows.Node, attr, id string) (int, error) {
	v, ok := n.Attr(attr)
	if !ok {
		return 0, ows.MissingAttribute("Input "+id, attr)
	}
	v = strings.TrimSpace(v)
	if v == "unbounded" {
		return Unbounded, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s=%q on input %s", ows.ErrInvalidAttribute, attr, v, id)
	}
	return i, nil
}

func parseKind(n *ows.Node, id, complexName, literalName, bboxName string, input bool) (Kind, ows.Warnings, error) {
	if c := n.FirstChild(ows.WPS(complexName)); c != nil {
		d, ws, err := ParseComplex(c)
		if err != nil {
			return nil, ws, err
		}
		return d, ws, nil
	}
	if c := n.FirstChild(ows.WPS(literalName)); c != nil {
		d, ws, err := ParseLiteral(c, input)
		if err != nil {
			return nil, ws, err
		}
		return d, ws, nil
	}
	if c := n.FirstChild(ows.WPS(bboxName)); c != nil {
		d, ws, err := ParseBoundingBox(c)
		if err != nil {
			return nil, ws, err
		}
		return d, ws, nil
	}
	return nil, nil, fmt.Errorf("%w: %s has none of %s, %s, %s",
		ows.ErrUnrecognizedDataKind, id, complexName, literalName, bboxName)
}

// Encoder turns supplied values into Execute request fragments. The zero value
// encodes every kind except bounding boxes that need reprojection.
type Encoder struct {
	Reprojector Reprojector
}

// EncodeValue renders the wps:Data or wps:Reference element for one value of kind k.
func (e Encoder) EncodeValue(k Kind, v Value) (string, ows.Warnings, error) {
	switch d := k.(type) {
	case *LiteralDescriptor:
		out, err := d.Encode(v)
		return out, nil, err
	case *BoundingBoxDescriptor:
		out, err := d.Encode(v, e.Reprojector)
		return out, nil, err
	case *ComplexDescriptor:
		return d.Encode(v)
	default:
		return "", nil, fmt.Errorf("%w: %T", ows.ErrUnrecognizedDataKind, k)
	}
}

// EncodeInput renders every wps:Input element for in. The first MinOccurs
// occurrences are mandatory; later ones are only encoded when marked used.
func (e Encoder) EncodeInput(in *InputDescriptor, occurrences []Occurrence) (string, ows.Warnings, error) {
	var (
		b        strings.Builder
		warnings ows.Warnings
	)
	count := max(in.MinOccurs, len(occurrences))
	for i := 0; i < count && i < in.MaxOccurs; i++ {
		var occ Occurrence
		if i < len(occurrences) {
			occ = occurrences[i]
		}
		if i >= in.MinOccurs && !occ.Used {
			continue
		}
		frag, ws, err := e.EncodeValue(in.Kind, occ.Value)
		warnings.Merge(in.Identifier, ws)
		if err != nil {
			return "", warnings, fmt.Errorf("input %s occurrence %d: %w", in.Identifier, i+1, err)
		}
		b.WriteString("<wps:Input><ows:Identifier>")
		b.WriteString(ows.EscapeText(in.Identifier))
		b.WriteString("</ows:Identifier>")
		b.WriteString(frag)
		b.WriteString("</wps:Input>")
	}
	return b.String(), warnings, nil
}
