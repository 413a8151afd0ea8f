// Package process models one WPS process: the stub listed in a Capabilities
// document, its hydration from a ProcessDescription and the DataInputs
// fragment of an Execute request.
package process

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ordered"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// UnknownVersion is the version of a process that does not declare one.
const UnknownVersion = "Unknown"

var (
	// ErrNotDescribed is returned when an operation needs inputs before DescribeProcess ran.
	ErrNotDescribed = errors.New("process has not been described yet")

	// ErrIdentifierMismatch is returned when a description is applied to the wrong process.
	ErrIdentifierMismatch = errors.New("process identifier mismatch")
)

// Inputs maps input identifiers to descriptors in document order.
type Inputs = ordered.Map[string, *data.InputDescriptor]

// Outputs maps output identifiers to descriptors in document order.
type Outputs = ordered.Map[string, *data.OutputDescriptor]

// Values maps input identifiers to the supplied occurrences.
type Values map[string][]data.Occurrence

// Snapshot is an immutable view of a process. Hydration publishes a new
// snapshot; holders of an older one keep a consistent, if stale, view.
type Snapshot struct {
	data.IdentifiedObject
	Version         string
	StoreSupported  bool
	StatusSupported bool
	Described       bool
	Inputs          *Inputs
	Outputs         *Outputs
	Warnings        ows.Warnings
}

// Process is a WPS process known to a service. Its identity is stable while
// descriptions replace its contents.
type Process struct {
	id    string
	state atomic.Pointer[Snapshot]
}

// New returns an undescribed process.
func New(info data.IdentifiedObject, version string) *Process {
	if version == "" {
		version = UnknownVersion
	}
	p := &Process{id: info.Identifier}
	p.state.Store(&Snapshot{IdentifiedObject: info, Version: version})
	return p
}

// Identifier returns the process identifier.
func (p *Process) Identifier() string { return p.id }

// Snapshot returns the current view of the process.
func (p *Process) Snapshot() *Snapshot { return p.state.Load() }

// ParseCapabilities reads a wps:Process entry of ProcessOfferings into an undescribed process.
func ParseCapabilities(n *ows.Node) (*Process, ows.Warnings, error) {
	info, warnings, err := data.ParseIdentification(n, "ProcessOfferings/Process")
	if err != nil {
		return nil, warnings, err
	}
	version, _ := n.FirstAttr("processVersion", "wps:processVersion")
	return New(info, version), warnings, nil
}

// ParseDescription hydrates the process from a ProcessDescription element. On
// error the previous state is kept.
func (p *Process) ParseDescription(n *ows.Node) (ows.Warnings, error) {
	info, warnings, err := data.ParseIdentification(n, "ProcessDescription")
	if err != nil {
		return warnings, err
	}
	if info.Identifier != p.id {
		return warnings, fmt.Errorf("%w: description of %s applied to %s", ErrIdentifierMismatch, info.Identifier, p.id)
	}

	prev := p.state.Load()
	next := &Snapshot{
		IdentifiedObject: info,
		Version:          prev.Version,
		StoreSupported:   boolAttr(n, "storeSupported"),
		StatusSupported:  boolAttr(n, "statusSupported"),
		Described:        true,
		Inputs:           ordered.New[string, *data.InputDescriptor](),
		Outputs:          ordered.New[string, *data.OutputDescriptor](),
	}
	if v, ok := n.FirstAttr("processVersion", "wps:processVersion"); ok && v != "" {
		next.Version = v
	}

	if di := n.FirstChild(ows.WPS("DataInputs")); di != nil {
		for _, in := range di.Child(ows.WPS("Input")) {
			desc, ws, err := data.ParseInput(in)
			warnings.Merge("DataInputs", ws)
			if err != nil {
				return warnings, fmt.Errorf("process %s: %w", p.id, err)
			}
			if next.Inputs.Has(desc.Identifier) {
				warnings.Add(ows.WarnInvalidValue, "DataInputs", "duplicate input %s replaces the earlier one", desc.Identifier)
			}
			next.Inputs.Set(desc.Identifier, desc)
		}
	}

	po := n.FirstChild(ows.WPS("ProcessOutputs"))
	if po == nil {
		return warnings, fmt.Errorf("process %s: %w", p.id, ows.MissingElement("ProcessDescription", ows.WPS("ProcessOutputs")))
	}
	outs := po.Child(ows.WPS("Output"))
	if len(outs) == 0 {
		return warnings, fmt.Errorf("process %s: %w", p.id, ows.MissingElement("ProcessOutputs", ows.WPS("Output")))
	}
	for _, out := range outs {
		desc, ws, err := data.ParseOutput(out)
		warnings.Merge("ProcessOutputs", ws)
		if err != nil {
			return warnings, fmt.Errorf("process %s: %w", p.id, err)
		}
		next.Outputs.Set(desc.Identifier, desc)
	}

	next.Warnings = warnings
	p.state.Store(next)
	return warnings, nil
}

func boolAttr(n *ows.Node, key string) bool {
	v, ok := n.Attr(key)
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

// ClientSupported reports whether a client limited to literal and GML inputs
// can drive the process: every input is literal or GML-family XML and no
// output is a raster image. Undescribed processes are not supported.
func (s *Snapshot) ClientSupported() bool {
	if !s.Described {
		return false
	}
	for _, in := range s.Inputs.All() {
		switch k := in.Kind.(type) {
		case *data.LiteralDescriptor:
		case *data.ComplexDescriptor:
			def, ok := k.Formats.Default()
			if !ok || !def.IsXML() || !def.IsGMLFamily() {
				return false
			}
		default:
			return false
		}
	}
	for _, out := range s.Outputs.All() {
		if k, ok := out.Kind.(*data.ComplexDescriptor); ok && k.Formats.HasTag(format.TagRaster) {
			return false
		}
	}
	return true
}

// BuildDataInputsXML renders the wps:DataInputs element for an Execute request.
// It returns "" for a process without inputs.
func (p *Process) BuildDataInputsXML(values Values, enc data.Encoder) (string, ows.Warnings, error) {
	s := p.Snapshot()
	if !s.Described {
		return "", nil, fmt.Errorf("%w: %s", ErrNotDescribed, p.id)
	}
	var warnings ows.Warnings
	for id := range values {
		if !s.Inputs.Has(id) {
			warnings.Add(ows.WarnInvalidValue, id, "value supplied for an input the process does not declare")
		}
	}
	if s.Inputs.Len() == 0 {
		return "", warnings, nil
	}

	var b strings.Builder
	for id, in := range s.Inputs.All() {
		frag, ws, err := enc.EncodeInput(in, values[id])
		warnings.Merge("", ws)
		if err != nil {
			return "", warnings, err
		}
		b.WriteString(frag)
	}
	// every input was optional and none was used
	if b.Len() == 0 {
		return "", warnings, nil
	}
	return "<wps:DataInputs>" + b.String() + "</wps:DataInputs>", warnings, nil
}
