package models

import (
	"errors"
	"fmt"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

// ErrInvalidInput is returned when a supplied input value is malformed.
var ErrInvalidInput = errors.New("invalid input value")

// InputValue is one occurrence of a process input. Exactly one of the value
// fields must be set; it selects the data kind.
//
// Example:
//
//	{"value": "12.5", "uom": "m"}
//	{"boundingBox": {"crs": "EPSG:4326", "lower": {"x": 5, "y": 50}, "upper": {"x": 6, "y": 51}}}
//	{"reference": {"service": "WFS", "url": "http://example.com/wfs?typeName=roads"}}
type InputValue struct {
	// Used marks an optional occurrence as sent. Defaults to true.
	Used *bool `json:"used,omitempty"`

	Value       *string           `json:"value,omitempty"`
	UOM         string            `json:"uom,omitempty"`
	Boolean     *bool             `json:"boolean,omitempty"`
	BoundingBox *data.BoundingBox `json:"boundingBox,omitempty"`
	Reference   *ReferenceInput   `json:"reference,omitempty"`
	WFSFeature  *WFSFeatureInput  `json:"wfsFeature,omitempty"`
	Inline      *InlineInput      `json:"inline,omitempty"`

	// Base64 is a zipped shapefile, base64 encoded in JSON.
	Base64 []byte `json:"base64,omitempty"`
}

// ReferenceInput points a complex input at a WFS or WMS layer.
type ReferenceInput struct {
	Service data.ServiceType `json:"service"`
	URL     string           `json:"url"`
	Extent  *data.Extent     `json:"extent,omitempty"`
}

// WFSFeatureInput lets the process fetch a WFS feature type itself.
type WFSFeatureInput struct {
	Endpoint      string `json:"endpoint"`
	FeaturePrefix string `json:"featurePrefix,omitempty"`
	FeatureType   string `json:"featureType"`
	SRSName       string `json:"srsName,omitempty"`
}

// InlineInput carries GML or KML features in the request.
type InlineInput struct {
	Dialect data.Dialect `json:"dialect"`
	Payload string       `json:"payload"`
}

// ToOccurrence converts the value into an engine occurrence.
func (v InputValue) ToOccurrence() (data.Occurrence, error) {
	val, err := v.toValue()
	if err != nil {
		return data.Occurrence{}, err
	}
	used := true
	if v.Used != nil {
		used = *v.Used
	}
	return data.Occurrence{Value: val, Used: used}, nil
}

func (v InputValue) toValue() (data.Value, error) {
	var (
		out data.Value
		set int
	)
	if v.Value != nil {
		out = data.LiteralValue{Text: *v.Value, UOM: v.UOM}
		set++
	}
	if v.Boolean != nil {
		out = data.BooleanValue{Set: *v.Boolean}
		set++
	}
	if v.BoundingBox != nil {
		box := *v.BoundingBox
		out = data.BoundingBoxValue{Box: &box}
		set++
	}
	if v.Reference != nil {
		switch v.Reference.Service {
		case data.ServiceWFS, data.ServiceWMS:
		default:
			return nil, fmt.Errorf("%w: reference service must be WFS or WMS, got %q", ErrInvalidInput, v.Reference.Service)
		}
		if v.Reference.URL == "" {
			return nil, fmt.Errorf("%w: reference url is empty", ErrInvalidInput)
		}
		out = data.ComplexValue{Source: data.ReferenceSource{
			Service: v.Reference.Service,
			URL:     v.Reference.URL,
			Extent:  v.Reference.Extent,
		}}
		set++
	}
	if v.WFSFeature != nil {
		if v.WFSFeature.Endpoint == "" || v.WFSFeature.FeatureType == "" {
			return nil, fmt.Errorf("%w: wfsFeature needs endpoint and featureType", ErrInvalidInput)
		}
		out = data.ComplexValue{Source: data.WFSFeatureSource{
			Endpoint:      v.WFSFeature.Endpoint,
			FeaturePrefix: v.WFSFeature.FeaturePrefix,
			FeatureType:   v.WFSFeature.FeatureType,
			SRSName:       v.WFSFeature.SRSName,
		}}
		set++
	}
	if v.Inline != nil {
		switch v.Inline.Dialect {
		case data.DialectGML, data.DialectKML:
		default:
			return nil, fmt.Errorf("%w: inline dialect must be GML or KML, got %q", ErrInvalidInput, v.Inline.Dialect)
		}
		out = data.ComplexValue{Source: data.InlineXMLSource{
			Dialect: v.Inline.Dialect,
			Payload: v.Inline.Payload,
		}}
		set++
	}
	if v.Base64 != nil {
		out = data.ComplexValue{Source: data.Base64Source{Data: v.Base64}}
		set++
	}

	switch set {
	case 0:
		return nil, fmt.Errorf("%w: no value set", ErrInvalidInput)
	case 1:
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d values set, expected one", ErrInvalidInput, set)
	}
}

// ToValues converts the inputs of an ExecuteRequest.
func (r ExecuteRequest) ToValues() (process.Values, error) {
	values := make(process.Values, len(r.Inputs))
	for id, occurrences := range r.Inputs {
		converted := make([]data.Occurrence, 0, len(occurrences))
		for i, occ := range occurrences {
			o, err := occ.ToOccurrence()
			if err != nil {
				return nil, fmt.Errorf("input %s occurrence %d: %w", id, i+1, err)
			}
			converted = append(converted, o)
		}
		values[id] = converted
	}
	return values, nil
}
