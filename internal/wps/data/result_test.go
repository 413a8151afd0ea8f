package data

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

const resultNS = `xmlns:wps="http://www.opengis.net/wps/1.0.0" xmlns:ows="http://www.opengis.net/ows/1.1" xmlns:xlink="http://www.w3.org/1999/xlink"`

func outputDoc(body string) string {
	return `<wps:Output ` + resultNS + `><ows:Identifier>out</ows:Identifier><ows:Title>Out</ows:Title>` + body + `</wps:Output>`
}

func TestDecodeOutput(t *testing.T) {
	desc := &OutputDescriptor{
		IdentifiedObject: IdentifiedObject{Identifier: "out"},
		Kind: &ComplexDescriptor{Formats: format.List{
			{MimeType: "text/xml", Schema: format.GML311FeatureXSD},
		}},
	}

	t.Run("literal", func(t *testing.T) {
		res, _, err := DecodeOutput(node(t, outputDoc(`<wps:Data><wps:LiteralData dataType="xs:int" uom="m">42</wps:LiteralData></wps:Data>`)), nil)
		require.NoError(t, err)
		assert.Equal(t, ResultLiteral, res.Kind)
		assert.Equal(t, &LiteralResult{Value: "42", DataType: "xs:int", UOM: "m"}, res.Literal)
	})

	t.Run("complex keeps the payload", func(t *testing.T) {
		doc := outputDoc(`<wps:Data><wps:ComplexData mimeType="text/xml" schema="` + format.GML311FeatureXSD + `">` +
			`<gml:FeatureCollection xmlns:gml="http://www.opengis.net/gml"><gml:featureMember/></gml:FeatureCollection>` +
			`</wps:ComplexData></wps:Data>`)
		res, warnings, err := DecodeOutput(node(t, doc), desc)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, ResultComplex, res.Kind)
		assert.Equal(t, format.GML311FeatureXSD, res.Complex.Schema)
		assert.Contains(t, res.Complex.Payload, "<gml:FeatureCollection")
		assert.Contains(t, res.Complex.Payload, `xmlns:gml="http://www.opengis.net/gml"`)
	})

	t.Run("complex in an undescribed format warns", func(t *testing.T) {
		doc := outputDoc(`<wps:Data><wps:ComplexData mimeType="application/json" encoding="UTF-8">{}</wps:ComplexData></wps:Data>`)
		res, warnings, err := DecodeOutput(node(t, doc), desc)
		require.NoError(t, err)
		assert.Equal(t, "{}", res.Complex.Payload)
		assert.True(t, warnings.Has(ows.WarnUnsupportedFormat))
		assert.Len(t, warnings, 2)
	})

	t.Run("bounding box", func(t *testing.T) {
		doc := outputDoc(`<wps:Data><wps:BoundingBoxData crs="EPSG:4326" dimensions="2">` +
			`<ows:LowerCorner>1 2</ows:LowerCorner><ows:UpperCorner>3 4</ows:UpperCorner></wps:BoundingBoxData></wps:Data>`)
		res, _, err := DecodeOutput(node(t, doc), nil)
		require.NoError(t, err)
		assert.Equal(t, &BoundingBox{CRS: "EPSG:4326", Lower: Point{X: 1, Y: 2}, Upper: Point{X: 3, Y: 4}}, res.BoundingBox)
	})

	t.Run("reference", func(t *testing.T) {
		doc := outputDoc(`<wps:Reference xlink:href="http://h/out.xml" mimeType="text/xml" schema="` + format.GML311FeatureXSD + `"/>`)
		res, warnings, err := DecodeOutput(node(t, doc), desc)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, ResultReference, res.Kind)
		assert.Equal(t, "http://h/out.xml", res.Reference.Href)
	})

	t.Run("reference with format attribute", func(t *testing.T) {
		res, _, err := DecodeOutput(node(t, outputDoc(`<wps:Reference href="http://h/x.tif" format="image/tiff"/>`)), nil)
		require.NoError(t, err)
		assert.Equal(t, "image/tiff", res.Reference.MimeType)
	})
}

func TestDecodeOutput_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no data or reference", outputDoc(""), ows.ErrElementMissing},
		{"reference without href", outputDoc(`<wps:Reference mimeType="text/xml"/>`), ows.ErrAttributeMissing},
		{"unknown data", outputDoc(`<wps:Data><wps:Other/></wps:Data>`), ows.ErrUnrecognizedDataKind},
		{"no identifier", `<wps:Output ` + resultNS + `><wps:Data/></wps:Output>`, ows.ErrElementMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeOutput(node(t, tt.doc), nil)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
