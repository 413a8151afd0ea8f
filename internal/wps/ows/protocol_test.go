package ows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name: "valid with xml:lang",
			doc:  `<Capabilities service="WPS" version="1.0.0" xml:lang="en-US"/>`,
		},
		{
			name: "valid with plain lang",
			doc:  `<Capabilities service="WPS" version="1.0.0" lang="en"/>`,
		},
		{
			name:    "missing service",
			doc:     `<Capabilities version="1.0.0" lang="en"/>`,
			wantErr: ErrWrongOrMissingService,
		},
		{
			name:    "wrong service",
			doc:     `<Capabilities service="WMS" version="1.0.0" lang="en"/>`,
			wantErr: ErrWrongOrMissingService,
		},
		{
			name:    "missing version",
			doc:     `<Capabilities service="WPS" lang="en"/>`,
			wantErr: ErrWrongOrMissingVersion,
		},
		{
			name:    "unsupported version",
			doc:     `<Capabilities service="WPS" version="2.0.0" lang="en"/>`,
			wantErr: ErrWrongOrMissingVersion,
		},
		{
			name:    "missing language",
			doc:     `<Capabilities service="WPS" version="1.0.0"/>`,
			wantErr: ErrWrongOrMissingLang,
		},
		{
			name:    "service is checked before version",
			doc:     `<Capabilities/>`,
			wantErr: ErrWrongOrMissingService,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseString(tt.doc)
			require.NoError(t, err)

			err = CheckEnvelope(n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParseExceptionReport(t *testing.T) {
	doc := `<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/1.1" version="1.0.0" xml:lang="en">
	  <ows:Exception exceptionCode="InvalidParameterValue" locator="width">
	    <ows:ExceptionText>width must be positive</ows:ExceptionText>
	  </ows:Exception>
	  <ows:Exception exceptionCode="NoApplicableCode"/>
	</ows:ExceptionReport>`
	n, err := ParseString(doc)
	require.NoError(t, err)
	require.True(t, IsExceptionReport(n))

	r := FindExceptionReport(n)
	require.NotNil(t, r)
	assert.Equal(t, "1.0.0", r.Version)
	assert.Equal(t, "en", r.Lang)
	require.Len(t, r.Exceptions, 2)
	assert.Equal(t, "InvalidParameterValue", r.Exceptions[0].Code)
	assert.Equal(t, "width", r.Exceptions[0].Locator)
	assert.Equal(t, []string{"width must be positive"}, r.Exceptions[0].Texts)
	assert.Empty(t, r.Exceptions[1].Texts)
	assert.Contains(t, r.Raw, "InvalidParameterValue")
	assert.Contains(t, r.Error(), "InvalidParameterValue (width): width must be positive")
}

func TestWarnings_Merge(t *testing.T) {
	var ws Warnings
	ws.Add(WarnEmptyValue, "", "empty")

	var inner Warnings
	inner.Add(WarnInvalidValue, "Range[0]", "bad closure")
	inner.Add(WarnTextNodeMissing, "", "no name")
	ws.Merge("in", inner)

	require.Len(t, ws, 3)
	assert.Equal(t, "in/Range[0]", ws[1].Locator)
	assert.Equal(t, "in", ws[2].Locator)
	assert.True(t, ws.Has(WarnInvalidValue))
	assert.False(t, ws.Has(WarnWrongNamespace))
}
