package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

const endpoint = "http://wps.example.org/wps"

func fixture(t *testing.T, name string) *ows.Node {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	root, err := ows.Parse(raw)
	require.NoError(t, err)
	return root
}

func loadedService(t *testing.T) *Service {
	t.Helper()
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "capabilities.xml"))
	require.NoError(t, err)
	_, err = s.ParseDescribeProcess(fixture(t, "describe.xml"), []string{"echo", "buffer"})
	require.NoError(t, err)
	return s
}

func TestParseCapabilities(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "capabilities.xml"))
	require.NoError(t, err)

	assert.True(t, s.Loaded())
	assert.Equal(t, Metadata{
		Title:              "Geoprocessing",
		ServiceType:        "WPS",
		ServiceTypeVersion: "1.0.0",
		Abstract:           "Vector and raster tools.",
	}, s.Metadata())

	procs := s.Processes()
	require.Len(t, procs, 2)
	assert.Equal(t, "echo", procs[0].Identifier())
	assert.Equal(t, "buffer", procs[1].Identifier())
	assert.Equal(t, "2", procs[0].Snapshot().Version)
	assert.False(t, procs[0].Snapshot().Described)
}

func TestParseCapabilities_SOAP(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "capabilities_soap.xml"))
	require.NoError(t, err)
	assert.Equal(t, "Wrapped", s.Metadata().Title)
	_, ok := s.Process("echo")
	assert.True(t, ok)
}

func TestParseCapabilities_MissingVersion(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "capabilities_noversion.xml"))
	assert.True(t, errors.Is(err, ows.ErrWrongOrMissingVersion), "got %v", err)
	assert.Empty(t, s.Processes())
	assert.False(t, s.Loaded())
}

func TestParseCapabilities_FailureKeepsPreviousState(t *testing.T) {
	s := loadedService(t)
	before, _ := s.Process("echo")

	_, err := s.ParseCapabilities(fixture(t, "capabilities_noversion.xml"))
	require.Error(t, err)
	assert.Equal(t, "Geoprocessing", s.Metadata().Title)
	assert.Len(t, s.Processes(), 2)

	_, err = s.ParseCapabilities(fixture(t, "capabilities.xml"))
	require.NoError(t, err)
	after, _ := s.Process("echo")
	assert.Same(t, before, after, "refresh keeps process identity")
	assert.True(t, after.Snapshot().Described, "refresh keeps descriptions")
}

func TestParseCapabilities_ExceptionReport(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "exception.xml"))

	var report *ows.ExceptionReport
	require.True(t, errors.As(err, &report))
	require.Len(t, report.Exceptions, 1)
	assert.Equal(t, "InvalidParameterValue", report.Exceptions[0].Code)
	assert.Equal(t, []string{"No such process: slope"}, report.Exceptions[0].Texts)
}

func TestParseDescribeProcess(t *testing.T) {
	s := loadedService(t)
	for _, id := range []string{"echo", "buffer"} {
		p, ok := s.Process(id)
		require.True(t, ok)
		assert.True(t, p.Snapshot().Described, id)
	}
	buffer, _ := s.Process("buffer")
	assert.Equal(t, "1", buffer.Snapshot().Version, "capabilities version kept when the description has none")
}

func TestParseDescribeProcess_Unknown(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseDescribeProcess(fixture(t, "describe.xml"), nil)
	assert.True(t, errors.Is(err, ErrUnknownProcess))
}

func TestParseDescribeProcess_MissingRequested(t *testing.T) {
	s := New(endpoint)
	_, err := s.ParseCapabilities(fixture(t, "capabilities.xml"))
	require.NoError(t, err)

	warnings, err := s.ParseDescribeProcess(fixture(t, "describe.xml"), []string{"echo", "slope"})
	require.NoError(t, err)
	assert.True(t, warnings.Has(ows.WarnElementMissing))
}

func TestCapabilitiesRequest(t *testing.T) {
	s := New(endpoint)

	get, err := s.CapabilitiesRequest(EncodingGET)
	require.NoError(t, err)
	assert.Equal(t, "GET", get.Method)
	assert.Equal(t, endpoint+"?service=WPS&request=GetCapabilities&acceptVersions=1.0.0", get.URL)

	withQuery, err := New(endpoint+"?map=x").CapabilitiesRequest(EncodingGET)
	require.NoError(t, err)
	assert.Equal(t, endpoint+"?map=x&service=WPS&request=GetCapabilities&acceptVersions=1.0.0", withQuery.URL)

	post, err := s.CapabilitiesRequest(EncodingPOST)
	require.NoError(t, err)
	assert.Equal(t, "POST", post.Method)
	assert.Equal(t, ContentTypeXML, post.ContentType)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<wps:GetCapabilities service="WPS" xmlns:wps="http://www.opengis.net/wps/1.0.0" xmlns:ows="http://www.opengis.net/ows/1.1" `+
		`xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" `+
		`xsi:schemaLocation="http://www.opengis.net/wps/1.0.0 http://schemas.opengis.net/wps/1.0.0/wpsGetCapabilities_request.xsd">`+
		`<ows:AcceptedVersions><ows:Version>1.0.0</ows:Version></ows:AcceptedVersions></wps:GetCapabilities>`, post.Body)

	soap, err := s.CapabilitiesRequest(EncodingSOAP)
	require.NoError(t, err)
	assert.Equal(t, "http://www.opengis.net/wps/1.0.0/GetCapabilities", soap.Header["SOAPAction"])
	body, err := ows.ParseString(soap.Body)
	require.NoError(t, err)
	assert.True(t, body.Is(ows.SOAP("Envelope")))
	assert.NotNil(t, body.Locate(ows.WPS("GetCapabilities")))

	_, err = s.CapabilitiesRequest("KVP")
	assert.Error(t, err)
}

func TestDescribeProcessRequest(t *testing.T) {
	s := New(endpoint)

	get, err := s.DescribeProcessRequest(EncodingGET, []string{"echo", "buffer"})
	require.NoError(t, err)
	assert.Equal(t, endpoint+"?service=WPS&request=DescribeProcess&version=1.0.0&Identifier=echo,buffer", get.URL)

	post, err := s.DescribeProcessRequest(EncodingPOST, []string{"echo", "buffer"})
	require.NoError(t, err)
	root, err := ows.ParseString(post.Body)
	require.NoError(t, err)
	assert.True(t, root.Is(ows.WPS("DescribeProcess")))
	assert.Equal(t, "1.0.0", root.AttrValue("version", ""))
	ids := root.Child(ows.OWS("Identifier"))
	require.Len(t, ids, 2)
	assert.Equal(t, "buffer", ids[1].Text())

	_, err = s.DescribeProcessRequest(EncodingPOST, nil)
	assert.Error(t, err)
}

func TestBuildExecuteRequestXML_Echo(t *testing.T) {
	s := loadedService(t)

	out, _, err := s.BuildExecuteRequestXML("echo", process.Values{"in": {{Value: data.LiteralValue{Text: "hello"}}}}, nil, data.Encoder{})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<wps:Execute service="WPS" version="1.0.0" xmlns:wps="http://www.opengis.net/wps/1.0.0" xmlns:ows="http://www.opengis.net/ows/1.1" `+
		`xmlns:ogc="http://www.opengis.net/ogc" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" `+
		`xsi:schemaLocation="http://www.opengis.net/wps/1.0.0 http://schemas.opengis.net/wps/1.0.0/wpsExecute_request.xsd">`+
		`<ows:Identifier>echo</ows:Identifier>`+
		`<wps:DataInputs><wps:Input><ows:Identifier>in</ows:Identifier><wps:Data><wps:LiteralData dataType="xs:string">hello</wps:LiteralData></wps:Data></wps:Input></wps:DataInputs>`+
		`<wps:ResponseForm><wps:ResponseDocument store="false" lineage="false" status="true">`+
		`<wps:Output asReference="false"><ows:Identifier>out</ows:Identifier><ows:Title>Echoed text</ows:Title></wps:Output>`+
		`</wps:ResponseDocument></wps:ResponseForm></wps:Execute>`, out)
}

func TestBuildExecuteRequestXML_ComplexOutput(t *testing.T) {
	s := loadedService(t)
	values := process.Values{"features": {{Value: data.ComplexValue{Source: data.ReferenceSource{Service: data.ServiceWFS, URL: "http://h/wfs?typeName=a"}}}}}

	out, _, err := s.BuildExecuteRequestXML("buffer", values, nil, data.Encoder{})
	require.NoError(t, err)
	assert.Contains(t, out, `status="false"`)
	assert.Contains(t, out, `<wps:Output asReference="false" schema="http://schemas.opengis.net/gml/3.1.1/base/feature.xsd" mimeType="text/xml">`)

	out, warnings, err := s.BuildExecuteRequestXML("buffer", values,
		[]OutputSelection{{Identifier: "result", Format: &format.Format{MimeType: "application/json"}}}, data.Encoder{})
	require.NoError(t, err)
	assert.Contains(t, out, `<wps:Output asReference="false" mimeType="application/json">`)
	assert.True(t, warnings.Has(ows.WarnUnsupportedFormat))

	_, _, err = s.BuildExecuteRequestXML("buffer", values, []OutputSelection{{Identifier: "nope"}}, data.Encoder{})
	assert.True(t, errors.Is(err, ErrUnknownOutput))
}

func TestBuildExecuteRequestXML_Errors(t *testing.T) {
	s := loadedService(t)
	_, _, err := s.BuildExecuteRequestXML("slope", nil, nil, data.Encoder{})
	assert.True(t, errors.Is(err, ErrUnknownProcess))

	_, _, err = s.BuildExecuteRequestXML("echo", nil, nil, data.Encoder{})
	assert.True(t, errors.Is(err, data.ErrEmptyValue))

	undescribed := New(endpoint)
	_, err = undescribed.ParseCapabilities(fixture(t, "capabilities.xml"))
	require.NoError(t, err)
	_, _, err = undescribed.BuildExecuteRequestXML("echo", nil, nil, data.Encoder{})
	assert.True(t, errors.Is(err, process.ErrNotDescribed))
}

func TestExecuteRequest(t *testing.T) {
	s := loadedService(t)
	req, _, err := s.ExecuteRequest("echo", process.Values{"in": {{Value: data.LiteralValue{Text: "a"}}}}, nil, data.Encoder{})
	require.NoError(t, err)
	assert.Equal(t, OpExecute, req.Operation)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, endpoint, req.URL)
}
