package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

// Operation names.
const (
	OpGetCapabilities = "GetCapabilities"
	OpDescribeProcess = "DescribeProcess"
	OpExecute         = "Execute"
)

// ContentTypeXML is the content type of every XML request body.
const ContentTypeXML = "text/xml"

const (
	xmlProlog = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`
	schemaDir = "http://schemas.opengis.net/wps/1.0.0/"
)

// Encoding selects how a request is transported.
type Encoding string

// Request encodings. Execute is only sent as POST.
const (
	EncodingGET  Encoding = "GET"
	EncodingPOST Encoding = "POST"
	EncodingSOAP Encoding = "SOAP"
)

// Request is a ready-to-send WPS request.
type Request struct {
	Operation   string
	Method      string
	URL         string
	ContentType string
	Header      map[string]string
	Body        string
}

// OutputSelection asks for one output in the Execute response. Format only
// applies to complex outputs; nil selects the output's default format.
type OutputSelection struct {
	Identifier string         `json:"identifier"`
	Format     *format.Format `json:"format,omitempty"`
}

// CapabilitiesRequest builds a GetCapabilities request.
func (s *Service) CapabilitiesRequest(enc Encoding) (Request, error) {
	switch enc {
	case EncodingGET:
		q := "service=" + ows.ServiceName + "&request=" + OpGetCapabilities +
			"&acceptVersions=" + strings.Join(ows.SupportedVersions(), ",")
		return Request{Operation: OpGetCapabilities, Method: "GET", URL: withQuery(s.url, q)}, nil
	case EncodingPOST:
		return s.postRequest(OpGetCapabilities, xmlProlog+capabilitiesBody()), nil
	case EncodingSOAP:
		return s.soapRequest(OpGetCapabilities, capabilitiesBody()), nil
	default:
		return Request{}, fmt.Errorf("unsupported %s encoding %q", OpGetCapabilities, enc)
	}
}

func capabilitiesBody() string {
	var b strings.Builder
	b.WriteString(`<wps:GetCapabilities service="WPS"`)
	writeNamespaces(&b, false)
	fmt.Fprintf(&b, ` xsi:schemaLocation="%s %swpsGetCapabilities_request.xsd">`, ows.WPSNamespace, schemaDir)
	b.WriteString("<ows:AcceptedVersions>")
	for _, v := range ows.SupportedVersions() {
		b.WriteString("<ows:Version>" + v + "</ows:Version>")
	}
	b.WriteString("</ows:AcceptedVersions></wps:GetCapabilities>")
	return b.String()
}

// DescribeProcessRequest builds a DescribeProcess request for the identifiers.
func (s *Service) DescribeProcessRequest(enc Encoding, identifiers []string) (Request, error) {
	if len(identifiers) == 0 {
		return Request{}, fmt.Errorf("%s needs at least one identifier", OpDescribeProcess)
	}
	switch enc {
	case EncodingGET:
		escaped := make([]string, len(identifiers))
		for i, id := range identifiers {
			escaped[i] = url.QueryEscape(id)
		}
		q := "service=" + ows.ServiceName + "&request=" + OpDescribeProcess +
			"&version=" + ows.SupportedVersions()[0] + "&Identifier=" + strings.Join(escaped, ",")
		return Request{Operation: OpDescribeProcess, Method: "GET", URL: withQuery(s.url, q)}, nil
	case EncodingPOST:
		return s.postRequest(OpDescribeProcess, xmlProlog+describeBody(identifiers)), nil
	case EncodingSOAP:
		return s.soapRequest(OpDescribeProcess, describeBody(identifiers)), nil
	default:
		return Request{}, fmt.Errorf("unsupported %s encoding %q", OpDescribeProcess, enc)
	}
}

func describeBody(identifiers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<wps:DescribeProcess service="WPS" version="%s"`, ows.SupportedVersions()[0])
	writeNamespaces(&b, false)
	fmt.Fprintf(&b, ` xsi:schemaLocation="%s %swpsDescribeProcess_request.xsd">`, ows.WPSNamespace, schemaDir)
	for _, id := range identifiers {
		b.WriteString("<ows:Identifier>" + ows.EscapeText(id) + "</ows:Identifier>")
	}
	b.WriteString("</wps:DescribeProcess>")
	return b.String()
}

// ExecuteRequest builds the POST request submitting an Execute document.
func (s *Service) ExecuteRequest(processID string, values process.Values, outputs []OutputSelection, enc data.Encoder) (Request, ows.Warnings, error) {
	body, warnings, err := s.BuildExecuteRequestXML(processID, values, outputs, enc)
	if err != nil {
		return Request{}, warnings, err
	}
	return s.postRequest(OpExecute, body), warnings, nil
}

// BuildExecuteRequestXML renders the Execute document for a described process.
// The response document is requested inline with store and lineage off and
// status set when the process supports it. Without selections every output is
// requested in its default format.
func (s *Service) BuildExecuteRequestXML(processID string, values process.Values, outputs []OutputSelection, enc data.Encoder) (string, ows.Warnings, error) {
	p, ok := s.Process(processID)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s on %s", ErrUnknownProcess, processID, s.url)
	}
	inputs, warnings, err := p.BuildDataInputsXML(values, enc)
	if err != nil {
		return "", warnings, err
	}
	snap := p.Snapshot()

	if outputs == nil {
		for _, id := range snap.Outputs.Keys() {
			outputs = append(outputs, OutputSelection{Identifier: id})
		}
	}

	var b strings.Builder
	b.WriteString(xmlProlog)
	fmt.Fprintf(&b, `<wps:Execute service="WPS" version="%s"`, ows.SupportedVersions()[0])
	writeNamespaces(&b, true)
	fmt.Fprintf(&b, ` xsi:schemaLocation="%s %swpsExecute_request.xsd">`, ows.WPSNamespace, schemaDir)
	b.WriteString("<ows:Identifier>" + ows.EscapeText(processID) + "</ows:Identifier>")
	b.WriteString(inputs)
	fmt.Fprintf(&b, `<wps:ResponseForm><wps:ResponseDocument store="false" lineage="false" status="%t">`, snap.StatusSupported)

	for _, sel := range outputs {
		out, ok := snap.Outputs.Get(sel.Identifier)
		if !ok {
			return "", warnings, fmt.Errorf("%w: %s of process %s", ErrUnknownOutput, sel.Identifier, processID)
		}
		b.WriteString(`<wps:Output asReference="false"`)
		if cd, ok := out.Kind.(*data.ComplexDescriptor); ok {
			f, _ := cd.Formats.Default()
			if sel.Format != nil {
				f = *sel.Format
				if !cd.Formats.HasMimeType(f.MimeType) {
					warnings.Add(ows.WarnUnsupportedFormat, sel.Identifier, "requested MIME type %s is not described", f.MimeType)
				}
			}
			writeAttr(&b, "schema", f.Schema)
			writeAttr(&b, "mimeType", f.MimeType)
			writeAttr(&b, "encoding", f.Encoding)
		}
		b.WriteString("><ows:Identifier>" + ows.EscapeText(out.Identifier) + "</ows:Identifier>")
		b.WriteString("<ows:Title>" + ows.EscapeText(out.Title) + "</ows:Title>")
		if out.Abstract != "" {
			b.WriteString("<ows:Abstract>" + ows.EscapeText(out.Abstract) + "</ows:Abstract>")
		}
		b.WriteString("</wps:Output>")
	}

	b.WriteString("</wps:ResponseDocument></wps:ResponseForm></wps:Execute>")
	return b.String(), warnings, nil
}

func (s *Service) postRequest(op, body string) Request {
	return Request{Operation: op, Method: "POST", URL: s.url, ContentType: ContentTypeXML, Body: body}
}

func (s *Service) soapRequest(op, body string) Request {
	var b strings.Builder
	b.WriteString(xmlProlog)
	fmt.Fprintf(&b, `<soap:Envelope xmlns:soap="%s" xmlns:xsi="%s" xsi:schemaLocation="%s %s">`,
		ows.SOAPNamespace, ows.XSINamespace, ows.SOAPNamespace, ows.SOAPNamespace)
	b.WriteString("<soap:Body>" + body + "</soap:Body></soap:Envelope>")
	return Request{
		Operation:   op,
		Method:      "POST",
		URL:         s.url,
		ContentType: ContentTypeXML,
		Header:      map[string]string{"SOAPAction": ows.WPSNamespace + "/" + op},
		Body:        b.String(),
	}
}

func writeNamespaces(b *strings.Builder, withOGC bool) {
	fmt.Fprintf(b, ` xmlns:%s="%s" xmlns:%s="%s"`, ows.WPSPrefix, ows.WPSNamespace, ows.OWSPrefix, ows.OWSNamespace)
	if withOGC {
		fmt.Fprintf(b, ` xmlns:%s="%s"`, ows.OGCPrefix, ows.OGCNamespace)
	}
	fmt.Fprintf(b, ` xmlns:%s="%s" xmlns:%s="%s"`, ows.XLinkPrefix, ows.XLinkNamespace, ows.XSIPrefix, ows.XSINamespace)
}

func writeAttr(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, key, ows.EscapeAttr(value))
}

func withQuery(base, query string) string {
	switch {
	case !strings.Contains(base, "?"):
		return base + "?" + query
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return base + query
	default:
		return base + "&" + query
	}
}
