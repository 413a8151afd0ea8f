// Package ows holds the OGC Web Services 1.1 building blocks shared by the WPS
// 1.0.0 engine: namespace constants, a namespace-tolerant XML tree wrapper,
// parse warnings, sentinel errors, exception reports and the response envelope
// checks applied to every WPS document.
package ows

// Namespace URIs and the prefixes the engine writes into requests.
const (
	WPSNamespace   = "http://www.opengis.net/wps/1.0.0"
	WPSPrefix      = "wps"
	OWSNamespace   = "http://www.opengis.net/ows/1.1"
	OWSPrefix      = "ows"
	OGCNamespace   = "http://www.opengis.net/ogc"
	OGCPrefix      = "ogc"
	SOAPNamespace  = "http://www.w3.org/2003/05/soap-envelope"
	SOAPPrefix     = "soap"
	XLinkNamespace = "http://www.w3.org/1999/xlink"
	XLinkPrefix    = "xlink"
	XSINamespace   = "http://www.w3.org/2001/XMLSchema-instance"
	XSIPrefix      = "xsi"
)

// ServiceName is the value of the service attribute on every WPS request and response.
const ServiceName = "WPS"

// supportedVersions lists the WPS versions this engine speaks, most preferred first.
var supportedVersions = []string{"1.0.0"}

// SupportedVersions returns a copy of the supported WPS versions.
func SupportedVersions() []string {
	out := make([]string, len(supportedVersions))
	copy(out, supportedVersions)
	return out
}

// IsSupportedVersion reports whether version is one of SupportedVersions.
func IsSupportedVersion(version string) bool {
	for _, v := range supportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

// Name identifies an element by namespace URI, conventional prefix and local name.
// Lookups try the namespace first, then prefix:local, then the bare local name.
type Name struct {
	Namespace string
	Prefix    string
	Local     string
}

// WPS returns the name of an element in the WPS namespace.
func WPS(local string) Name {
	return Name{Namespace: WPSNamespace, Prefix: WPSPrefix, Local: local}
}

// OWS returns the name of an element in the OWS namespace.
func OWS(local string) Name {
	return Name{Namespace: OWSNamespace, Prefix: OWSPrefix, Local: local}
}

// SOAP returns the name of an element in the SOAP 1.2 envelope namespace.
func SOAP(local string) Name {
	return Name{Namespace: SOAPNamespace, Prefix: SOAPPrefix, Local: local}
}

// String renders the name as prefix:local.
func (n Name) String() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}
