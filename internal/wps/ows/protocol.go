package ows

import "fmt"

// CheckEnvelope validates the service, version and language attributes of a
// WPS response root, in that order. It must pass before any content is read.
func CheckEnvelope(n *Node) error {
	service, ok := n.Attr("service")
	if !ok {
		return fmt.Errorf("%w: attribute absent on %s", ErrWrongOrMissingService, n.QualifiedName())
	}
	if service != ServiceName {
		return fmt.Errorf("%w: got %q", ErrWrongOrMissingService, service)
	}

	version, ok := n.Attr("version")
	if !ok {
		return fmt.Errorf("%w: attribute absent on %s", ErrWrongOrMissingVersion, n.QualifiedName())
	}
	if !IsSupportedVersion(version) {
		return fmt.Errorf("%w: %q is not one of %v", ErrWrongOrMissingVersion, version, supportedVersions)
	}

	if _, ok := n.FirstAttr("lang", "xml:lang"); !ok {
		return fmt.Errorf("%w: neither lang nor xml:lang on %s", ErrWrongOrMissingLang, n.QualifiedName())
	}
	return nil
}
