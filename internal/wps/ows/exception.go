package ows

import (
	"fmt"
	"strings"
)

// Exception is one ows:Exception entry of an exception report.
type Exception struct {
	Code    string   `json:"exceptionCode"`
	Locator string   `json:"locator,omitempty"`
	Texts   []string `json:"texts,omitempty"`
}

// ExceptionReport is a structured ows:ExceptionReport. Raw keeps the serialized
// document for tooling that wants the original markup.
type ExceptionReport struct {
	Version    string      `json:"version,omitempty"`
	Lang       string      `json:"lang,omitempty"`
	Exceptions []Exception `json:"exceptions"`
	Raw        string      `json:"raw,omitempty"`
}

// IsExceptionReport reports whether the node is an ows:ExceptionReport.
func IsExceptionReport(n *Node) bool {
	return n != nil && n.Is(OWS("ExceptionReport"))
}

// FindExceptionReport returns the exception report in the document rooted at n, if any.
func FindExceptionReport(n *Node) *ExceptionReport {
	if n == nil {
		return nil
	}
	node := n.Locate(OWS("ExceptionReport"))
	if node == nil {
		return nil
	}
	return ParseExceptionReport(node)
}

// ParseExceptionReport reads an ows:ExceptionReport element. Missing parts yield empty fields.
func ParseExceptionReport(n *Node) *ExceptionReport {
	r := &ExceptionReport{
		Version: n.AttrValue("version", ""),
	}
	if lang, ok := n.FirstAttr("xml:lang", "lang"); ok {
		r.Lang = lang
	}
	for _, e := range n.Child(OWS("Exception")) {
		ex := Exception{
			Code:    e.AttrValue("exceptionCode", ""),
			Locator: e.AttrValue("locator", ""),
		}
		for _, t := range e.Child(OWS("ExceptionText")) {
			if t.HasText() {
				ex.Texts = append(ex.Texts, t.Text())
			}
		}
		r.Exceptions = append(r.Exceptions, ex)
	}
	if raw, err := n.Serialize(); err == nil {
		r.Raw = raw
	}
	return r
}

// Error makes a report usable where an error is expected.
func (r *ExceptionReport) Error() string {
	return "ows exception report: " + r.Summary()
}

// Summary renders the exceptions on one line.
func (r *ExceptionReport) Summary() string {
	if len(r.Exceptions) == 0 {
		return "no exceptions listed"
	}
	parts := make([]string, 0, len(r.Exceptions))
	for _, e := range r.Exceptions {
		s := e.Code
		if e.Locator != "" {
			s = fmt.Sprintf("%s (%s)", s, e.Locator)
		}
		if len(e.Texts) > 0 {
			s += ": " + strings.Join(e.Texts, " ")
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
