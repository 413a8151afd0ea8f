// Package service models one WPS endpoint: its capabilities, the processes it
// offers and the GetCapabilities, DescribeProcess and Execute requests sent to it.
package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/piwi3910/wpsgate/internal/wps/ordered"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

var (
	// ErrUnknownProcess is returned when a document names a process the service never offered.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrNoCapabilities is returned when a response carries no Capabilities document.
	ErrNoCapabilities = errors.New("no capabilities document")

	// ErrNoDescriptions is returned when a response carries no ProcessDescriptions document.
	ErrNoDescriptions = errors.New("no process descriptions document")

	// ErrUnknownOutput is returned when an Execute request selects an output the process lacks.
	ErrUnknownOutput = errors.New("unknown output")
)

// Metadata is the ServiceIdentification section of the capabilities.
type Metadata struct {
	Title              string `json:"title"`
	ServiceType        string `json:"serviceType"`
	ServiceTypeVersion string `json:"serviceTypeVersion"`
	Abstract           string `json:"abstract,omitempty"`
}

// Service is one WPS endpoint. It is safe for concurrent use.
type Service struct {
	url string

	mu        sync.RWMutex
	metadata  Metadata
	processes *ordered.Map[string, *process.Process]
	loaded    bool
}

// New returns a service with no capabilities loaded.
func New(url string) *Service {
	return &Service{url: url, processes: ordered.New[string, *process.Process]()}
}

// URL returns the endpoint URL.
func (s *Service) URL() string { return s.url }

// Metadata returns the service identification.
func (s *Service) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// Loaded reports whether capabilities were parsed successfully at least once.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Processes returns the offered processes in capabilities order.
func (s *Service) Processes() []*process.Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes.Values()
}

// Process returns the process with the given identifier.
func (s *Service) Process(id string) (*process.Process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes.Get(id)
}

// ParseCapabilities reads a Capabilities response, bare or wrapped in a SOAP
// envelope. The envelope is validated before anything is read; on error the
// service keeps its previous state. Processes offered before keep their
// identity, and descriptions already loaded for them.
func (s *Service) ParseCapabilities(root *ows.Node) (ows.Warnings, error) {
	if report := exceptionIn(root); report != nil {
		return nil, report
	}
	caps := root.Locate(ows.WPS("Capabilities"))
	if caps == nil {
		return nil, fmt.Errorf("%w: root element is %s", ErrNoCapabilities, root.QualifiedName())
	}
	if err := ows.CheckEnvelope(caps); err != nil {
		return nil, err
	}

	var warnings ows.Warnings
	si := caps.FirstChild(ows.OWS("ServiceIdentification"))
	if si == nil {
		return nil, ows.MissingElement("Capabilities", ows.OWS("ServiceIdentification"))
	}
	var md Metadata
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{"Title", &md.Title},
		{"ServiceType", &md.ServiceType},
		{"ServiceTypeVersion", &md.ServiceTypeVersion},
	} {
		v, ok := si.ChildText(ows.OWS(field.name))
		if !ok {
			return nil, ows.MissingElement("ServiceIdentification", ows.OWS(field.name))
		}
		*field.dst = v
	}
	md.Abstract, _ = si.ChildText(ows.OWS("Abstract"))

	s.mu.RLock()
	known := s.processes
	s.mu.RUnlock()

	next := ordered.New[string, *process.Process]()
	if po := caps.FirstChild(ows.WPS("ProcessOfferings")); po != nil {
		for i, pn := range po.Child(ows.WPS("Process")) {
			p, ws, err := process.ParseCapabilities(pn)
			warnings.Merge(fmt.Sprintf("ProcessOfferings/Process[%d]", i), ws)
			if err != nil {
				return warnings, err
			}
			if prev, ok := known.Get(p.Identifier()); ok {
				p = prev
			}
			next.Set(p.Identifier(), p)
		}
	} else {
		warnings.Add(ows.WarnElementMissing, "Capabilities", "no ProcessOfferings, the service offers no processes")
	}

	s.mu.Lock()
	s.metadata = md
	s.processes = next
	s.loaded = true
	s.mu.Unlock()
	return warnings, nil
}

// ParseDescribeProcess hydrates the processes described in a ProcessDescriptions
// response. A description for a process the capabilities never listed is a
// consistency error; identifiers that were requested but not returned are
// reported as warnings.
func (s *Service) ParseDescribeProcess(root *ows.Node, identifiers []string) (ows.Warnings, error) {
	if report := exceptionIn(root); report != nil {
		return nil, report
	}
	descs := root.Locate(ows.WPS("ProcessDescriptions"))
	if descs == nil {
		return nil, fmt.Errorf("%w: root element is %s", ErrNoDescriptions, root.QualifiedName())
	}
	if err := ows.CheckEnvelope(descs); err != nil {
		return nil, err
	}

	var warnings ows.Warnings
	seen := make(map[string]bool)
	for _, dn := range descs.Child(ows.WPS("ProcessDescription")) {
		id, ok := dn.ChildText(ows.OWS("Identifier"))
		if !ok || id == "" {
			return warnings, ows.MissingElement("ProcessDescription", ows.OWS("Identifier"))
		}
		p, ok := s.Process(id)
		if !ok {
			return warnings, fmt.Errorf("%w: %s is described but was not offered by %s", ErrUnknownProcess, id, s.url)
		}
		ws, err := p.ParseDescription(dn)
		warnings.Merge(id, ws)
		if err != nil {
			return warnings, err
		}
		seen[id] = true
	}
	for _, id := range identifiers {
		if !seen[id] {
			warnings.Add(ows.WarnElementMissing, id, "process was requested but not described")
		}
	}
	return warnings, nil
}

func exceptionIn(root *ows.Node) *ows.ExceptionReport {
	return ows.FindExceptionReport(root)
}
