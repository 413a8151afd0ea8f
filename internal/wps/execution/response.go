package execution

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

// update is what one response document contributes to an execution.
type update struct {
	status         Status
	message        string
	percent        int // negative keeps the current value
	creationTime   time.Time
	statusLocation string
	report         *ows.ExceptionReport
	outputs        []*data.Result
	warnings       ows.Warnings
}

var statusElements = []Status{StatusAccepted, StatusStarted, StatusPaused, StatusSucceeded, StatusFailed}

// parseResponse reads an ExecuteResponse or ExceptionReport. Documents that
// are neither, or that fail envelope validation, map to StatusUnknown.
func parseResponse(body []byte, outputs *process.Outputs) update {
	root, err := ows.Parse(body)
	if err != nil {
		return update{status: StatusUnknown, percent: -1, message: fmt.Sprintf("Unreadable status document: %v", err)}
	}
	u := readResponse(root, outputs)
	u.warnings = append(u.warnings, root.Warnings()...)
	return u
}

func readResponse(root *ows.Node, outputs *process.Outputs) update {
	resp := root.Locate(ows.WPS("ExecuteResponse"))
	if resp == nil {
		if report := ows.FindExceptionReport(root); report != nil {
			return update{status: StatusFailed, percent: -1, message: report.Summary(), report: report}
		}
		return update{status: StatusUnknown, percent: -1,
			message: fmt.Sprintf("Unexpected status document %s", root.QualifiedName())}
	}
	if err := ows.CheckEnvelope(resp); err != nil {
		return update{status: StatusUnknown, percent: -1, message: err.Error()}
	}

	u := update{percent: -1}
	u.statusLocation, _ = resp.Attr("statusLocation")

	st := resp.FirstChild(ows.WPS("Status"))
	if st == nil {
		u.status = StatusUnknown
		u.message = "ExecuteResponse carries no Status"
		return u
	}
	if raw, ok := st.Attr("creationTime"); ok {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			u.warnings.Add(ows.WarnInvalidValue, "Status", "creationTime %q is not an RFC 3339 timestamp", raw)
		} else {
			u.creationTime = t
		}
	}

	var node *ows.Node
	for _, s := range statusElements {
		if node = st.FirstChild(ows.WPS(string(s))); node != nil {
			u.status = s
			break
		}
	}

	switch u.status {
	case StatusAccepted:
		u.percent = 0
		u.message = node.Text()
	case StatusStarted, StatusPaused:
		u.message = node.Text()
		u.percent = percentOf(node, &u.warnings)
	case StatusSucceeded:
		u.percent = 100
		u.message = node.Text()
		u.outputs = decodeOutputs(resp, outputs, &u.warnings)
	case StatusFailed:
		if report := node.Locate(ows.OWS("ExceptionReport")); report != nil {
			u.report = ows.ParseExceptionReport(report)
			u.message = u.report.Summary()
		} else {
			u.message = node.Text()
		}
	default:
		u.status = StatusUnknown
		u.message = "Status carries none of the known process states"
	}
	return u
}

func percentOf(n *ows.Node, warnings *ows.Warnings) int {
	raw, ok := n.FirstAttr("percentCompleted", "percentComplited")
	if !ok {
		return -1
	}
	p, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || p < 0 || p > 100 {
		warnings.Add(ows.WarnInvalidValue, "Status", "percentCompleted %q is not between 0 and 100", raw)
		return -1
	}
	return p
}

// decodeOutputs reads ProcessOutputs. An output that fails to decode is
// dropped with a warning so the others stay available.
func decodeOutputs(resp *ows.Node, outputs *process.Outputs, warnings *ows.Warnings) []*data.Result {
	po := resp.FirstChild(ows.WPS("ProcessOutputs"))
	if po == nil {
		warnings.Add(ows.WarnElementMissing, "ExecuteResponse", "succeeded without ProcessOutputs")
		return nil
	}
	var results []*data.Result
	for i, on := range po.Child(ows.WPS("Output")) {
		id, _ := on.ChildText(ows.OWS("Identifier"))
		desc, ok := outputs.Get(id)
		if !ok {
			warnings.Add(ows.WarnInvalidValue, id, "output is not described by the process")
		}
		res, ws, err := data.DecodeOutput(on, desc)
		warnings.Merge(fmt.Sprintf("ProcessOutputs/Output[%d]", i), ws)
		if err != nil {
			warnings.Add(ows.WarnInvalidValue, id, "output dropped: %v", err)
			continue
		}
		results = append(results, res)
	}
	return results
}
