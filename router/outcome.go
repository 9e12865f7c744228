package router

import "github.com/viant/amgproxy/fault"

// Source tags.
const (
	SourceSession        = "session"
	SourceLokiDirect     = "loki-direct"
	SourceAMWDirect      = "amw-direct"
	SourceGrafanaProxy   = "grafana-datasource-proxy"
	SourceGrafanaDirect  = "grafana-direct"
	SourceDirectFallback = "direct-fallback"
	SourceFallback       = "fallback"
	SourceTemplate       = "template"
	SourcePlaceholder    = "placeholder"
	SourcePrometheus     = "prometheus"
)

type (
	// Attempt records one failed tier.
	Attempt struct {
		Source  string     `json:"source"`
		Kind    fault.Kind `json:"errorType"`
		Message string     `json:"error"`
	}

	// Outcome is the result of one inbound call.
	Outcome struct {
		OK       bool
		Source   string
		Payload  map[string]any
		Attempts []*Attempt
		Kind     fault.Kind
		Error    string
		Hint     string
	}
)

// Map renders the structured tool result.
func (o *Outcome) Map() map[string]any {
	ret := make(map[string]any, len(o.Payload)+6)
	for k, v := range o.Payload {
		ret[k] = v
	}
	ret["ok"] = o.OK
	ret["source"] = o.Source
	if !o.OK {
		ret["errorType"] = string(o.Kind)
		ret["error"] = o.Error
	}
	if o.Hint != "" {
		ret["hint"] = o.Hint
	}
	if len(o.Attempts) > 0 {
		ret["attempts"] = o.Attempts
	}
	return ret
}

// chain accumulates the attempts of one call.
type chain struct {
	attempts []*Attempt
	last     error
}

func (c *chain) fail(source string, err error) {
	c.attempts = append(c.attempts, &Attempt{Source: source, Kind: fault.KindOf(err), Message: err.Error()})
	c.last = err
}

func (c *chain) success(source string, payload map[string]any) *Outcome {
	return &Outcome{OK: true, Source: source, Payload: payload, Attempts: c.attempts}
}

func (c *chain) failure(source string, err error, payload map[string]any) *Outcome {
	return &Outcome{
		Source:   source,
		Payload:  payload,
		Attempts: c.attempts,
		Kind:     fault.KindOf(err),
		Error:    describe(err),
		Hint:     fault.Hint(err),
	}
}

// describe drops the op and kind prefix of a fault error, which the outcome
// already carries as source and errorType.
func describe(err error) string {
	fErr, ok := err.(*fault.Error)
	if !ok || fErr.Message == "" {
		return err.Error()
	}
	if fErr.Err != nil {
		return fErr.Message + ": " + fErr.Err.Error()
	}
	return fErr.Message
}

// invalid reports an argument validation failure.
func invalid(source, message string) *Outcome {
	return &Outcome{Source: source, Kind: fault.InvalidArgument, Error: message}
}

// errorInfo describes err for payload fields such as grafanaError.
func errorInfo(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{"type": string(fault.KindOf(err)), "error": err.Error()}
}
