package backend

import (
	"sort"

	"github.com/viant/mcp-protocol/schema"
)

// Arguments are tool call arguments keyed by parameter name.
type Arguments map[string]any

// Registry maps a tool name to the parameter names it accepts.
type Registry struct {
	params map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{params: map[string]map[string]struct{}{}}
}

// Register records the accepted parameter names for operation.
func (r *Registry) Register(operation string, names ...string) {
	accepted, ok := r.params[operation]
	if !ok {
		accepted = map[string]struct{}{}
		r.params[operation] = accepted
	}
	for _, name := range names {
		accepted[name] = struct{}{}
	}
}

// Accepted returns the sorted parameter names known for operation.
func (r *Registry) Accepted(operation string) []string {
	var ret []string
	for name := range r.params[operation] {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Operations returns the sorted registered operation names.
func (r *Registry) Operations() []string {
	var ret []string
	for name := range r.params {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Filter drops arguments the operation does not accept. With no entry, or an
// empty one, every argument is forwarded.
func (r *Registry) Filter(operation string, args Arguments) Arguments {
	accepted := r.params[operation]
	if len(accepted) == 0 {
		return args
	}
	ret := make(Arguments, len(args))
	for key, value := range args {
		if _, ok := accepted[key]; ok {
			ret[key] = value
		}
	}
	return ret
}

func newRegistry(result *schema.ListToolsResult) *Registry {
	ret := NewRegistry()
	for _, tool := range result.Tools {
		var names []string
		for name := range tool.InputSchema.Properties {
			names = append(names, name)
		}
		ret.Register(tool.Name, names...)
	}
	return ret
}
