package tools

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

// Group names used when listing tools.
const (
	GroupEUtilities = "E-utilities"
	GroupHelpers    = "Helper tools"
)

// Parameter types as they appear in JSON Schema.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// ErrMissingArguments reports a call without its required arguments.
var ErrMissingArguments = errors.New("missing required arguments")

// Parameter describes one tool argument.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`

	// Wire is the E-utilities query parameter; empty means same as Name.
	Wire string `json:"-" yaml:"-"`
	// Separator joins array values on the wire; empty means a comma.
	Separator string `json:"-" yaml:"-"`
	// Local parameters steer the dispatcher and are never sent.
	Local bool `json:"-" yaml:"-"`
}

// WireName returns the query parameter name.
func (p Parameter) WireName() string {
	if p.Wire != "" {
		return p.Wire
	}
	return p.Name
}

// Tool is a catalog entry.
type Tool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Group       string         `json:"group" yaml:"group"`
	Operation   core.Operation `json:"operation,omitempty" yaml:"operation,omitempty"`
	Parameters  []Parameter    `json:"parameters" yaml:"parameters"`
	Required    []string       `json:"required,omitempty" yaml:"required,omitempty"`

	// AnyOf lists alternative required sets; one must be satisfied.
	AnyOf [][]string `json:"any_of,omitempty" yaml:"any_of,omitempty"`
}

// Parameter returns the named parameter.
func (t Tool) Parameter(name string) (Parameter, bool) {
	for _, param := range t.Parameters {
		if param.Name == name {
			return param, true
		}
	}
	return Parameter{}, false
}

// IsRequired reports whether the parameter is unconditionally required.
func (t Tool) IsRequired(name string) bool {
	for _, required := range t.Required {
		if required == name {
			return true
		}
	}
	return false
}

// Validate checks required arguments. Type coercion errors surface when
// arguments are converted to wire parameters.
func (t Tool) Validate(args core.Params) error {
	var missing []string
	for _, name := range t.Required {
		if !args.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for %s: %s", ErrMissingArguments, t.Name, strings.Join(missing, ", "))
	}

	if len(t.AnyOf) == 0 {
		return nil
	}
	alternatives := make([]string, 0, len(t.AnyOf))
	for _, set := range t.AnyOf {
		satisfied := true
		for _, name := range set {
			if !args.Has(name) {
				satisfied = false
				break
			}
		}
		if satisfied {
			return nil
		}
		alternatives = append(alternatives, strings.Join(set, "+"))
	}
	return fmt.Errorf("%w for %s: provide one of %s", ErrMissingArguments, t.Name, strings.Join(alternatives, " or "))
}

// WireParams converts arguments into E-utilities query parameters.
// Defaults are applied for absent arguments; unknown arguments are dropped.
func (t Tool) WireParams(args core.Params) (map[string]string, error) {
	out := make(map[string]string, len(t.Parameters))
	for _, param := range t.Parameters {
		if param.Local {
			continue
		}
		var (
			value string
			err   error
		)
		if args.Has(param.Name) {
			value, err = wireValue(param, args)
		} else if param.Default != nil {
			value, err = wireValue(param, core.Params{param.Name: param.Default})
		}
		if err != nil {
			return nil, err
		}
		if value != "" {
			out[param.WireName()] = value
		}
	}
	return out, nil
}

// InputSchema renders the tool's JSON Schema.
func (t Tool) InputSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	for _, param := range t.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Type == TypeArray {
			prop["items"] = map[string]any{"type": TypeString}
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	schema["required"] = required
	if len(t.AnyOf) > 0 {
		anyOf := make([]any, 0, len(t.AnyOf))
		for _, set := range t.AnyOf {
			anyOf = append(anyOf, map[string]any{"required": set})
		}
		schema["anyOf"] = anyOf
	}
	return schema
}

// Catalog returns every tool in listing order.
func Catalog() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns a tool by name.
func Lookup(name string) (Tool, bool) {
	name = strings.TrimSpace(name)
	for _, tool := range catalog {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// Names returns every tool name in listing order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		names = append(names, tool.Name)
	}
	return names
}

// Grouped returns tools keyed by group, preserving listing order within a group.
func Grouped() map[string][]Tool {
	out := make(map[string][]Tool)
	for _, tool := range catalog {
		out[tool.Group] = append(out[tool.Group], tool)
	}
	return out
}

// Groups returns the group names in display order.
func Groups() []string {
	return []string{GroupEUtilities, GroupHelpers}
}

// ParameterNames returns the tool's parameters sorted by name.
func (t Tool) ParameterNames() []string {
	names := make([]string, 0, len(t.Parameters))
	for _, param := range t.Parameters {
		names = append(names, param.Name)
	}
	sort.Strings(names)
	return names
}

func wireValue(param Parameter, args core.Params) (string, error) {
	switch param.Type {
	case TypeInteger:
		n, err := args.Int(param.Name, 0)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case TypeBoolean:
		if args.Bool(param.Name) {
			return "y", nil
		}
		return "", nil
	case TypeArray:
		separator := param.Separator
		if separator == "" {
			separator = ","
		}
		return strings.Join(args.List(param.Name), separator), nil
	default:
		return args.String(param.Name), nil
	}
}
