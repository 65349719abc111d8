package tools

import (
	"fmt"
)

// Registry operation registry.
// It is built once and never mutated, so it is safe for concurrent use without locking.
type Registry struct {
	specs []OperationSpec
	index map[string]int
}

// NewRegistry creates a registry from the given operations, keeping their order
func NewRegistry(specs ...OperationSpec) (*Registry, error) {
	r := &Registry{
		specs: make([]OperationSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("operation name cannot be empty")
		}
		if spec.Compute == nil {
			return nil, fmt.Errorf("operation %s has no compute function", spec.Name)
		}
		if spec.Format == nil {
			return nil, fmt.Errorf("operation %s has no format function", spec.Name)
		}
		if _, exists := r.index[spec.Name]; exists {
			return nil, fmt.Errorf("operation %s already exists", spec.Name)
		}

		spec.Parameters = append([]ParameterDef(nil), spec.Parameters...)
		r.index[spec.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}

	return r, nil
}

// NewDefaultRegistry creates a registry holding all calculator operations
func NewDefaultRegistry() *Registry {
	registry, err := NewRegistry(CalculatorOperations()...)
	if err != nil {
		// the calculator table is static; a failure here is a programming error
		panic(fmt.Sprintf("invalid calculator operation table: %v", err))
	}
	return registry
}

// Lookup gets an operation by exact, case-sensitive name
func (r *Registry) Lookup(name string) (OperationSpec, bool) {
	i, exists := r.index[name]
	if !exists {
		return OperationSpec{}, false
	}
	return r.specs[i], true
}

// List lists all operations in registration order
func (r *Registry) List() []OperationSpec {
	specs := make([]OperationSpec, len(r.specs))
	for i, spec := range r.specs {
		spec.Parameters = append([]ParameterDef(nil), spec.Parameters...)
		specs[i] = spec
	}
	return specs
}

// Names lists operation names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, spec := range r.specs {
		names[i] = spec.Name
	}
	return names
}

// Len returns the number of registered operations
func (r *Registry) Len() int {
	return len(r.specs)
}

// DiscoveryEntry capability description of one operation
type DiscoveryEntry struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Parameters  map[string]ParameterSchema `json:"parameters"`
}

// ParameterSchema discovery description of one parameter
type ParameterSchema struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Discovery describes all operations for agent runtimes
func (r *Registry) Discovery() []DiscoveryEntry {
	entries := make([]DiscoveryEntry, 0, len(r.specs))
	for _, spec := range r.specs {
		params := make(map[string]ParameterSchema, len(spec.Parameters))
		for _, p := range spec.Parameters {
			params[p.Name] = ParameterSchema{
				Type:        p.Type,
				Required:    p.Required,
				Description: p.Description,
			}
		}
		entries = append(entries, DiscoveryEntry{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}
	return entries
}

// ToolSchema tool schema (for Function Calling)
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema function schema
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// GetSchemas gets all operation schemas for Function Calling
func (r *Registry) GetSchemas() []ToolSchema {
	schemas := make([]ToolSchema, 0, len(r.specs))
	for _, spec := range r.specs {
		schemas = append(schemas, ToolSchema{
			Type: "function",
			Function: FunctionSchema{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  buildParameterSchema(spec.Parameters),
			},
		})
	}
	return schemas
}

// buildParameterSchema builds parameter schema
func buildParameterSchema(params []ParameterDef) map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for _, param := range params {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
