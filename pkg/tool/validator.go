package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator checks tool arguments against a parameter schema as produced by
// SchemaFor and reports each offending argument by path, ordered by path.
//
// Null is accepted for optional properties and treated as absent. Null array
// elements are skipped when the item schema admits null.
type Validator struct {
	root     *jsonschema.Resolved
	props    map[string]*property
	required []string
	closed   bool
}

type property struct {
	schema        *jsonschema.Resolved
	items         *jsonschema.Resolved
	nullable      bool
	nullableItems bool
}

// NewValidator resolves params. A nil schema accepts any object.
func NewValidator(params map[string]any) (*Validator, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	root, err := resolve(params)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		root:   root,
		props:  map[string]*property{},
		closed: params["additionalProperties"] == false,
	}
	for _, r := range asSlice(params["required"]) {
		if name, ok := r.(string); ok {
			v.required = append(v.required, name)
		}
	}

	props, _ := params["properties"].(map[string]any)
	for name, raw := range props {
		schema, _ := raw.(map[string]any)
		if schema == nil {
			continue
		}
		p := &property{nullable: admitsNull(schema)}
		if p.schema, err = resolve(schema); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		if items, ok := schema["items"].(map[string]any); ok {
			p.nullableItems = admitsNull(items)
			if p.items, err = resolve(items); err != nil {
				return nil, fmt.Errorf("property %q items: %w", name, err)
			}
		}
		v.props[name] = p
	}
	return v, nil
}

// Validate returns every violation in args.
func (v *Validator) Validate(args map[string]any) []FieldError {
	var errs []FieldError
	clean := make(map[string]any, len(args))

	for name, value := range args {
		p, declared := v.props[name]
		if !declared {
			if v.closed {
				errs = append(errs, FieldError{Field: name, Reason: "is not an allowed parameter"})
			} else {
				clean[name] = value
			}
			continue
		}
		if value == nil && !p.nullable {
			continue
		}
		checked := p.withoutNullItems(value)
		if err := p.schema.Validate(checked); err != nil {
			errs = append(errs, p.locate(name, value, err)...)
			continue
		}
		clean[name] = checked
	}

	for _, name := range v.required {
		if _, ok := clean[name]; ok {
			continue
		}
		if value, present := args[name]; present && value != nil {
			continue
		}
		errs = append(errs, FieldError{Field: name, Reason: "is required"})
	}

	if len(errs) == 0 {
		if err := v.root.Validate(clean); err != nil {
			errs = append(errs, FieldError{Reason: reason(err)})
		}
	}

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func (p *property) withoutNullItems(value any) any {
	arr, ok := value.([]any)
	if !ok || !p.nullableItems {
		return value
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

// locate narrows a property failure to the offending array elements when it
// can.
func (p *property) locate(name string, value any, err error) []FieldError {
	if arr, ok := value.([]any); ok && p.items != nil {
		var errs []FieldError
		for i, item := range arr {
			if item == nil && p.nullableItems {
				continue
			}
			if itemErr := p.items.Validate(item); itemErr != nil {
				errs = append(errs, FieldError{Field: name + "[" + strconv.Itoa(i) + "]", Reason: reason(itemErr)})
			}
		}
		if len(errs) > 0 {
			return errs
		}
	}
	return []FieldError{{Field: name, Reason: reason(err)}}
}

func resolve(m map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return s.Resolve(nil)
}

// reason drops the schema-location prefixes the validator wraps errors in.
func reason(err error) string {
	msg := err.Error()
	for strings.HasPrefix(msg, "validating ") {
		i := strings.Index(msg, ": ")
		if i < 0 {
			break
		}
		msg = msg[i+2:]
	}
	return msg
}

func admitsNull(schema map[string]any) bool {
	switch t := schema["type"].(type) {
	case string:
		return t == "null"
	case []any:
		for _, x := range t {
			if x == "null" {
				return true
			}
		}
	case []string:
		for _, x := range t {
			if x == "null" {
				return true
			}
		}
	}
	for _, key := range []string{"oneOf", "anyOf"} {
		for _, alt := range asSlice(schema[key]) {
			if m, ok := alt.(map[string]any); ok && admitsNull(m) {
				return true
			}
		}
	}
	return false
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}
