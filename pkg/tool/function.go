// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Func is a handler over a typed argument struct.
type Func[Args any] func(ctx context.Context, args Args) (string, error)

// FunctionTool adapts a typed Go function into a Tool. The parameter schema
// is reflected from Args using json and jsonschema struct tags:
//
//	type Args struct {
//	    Question string `json:"user_question" jsonschema:"required,description=The user's question."`
//	}
type FunctionTool[Args any] struct {
	def Definition
	fn  Func[Args]
}

// NewFunction builds a FunctionTool named name.
func NewFunction[Args any](name, description string, fn Func[Args]) (*FunctionTool[Args], error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if description == "" {
		return nil, fmt.Errorf("tool %q: description is required", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q: handler is required", name)
	}

	schema, err := SchemaFor[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", name, err)
	}

	return &FunctionTool[Args]{
		def: Definition{Name: name, Description: description, Parameters: schema},
		fn:  fn,
	}, nil
}

// MustFunction is NewFunction that panics; for package-level tool tables.
func MustFunction[Args any](name, description string, fn Func[Args]) *FunctionTool[Args] {
	t, err := NewFunction(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *FunctionTool[Args]) Definition() Definition {
	return t.def
}

func (t *FunctionTool[Args]) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args Args
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	return t.fn(ctx, args)
}
