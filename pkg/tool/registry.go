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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/observability"
)

// Registry is a name-keyed dispatch table. Definitions are reported in
// registration order so the model sees a stable tool list.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*Validator
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), validators: make(map[string]*Validator)}
}

// Register adds t. It fails with *DuplicateToolError if the name is taken and
// rejects parameter schemas that do not resolve.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("cannot register nil tool")
	}
	def := t.Definition()
	if def.Name == "" {
		return errors.New("cannot register tool without a name")
	}
	validator, err := NewValidator(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %q has an invalid parameter schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	r.tools[def.Name] = t
	r.validators[def.Name] = validator
	r.order = append(r.order, def.Name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch validates call against the tool's schema and invokes it.
//
// Errors are always one of *UnknownToolError, *InvalidArgumentsError or
// *ToolExecutionError, so callers can turn them into tool-result text.
func (r *Registry) Dispatch(ctx context.Context, call Call) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	validator := r.validators[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", &UnknownToolError{Name: call.Name, Available: r.Names()}
	}

	args, err := call.ArgumentsMap()
	if err != nil {
		return "", &InvalidArgumentsError{
			Tool:   call.Name,
			Fields: []FieldError{{Reason: fmt.Sprintf("arguments are not a JSON object: %v", err)}},
		}
	}
	if fieldErrs := validator.Validate(args); len(fieldErrs) > 0 {
		return "", &InvalidArgumentsError{Tool: call.Name, Fields: fieldErrs}
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, call.Name),
			attribute.String(observability.AttrToolCallID, call.ID),
		),
	)

	start := time.Now()
	result, err := t.Call(ctx, call.Arguments)
	elapsed := time.Since(start)

	observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, elapsed, err)
	observability.EndSpan(span, err)

	if err != nil {
		slog.Warn("Tool execution failed", "tool", call.Name, "call_id", call.ID, "duration", elapsed, "error", err)
		return "", &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
	}
	slog.Debug("Tool executed", "tool", call.Name, "call_id", call.ID, "duration", elapsed, "bytes", len(result))
	return result, nil
}
