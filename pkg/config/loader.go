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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/fosrc/pkg/config/provider"
)

// SourceEnvironment names configs assembled by FromEnv.
const SourceEnvironment = "environment"

// Loader turns a provider's bytes into a validated Config and re-applies it
// when the source changes.
type Loader struct {
	provider provider.Provider
	source   string
	onChange func(*Config)
	current  *Config
}

type LoaderOption func(*Loader)

// WithOnChange registers fn for every reload that produced a different,
// valid config.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p, source: string(p.Type())}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve loads the config file at path, or assembles one from the
// environment when path is empty. The returned Loader is nil in the
// environment case, since there is nothing to watch.
func Resolve(ctx context.Context, path string, opts ...LoaderOption) (*Config, *Loader, error) {
	if strings.TrimSpace(path) == "" {
		cfg := FromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s configuration: %w", SourceEnvironment, err)
		}
		slog.Debug("Configured from environment", "provider", cfg.LLM.Provider, "vector", cfg.Vector.Type)
		return cfg, nil, nil
	}
	return LoadFile(ctx, path, opts...)
}

// LoadFile loads the YAML or JSON file at path.
func LoadFile(ctx context.Context, path string, opts ...LoaderOption) (*Config, *Loader, error) {
	p, err := provider.New(provider.ProviderConfig{Type: provider.TypeFile, Path: path})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open config source: %w", err)
	}
	l := NewLoader(p, opts...)
	l.source = path

	cfg, err := l.Load(ctx)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, l, nil
}

// Source is the file path, or the provider type when no path is known.
func (l *Loader) Source() string {
	return l.source
}

// Load reads the provider once and makes the result the current config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.source, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.source, err)
	}
	l.current = cfg
	return cfg, nil
}

// Parse runs raw YAML or JSON through env expansion, decoding, defaults and
// validation.
func Parse(data []byte) (*Config, error) {
	raw, err := parseBytes(data)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := decode(expand(raw).(map[string]any), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Watch blocks until ctx is done, reloading on each change notification.
// Edits that fail to parse or validate leave the current config in place.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.source, err)
	}
	if changes == nil {
		slog.Info("Config source does not support watching", "source", l.source)
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	previous := l.current
	cfg, err := l.Load(ctx)
	if err != nil {
		slog.Error("Config reload rejected; keeping the running config", "source", l.source, "error", err)
		return
	}
	if previous != nil && reflect.DeepEqual(previous, cfg) {
		slog.Debug("Config unchanged after edit", "source", l.source)
		return
	}
	slog.Info("Configuration reloaded", "source", l.source)
	if l.onChange != nil {
		l.onChange(cfg)
	}
}

func (l *Loader) Close() error {
	return l.provider.Close()
}

func parseBytes(data []byte) (map[string]any, error) {
	var doc map[string]any
	yamlErr := yaml.Unmarshal(data, &doc)
	if yamlErr != nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("config is neither YAML nor JSON: %w", yamlErr)
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func decode(input map[string]any, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// expand substitutes ${VAR}, ${VAR:-default} and $VAR in every string of a
// decoded document.
func expand(v any) any {
	switch val := v.(type) {
	case string:
		return os.Expand(val, lookupVar)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expand(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expand(item)
		}
		return out
	default:
		return v
	}
}

func lookupVar(name string) string {
	if key, def, ok := strings.Cut(name, ":-"); ok {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return def
	}
	if !isVarName(name) {
		// $1, $$ and the like are left as written.
		return "$" + name
	}
	return os.Getenv(name)
}

func isVarName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
