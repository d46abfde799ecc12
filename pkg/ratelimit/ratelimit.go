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

// Package ratelimit enforces per-client quotas on API requests and model
// tokens over fixed time windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Window is the length of a quota period.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Kind is what a limit counts.
type Kind string

const (
	KindRequests Kind = "requests"
	KindTokens   Kind = "tokens"
)

// Limit caps one kind of usage within one window.
type Limit struct {
	Kind   Kind   `yaml:"kind"`
	Window Window `yaml:"window"`
	Max    int64  `yaml:"max"`
}

// Config enables quotas. Identities are JWT subjects when auth is on and
// client addresses otherwise.
type Config struct {
	Enabled bool    `yaml:"enabled,omitempty"`
	Limits  []Limit `yaml:"limits,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Enabled && len(c.Limits) == 0 {
		c.Limits = []Limit{
			{Kind: KindRequests, Window: WindowMinute, Max: 30},
			{Kind: KindTokens, Window: WindowDay, Max: 200000},
		}
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	for i, l := range c.Limits {
		if l.Kind != KindRequests && l.Kind != KindTokens {
			return fmt.Errorf("limits[%d]: unknown kind %q (want requests or tokens)", i, l.Kind)
		}
		if l.Window.Duration() == 0 {
			return fmt.Errorf("limits[%d]: unknown window %q (want minute, hour or day)", i, l.Window)
		}
		if l.Max <= 0 {
			return fmt.Errorf("limits[%d]: max must be positive, got %d", i, l.Max)
		}
	}
	return nil
}

// Usage is one limit's state for one identity.
type Usage struct {
	Kind      Kind      `json:"kind"`
	Window    Window    `json:"window"`
	Used      int64     `json:"used"`
	Max       int64     `json:"max"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Reason     string
	Usages     []Usage
	RetryAfter time.Duration
}

type key struct {
	id    string
	limit int
}

type record struct {
	used      int64
	windowEnd time.Time
}

// Limiter tracks usage in memory. A nil *Limiter allows everything.
type Limiter struct {
	limits []Limit
	now    func() time.Time

	mu      sync.Mutex
	records map[key]*record
}

// New returns nil when cfg is disabled.
func New(cfg Config) (*Limiter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	return &Limiter{
		limits:  cfg.Limits,
		now:     time.Now,
		records: make(map[key]*record),
	}, nil
}

// current returns the live record for k, starting a new window when the
// previous one ended. Callers hold l.mu.
func (l *Limiter) current(k key, now time.Time) *record {
	r, ok := l.records[k]
	if !ok || !now.Before(r.windowEnd) {
		r = &record{windowEnd: now.Add(l.limits[k.limit].Window.Duration())}
		l.records[k] = r
	}
	return r
}

// Allow admits one request for id unless any limit is used up, and counts
// it against the request limits when admitted.
func (l *Limiter) Allow(id string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	d := Decision{Allowed: true}
	for i, lim := range l.limits {
		r := l.current(key{id, i}, now)
		if r.used >= lim.Max {
			if d.Allowed {
				d.Reason = fmt.Sprintf("%s limit exceeded for %s window (%d/%d)", lim.Kind, lim.Window, r.used, lim.Max)
			}
			d.Allowed = false
			if wait := r.windowEnd.Sub(now); wait > d.RetryAfter {
				d.RetryAfter = wait
			}
		}
	}
	if d.Allowed {
		for i, lim := range l.limits {
			if lim.Kind == KindRequests {
				l.current(key{id, i}, now).used++
			}
		}
	}
	d.Usages = l.usagesLocked(id, now)
	return d
}

// RecordTokens charges model tokens to id after the fact. A request may
// overshoot a token limit; the next one is then refused.
func (l *Limiter) RecordTokens(id string, tokens int) {
	if l == nil || tokens <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for i, lim := range l.limits {
		if lim.Kind == KindTokens {
			l.current(key{id, i}, now).used += int64(tokens)
		}
	}
}

func (l *Limiter) Usage(id string) []Usage {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usagesLocked(id, l.now())
}

func (l *Limiter) usagesLocked(id string, now time.Time) []Usage {
	out := make([]Usage, len(l.limits))
	for i, lim := range l.limits {
		r := l.current(key{id, i}, now)
		out[i] = Usage{
			Kind:      lim.Kind,
			Window:    lim.Window,
			Used:      r.used,
			Max:       lim.Max,
			Remaining: max(lim.Max-r.used, 0),
			ResetsAt:  r.windowEnd,
		}
	}
	return out
}

// Sweep drops records whose window has ended and returns how many went.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, r := range l.records {
		if !now.Before(r.windowEnd) {
			delete(l.records, k)
			n++
		}
	}
	return n
}
