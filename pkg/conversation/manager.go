// Package conversation manages chat sessions: each question runs through the
// tool loop with the recent window and rolling summary, and the session is
// committed only once the turn fully succeeds.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/fosrc/pkg/agent"
	"github.com/kadirpekel/fosrc/pkg/memory"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/observability"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrTooManySessions = errors.New("too many active sessions")
)

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// Config bounds the session store.
type Config struct {
	TTL         time.Duration `yaml:"ttl,omitempty"`
	MaxSessions int           `yaml:"max_sessions,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
}

func (c *Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("session max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	return nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID        string          `json:"id"`
	Messages  []model.Message `json:"messages"`
	Summary   string          `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Reply is the outcome of one question.
type Reply struct {
	SessionID string      `json:"session_id"`
	Answer    string      `json:"answer"`
	Turn      *agent.Turn `json:"-"`
	Compacted bool        `json:"compacted"`
}

type session struct {
	id string
	// busy is a one-slot semaphore serializing turns.
	busy chan struct{}

	mu      sync.Mutex
	state   *State
	created time.Time
	updated time.Time
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.Clone()
	return Snapshot{ID: s.id, Messages: st.Messages, Summary: st.Summary, CreatedAt: s.created, UpdatedAt: s.updated}
}

// Manager owns all live sessions.
type Manager struct {
	loop      *agent.Loop
	compactor *memory.Compactor
	system    string
	cfg       Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a manager. system is the tool-loop instruction prepended
// to every session turn, ahead of the summary prompt.
func NewManager(loop *agent.Loop, compactor *memory.Compactor, system string, cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{
		loop:      loop,
		compactor: compactor,
		system:    system,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Create starts a session seeded with the greeting.
func (m *Manager) Create() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.sweepLocked(m.now())
		if len(m.sessions) >= m.cfg.MaxSessions {
			return Snapshot{}, ErrTooManySessions
		}
	}

	now := m.now()
	s := &session{
		id:      uuid.NewString(),
		busy:    make(chan struct{}, 1),
		state:   NewState(),
		created: now,
		updated: now,
	}
	m.sessions[s.id] = s
	slog.Debug("Session created", "session", s.id)
	return s.snapshot(), nil
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) expired(s *session, now time.Time) bool {
	if m.cfg.TTL <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.updated) > m.cfg.TTL
}

func (m *Manager) Get(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	m.sweepLocked(m.now())
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Reset restores the greeting and clears the summary. It waits for an
// in-flight turn to finish.
func (m *Manager) Reset(ctx context.Context, id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := acquire(ctx, s); err != nil {
		return Snapshot{}, err
	}
	defer release(s)

	s.mu.Lock()
	s.state.Reset()
	s.updated = m.now()
	s.mu.Unlock()
	return s.snapshot(), nil
}

// Ask runs one turn in session id. Turns in the same session run one at a
// time. The session is left untouched when the turn fails or ctx is
// cancelled.
func (m *Manager) Ask(ctx context.Context, id, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(sessionAttr(id))

	if err := acquire(ctx, s); err != nil {
		return nil, err
	}
	defer release(s)

	s.mu.Lock()
	next := s.state.Clone()
	s.mu.Unlock()

	next.Messages = append(next.Messages, model.UserMessage(question))

	prompt := make([]model.Message, 0, m.compactor.Window()+2)
	if m.system != "" {
		prompt = append(prompt, model.SystemMessage(m.system))
	}
	prompt = append(prompt, model.SystemMessage(ChatPrompt(next.Summary)))
	prompt = append(prompt, next.Window(m.compactor.Window())...)

	turn, err := m.loop.Run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	next.Messages = append(next.Messages, model.AssistantMessage(turn.Answer))

	reply := &Reply{SessionID: id, Answer: turn.Answer, Turn: turn}

	if m.compactor.ShouldCompact(len(next.Messages)) {
		summary, err := m.compactor.Compact(ctx, next.Summary, next.Messages)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			slog.Warn("Compaction failed; keeping previous summary", "session", id, "error", err)
		default:
			next.Summary = summary
			reply.Compacted = true
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = next
	s.updated = m.now()
	s.mu.Unlock()

	slog.Debug("Session turn committed", "session", id, "messages", len(next.Messages),
		"iterations", turn.Iteration, "compacted", reply.Compacted)
	return reply, nil
}

func acquire(ctx context.Context, s *session) error {
	select {
	case s.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(s *session) { <-s.busy }

// Sweep drops sessions idle longer than the TTL and returns how many went.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *Manager) sweepLocked(now time.Time) int {
	n := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		slog.Debug("Expired idle sessions", "count", n)
	}
	return n
}

// MoveTo hands every live session to dst, which then serves them with its
// own loop and compactor. Turns already running finish against the same
// session. Returns how many sessions moved.
func (m *Manager) MoveTo(dst *Manager) int {
	if m == dst {
		return 0
	}
	m.mu.Lock()
	moved := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()
	for id, s := range moved {
		dst.sessions[id] = s
	}
	return len(moved)
}

// Janitor sweeps expired sessions every interval until ctx is done.
func (m *Manager) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// sessionAttr tags spans with the session id.
func sessionAttr(id string) attribute.KeyValue {
	return attribute.String(observability.AttrSessionID, id)
}
