package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/auth"
)

func newTestLimiter(t *testing.T, limits ...Limit) (*Limiter, *time.Time) {
	t.Helper()
	l, err := New(Config{Enabled: true, Limits: limits})
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"disabled ignores limits", Config{Limits: []Limit{{Kind: "bogus"}}}, ""},
		{"valid", Config{Enabled: true, Limits: []Limit{{KindRequests, WindowHour, 10}}}, ""},
		{"unknown kind", Config{Enabled: true, Limits: []Limit{{"calls", WindowHour, 10}}}, "unknown kind"},
		{"unknown window", Config{Enabled: true, Limits: []Limit{{KindTokens, "week", 10}}}, "unknown window"},
		{"zero max", Config{Enabled: true, Limits: []Limit{{KindTokens, WindowDay, 0}}}, "max must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewDisabledIsNil(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, l)

	// nil limiter admits everything
	assert.True(t, l.Allow("anyone").Allowed)
	l.RecordTokens("anyone", 10)
	assert.Nil(t, l.Usage("anyone"))
	assert.Zero(t, l.Sweep())
}

func TestAllowRequestWindow(t *testing.T) {
	l, now := newTestLimiter(t, Limit{KindRequests, WindowMinute, 2})

	assert.True(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("a").Allowed)

	d := l.Allow("a")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "requests limit exceeded")
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.True(t, l.Allow("b").Allowed, "identities are independent")

	*now = now.Add(30 * time.Second)
	assert.Equal(t, 30*time.Second, l.Allow("a").RetryAfter)

	*now = now.Add(30 * time.Second)
	d = l.Allow("a")
	assert.True(t, d.Allowed, "window rolled over")
	assert.Equal(t, int64(1), d.Usages[0].Remaining)
}

func TestTokensCharged(t *testing.T) {
	l, now := newTestLimiter(t,
		Limit{KindRequests, WindowHour, 100},
		Limit{KindTokens, WindowHour, 1000},
	)

	require.True(t, l.Allow("a").Allowed)
	l.RecordTokens("a", 1500)

	d := l.Allow("a")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "tokens limit exceeded")

	usage := l.Usage("a")
	require.Len(t, usage, 2)
	assert.Equal(t, int64(1), usage[0].Used, "refused requests are not counted")
	assert.Equal(t, int64(1500), usage[1].Used)
	assert.Zero(t, usage[1].Remaining)

	*now = now.Add(time.Hour)
	assert.True(t, l.Allow("a").Allowed)
}

func TestSweep(t *testing.T) {
	l, now := newTestLimiter(t, Limit{KindRequests, WindowMinute, 5}, Limit{KindTokens, WindowDay, 5})
	l.Allow("a")
	l.Allow("b")

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep(), "only minute windows expired")
	assert.Zero(t, l.Sweep())
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, Limit{KindRequests, WindowMinute, 1})
	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := func(remote, subject string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		r.RemoteAddr = remote
		if subject != "" {
			r = r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{Subject: subject}))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w := req("10.0.0.1:5000", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = req("10.0.0.1:6000", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "same IP, different port")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "requests limit exceeded")

	assert.Equal(t, http.StatusOK, req("10.0.0.1:7000", "user-1").Code, "subject wins over address")
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.2:7000", "user-1").Code)
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "ip:192.0.2.7", ClientIdentity(r))

	r.RemoteAddr = "unix"
	assert.Equal(t, "ip:unix", ClientIdentity(r))

	r = r.WithContext(auth.ContextWithClaims(context.Background(), &auth.Claims{Subject: "u"}))
	assert.Equal(t, "sub:u", ClientIdentity(r))
}
