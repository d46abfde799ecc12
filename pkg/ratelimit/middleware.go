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

package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/kadirpekel/fosrc/pkg/auth"
)

// IdentifyFunc names the client a request is charged to.
type IdentifyFunc func(r *http.Request) string

// ClientIdentity uses the authenticated subject when present, otherwise the
// client's IP address.
func ClientIdentity(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware refuses requests over quota with 429 and reports the tightest
// remaining request budget in X-RateLimit-* headers. A nil limiter passes
// everything through.
func Middleware(l *Limiter, identify IdentifyFunc) func(http.Handler) http.Handler {
	if identify == nil {
		identify = ClientIdentity
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(identify(r))
			setHeaders(w, d.Usages)

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": d.Reason, "usage": d.Usages})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, usages []Usage) {
	var tightest *Usage
	for i := range usages {
		u := &usages[i]
		if u.Kind == KindRequests && (tightest == nil || u.Remaining < tightest.Remaining) {
			tightest = u
		}
	}
	if tightest == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(tightest.Max, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(tightest.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(tightest.ResetsAt.Unix(), 10))
}
