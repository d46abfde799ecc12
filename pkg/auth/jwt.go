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

package auth

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// KeySource yields the current verification keys.
type KeySource func(ctx context.Context) (jwk.Set, error)

// Validator verifies JWT signatures, expiry, issuer and audience.
type Validator struct {
	keys     KeySource
	issuer   string
	audience string
}

// NewJWKSValidator fetches the JWKS once to fail fast, then keeps it cached
// and refreshed in the background for key rotation.
func NewJWKSValidator(ctx context.Context, cfg Config) (*Validator, error) {
	cfg.SetDefaults()
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	url := cfg.JWKSURL
	return NewValidator(func(ctx context.Context) (jwk.Set, error) {
		return cache.Get(ctx, url)
	}, cfg.Issuer, cfg.Audience), nil
}

// NewValidator builds a validator over an arbitrary key source.
func NewValidator(keys KeySource, issuer, audience string) *Validator {
	return &Validator{keys: keys, issuer: issuer, audience: audience}
}

// StaticKeys serves a fixed key set.
func StaticKeys(set jwk.Set) KeySource {
	return func(context.Context) (jwk.Set, error) { return set, nil }
}

var registered = map[string]bool{
	jwt.SubjectKey: true, jwt.IssuerKey: true, jwt.AudienceKey: true,
	jwt.ExpirationKey: true, jwt.IssuedAtKey: true, jwt.NotBeforeKey: true,
	jwt.JwtIDKey: true, "email": true, "role": true,
}

// ValidateToken parses and verifies token and returns its claims.
func (v *Validator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	keyset, err := v.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{Subject: tok.Subject(), Custom: map[string]any{}}
	if email, ok := tok.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if role, ok := tok.Get("role"); ok {
		claims.Role, _ = role.(string)
	}
	for k, val := range tok.PrivateClaims() {
		if !registered[k] {
			claims.Custom[k] = val
		}
	}
	return claims, nil
}
