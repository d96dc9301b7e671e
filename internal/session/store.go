// Copyright 2026 The Devbench Authors
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

package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/id"
	"github.com/devbench/console/internal/identity"
	"github.com/devbench/console/internal/observability/logger"
)

// Validation is the discriminated result of validating a token. Exactly
// one of the two arms holds: Valid with a session, or a definite reason.
// There is no ambiguous outcome.
type Validation struct {
	Valid   bool
	Session *Session
	Reason  InvalidReason
}

// Claims is the token payload: registered claims plus the provider tag and
// the role and email-verified snapshots.
type Claims struct {
	jwt.RegisteredClaims
	Provider      string `json:"provider,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Metadata captures request context recorded on the session at issuance.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Store issues, validates, and revokes session tokens. Tokens are HS256
// JWTs over a key derived from the process secret; a postgres record per
// token keeps them revocable before natural expiry.
type Store struct {
	repo    Repository
	key     []byte
	ttl     time.Duration
	auditor audit.Logger
	now     func() time.Time
}

// NewStore derives the signing key from secret and binds the fixed TTL.
// A non-positive TTL is rejected: sessions must always have bounded
// lifetime, "forever" is not a configuration.
func NewStore(repo Repository, secret []byte, ttl time.Duration, auditor audit.Logger) (*Store, error) {
	if len(secret) == 0 {
		return nil, errors.New("session store requires a secret")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("devbench-console/session-signing"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Store{
		repo:    repo,
		key:     key,
		ttl:     ttl,
		auditor: auditor,
		now:     time.Now,
	}, nil
}

// Issue creates a session for the principal and returns the signed token.
// The record is persisted before the token is returned, so the token is
// verifiable by Validate immediately.
func (s *Store) Issue(ctx context.Context, principal *identity.Principal, provider string, meta Metadata) (string, *Session, error) {
	now := s.now()
	sess := &Session{
		ID:            id.NewUUIDv7(),
		SubjectID:     principal.ID,
		Provider:      provider,
		AccountRole:   principal.AccountRole,
		EmailVerified: principal.EmailVerified,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("persist session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Provider:      provider,
		Role:          string(sess.AccountRole),
		EmailVerified: sess.EmailVerified,
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	s.auditor.Log(ctx, audit.Event{
		Type:      audit.TypeSessionIssued,
		ActorID:   sess.SubjectID,
		Provider:  provider,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return signed, sess, nil
}

// Validate resolves a token to a definite outcome: the backing session, or
// one of the invalid reasons. It is a pure function of the token, current
// time, and stored revocation state; it performs no writes.
func (s *Store) Validate(ctx context.Context, token string) Validation {
	if token == "" {
		return Validation{Reason: ReasonMalformed}
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Validation{Reason: ReasonExpired}
		}
		return Validation{Reason: ReasonMalformed}
	}

	sess, err := s.repo.Get(ctx, claims.ID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			// A definite rejection is still required when the store is
			// unreachable: fail closed, log the real cause.
			slog.ErrorContext(ctx, "session lookup failed", logger.Error(err))
		}
		return Validation{Reason: ReasonUnknownSubject}
	}
	if sess.IsRevoked() {
		return Validation{Reason: ReasonRevoked}
	}
	if sess.IsExpired(s.now()) {
		return Validation{Reason: ReasonExpired}
	}

	return Validation{Valid: true, Session: sess}
}

// Revoke invalidates the session behind a token. Idempotent: revoking
// twice, or revoking a token that never validated, reports no error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil || claims.ID == "" {
		// Not one of ours, or unparseable: nothing to revoke.
		return nil
	}

	if err := s.repo.Revoke(ctx, claims.ID, s.now()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.auditor.Log(ctx, audit.Event{
		Type:    audit.TypeSessionRevoked,
		ActorID: claims.Subject,
	})
	return nil
}

// RevokeAllForSubject invalidates every live session of one subject
// ("sign out everywhere").
func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.repo.RevokeAllForSubject(ctx, subjectID, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for subject: %w", err)
	}
	s.auditor.Log(ctx, audit.Event{
		Type:     audit.TypeSessionRevoked,
		ActorID:  subjectID,
		Metadata: map[string]any{"revoked": n},
	})
	return n, nil
}

// PurgeExpired deletes records whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

// TTL returns the fixed session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
