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
	"errors"
	"time"

	"github.com/devbench/console/internal/authz"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// InvalidReason classifies why a token failed validation. All reasons
// resolve identically for the user (redirect to sign-in) but are logged
// distinctly for diagnostics.
type InvalidReason string

const (
	ReasonExpired        InvalidReason = "expired"
	ReasonMalformed      InvalidReason = "malformed"
	ReasonRevoked        InvalidReason = "revoked"
	ReasonUnknownSubject InvalidReason = "unknown-subject"
)

// Session is the durable record backing one issued token. EmailVerified
// and AccountRole are snapshots taken at issuance: if either changes later
// the session is re-issued, never mutated, so a stale value ages out with
// the bounded TTL.
type Session struct {
	ID            string // token jti
	SubjectID     string
	Provider      string
	AccountRole   authz.Role
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	IPAddress     string
	UserAgent     string
}

// IsExpired checks the session against the given instant.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsRevoked reports whether the session has been explicitly invalidated.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// Repository defines the interface for session persistence. Revocation
// operations are single-statement and therefore atomic with respect to
// concurrent Get calls for the same id.
type Repository interface {
	// Create persists a new session record.
	Create(ctx context.Context, sess *Session) error

	// Get retrieves a session by id, returning ErrSessionNotFound when
	// no record exists.
	Get(ctx context.Context, id string) (*Session, error)

	// Revoke marks a session invalid. Revoking an already-revoked or
	// absent session is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForSubject invalidates every live session of one subject
	// and returns how many were affected.
	RevokeAllForSubject(ctx context.Context, subjectID string, at time.Time) (int64, error)

	// DeleteExpired removes records whose expiry has passed.
	DeleteExpired(ctx context.Context) (int64, error)
}
