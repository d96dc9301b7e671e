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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devbench/console/internal/session"
)

// SessionRepository implements session.Repository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject_id, provider, account_role, email_verified, issued_at, expires_at, revoked_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sess.ID, sess.SubjectID, sess.Provider, sess.AccountRole, sess.EmailVerified,
		sess.IssuedAt, sess.ExpiresAt, sess.RevokedAt, sess.IPAddress, sess.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, subject_id, provider, account_role, email_verified, issued_at, expires_at, revoked_at, ip_address, user_agent
		FROM sessions
		WHERE id = $1
	`, id).Scan(
		&sess.ID, &sess.SubjectID, &sess.Provider, &sess.AccountRole, &sess.EmailVerified,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.RevokedAt, &sess.IPAddress, &sess.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// Revoke marks one session invalid. A second revoke keeps the original
// timestamp; revoking an absent id is not an error.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllForSubject invalidates every live session of one subject.
func (r *SessionRepository) RevokeAllForSubject(ctx context.Context, subjectID string, at time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE subject_id = $1 AND revoked_at IS NULL
	`, subjectID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions for subject: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes records whose expiry has passed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
