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

package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/authz"
	"github.com/devbench/console/internal/identity"
	"github.com/devbench/console/internal/session"
)

// memoryRepo is an in-memory session.Repository with lookup counting.
type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	gets     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]*session.Session)}
}

func (m *memoryRepo) Create(ctx context.Context, sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	sess, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memoryRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	if sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (m *memoryRepo) RevokeAllForSubject(ctx context.Context, subjectID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, sess := range m.sessions {
		if sess.SubjectID == subjectID && sess.RevokedAt == nil {
			sess.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sess := range m.sessions {
		if time.Now().After(sess.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func newTestStore(t *testing.T, repo session.Repository, ttl time.Duration) *session.Store {
	t.Helper()
	store, err := session.NewStore(repo, []byte("test-secret"), ttl, audit.Nop{})
	require.NoError(t, err)
	return store
}

func TestIssueThenValidate(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	ctx := context.Background()

	principal := &identity.Principal{ID: "u1", Email: "a@x.com", AccountRole: authz.RoleAccountAdmin, EmailVerified: true}
	token, sess, err := store.Issue(ctx, principal, "google", session.Metadata{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	v := store.Validate(ctx, token)
	require.True(t, v.Valid)
	assert.Equal(t, "u1", v.Session.SubjectID)
	assert.Equal(t, "google", v.Session.Provider)
	assert.Equal(t, authz.RoleAccountAdmin, v.Session.AccountRole)
	assert.True(t, v.Session.EmailVerified)
	assert.Equal(t, sess.ID, v.Session.ID)
}

func TestValidate_Malformed(t *testing.T) {
	store := newTestStore(t, newMemoryRepo(), time.Hour)
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		v := store.Validate(ctx, token)
		assert.False(t, v.Valid)
		assert.Equal(t, session.ReasonMalformed, v.Reason, "token=%q", token)
	}
}

func TestValidate_WrongKeyIsMalformed(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	other, err := session.NewStore(repo, []byte("other-secret"), time.Hour, audit.Nop{})
	require.NoError(t, err)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)

	v := other.Validate(ctx, token)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonMalformed, v.Reason)
}

func TestValidate_Expired(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, 10*time.Millisecond)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	v := store.Validate(ctx, token)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonExpired, v.Reason)
}

func TestValidate_UnknownSubject(t *testing.T) {
	repoA := newMemoryRepo()
	repoB := newMemoryRepo()
	storeA := newTestStore(t, repoA, time.Hour)
	storeB := newTestStore(t, repoB, time.Hour)
	ctx := context.Background()

	// Token signed with the same secret but backed by no record in B's
	// repository: signature checks out, subject does not.
	token, _, err := storeA.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)

	v := storeB.Validate(ctx, token)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonUnknownSubject, v.Reason)
}

func TestRevoke_Idempotent(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	v := store.Validate(ctx, token)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonRevoked, v.Reason)

	// Second revoke and revoking junk are both no-ops.
	require.NoError(t, store.Revoke(ctx, token))
	require.NoError(t, store.Revoke(ctx, "never-a-token"))

	v2 := store.Validate(ctx, token)
	assert.Equal(t, v, v2)
}

func TestRevokeAllForSubject(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	ctx := context.Background()

	t1, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)
	t2, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "github", session.Metadata{})
	require.NoError(t, err)
	t3, _, err := store.Issue(ctx, &identity.Principal{ID: "u2"}, "google", session.Metadata{})
	require.NoError(t, err)

	n, err := store.RevokeAllForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Equal(t, session.ReasonRevoked, store.Validate(ctx, t1).Reason)
	assert.Equal(t, session.ReasonRevoked, store.Validate(ctx, t2).Reason)
	assert.True(t, store.Validate(ctx, t3).Valid)
}

func TestEmailVerifiedIsSnapshot(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	ctx := context.Background()

	principal := &identity.Principal{ID: "u1", EmailVerified: false}
	token, _, err := store.Issue(ctx, principal, "google", session.Metadata{})
	require.NoError(t, err)

	// The principal verifying their email later does not rewrite the
	// existing session; re-issuing produces a token with the new flag.
	principal.EmailVerified = true
	token2, _, err := store.Issue(ctx, principal, "google", session.Metadata{})
	require.NoError(t, err)

	assert.False(t, store.Validate(ctx, token).Session.EmailVerified)
	assert.True(t, store.Validate(ctx, token2).Session.EmailVerified)
}

func TestResolver_MemoizesLookup(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, time.Hour)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)

	resolver := session.NewResolver(store, token)
	first := resolver.Resolve(ctx)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, resolver.Resolve(ctx))
	}
	// Gate, loaders, and handlers share one underlying lookup.
	assert.Equal(t, 1, repo.getCount())
}

func TestResolver_ContextRoundTrip(t *testing.T) {
	store := newTestStore(t, newMemoryRepo(), time.Hour)
	resolver := session.NewResolver(store, "tok")

	ctx := session.WithResolver(context.Background(), resolver)
	assert.Same(t, resolver, session.ResolverFromContext(ctx))
	assert.Nil(t, session.ResolverFromContext(context.Background()))
}

func TestPurgeExpired(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(t, repo, 5*time.Millisecond)
	ctx := context.Background()

	_, _, err := store.Issue(ctx, &identity.Principal{ID: "u1"}, "google", session.Metadata{})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
