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

package gate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devbench/console/internal/gate"
	"github.com/devbench/console/internal/session"
)

func testGate() *gate.Gate {
	return gate.New(gate.Config{
		PublicExact:        []string{"/signin", "/health"},
		PublicPrefixes:     []string{"/auth/", "/assets/"},
		VerificationExempt: []string{"/verify-email"},
	})
}

func validSession(verified bool) session.Validation {
	return session.Validation{
		Valid: true,
		Session: &session.Session{
			ID:            "s1",
			SubjectID:     "u1",
			EmailVerified: verified,
			ExpiresAt:     time.Now().Add(time.Hour),
		},
	}
}

func noSession() session.Validation {
	return session.Validation{Reason: session.ReasonMalformed}
}

func TestDecide_PublicPaths(t *testing.T) {
	g := testGate()

	// Public paths admit regardless of session state.
	for _, v := range []session.Validation{noSession(), validSession(true), validSession(false)} {
		assert.Equal(t, gate.Allow, g.Decide("/signin", v).Decision)
		assert.Equal(t, gate.Allow, g.Decide("/auth/callback/google", v).Decision)
		assert.Equal(t, gate.Allow, g.Decide("/assets/app.js", v).Decision)
	}
}

func TestDecide_NoSessionRedirectsToSignIn(t *testing.T) {
	g := testGate()

	result := g.Decide("/original/path", noSession())
	assert.Equal(t, gate.RedirectToSignIn, result.Decision)
	// The original path survives the redirect so sign-in can return there.
	assert.Equal(t, "/original/path", result.OriginalPath)
}

func TestDecide_ExpiredTreatedAsAbsent(t *testing.T) {
	g := testGate()

	result := g.Decide("/original/path", session.Validation{Reason: session.ReasonExpired})
	assert.Equal(t, gate.RedirectToSignIn, result.Decision)
	assert.Equal(t, "/original/path", result.OriginalPath)
}

func TestDecide_UnverifiedEmail(t *testing.T) {
	g := testGate()

	assert.Equal(t, gate.RedirectToVerification, g.Decide("/dashboard", validSession(false)).Decision)
	// The verification page itself stays reachable.
	assert.Equal(t, gate.Allow, g.Decide("/verify-email", validSession(false)).Decision)
}

func TestDecide_VerifiedAllowed(t *testing.T) {
	g := testGate()
	assert.Equal(t, gate.Allow, g.Decide("/dashboard", validSession(true)).Decision)
}

func TestDecide_NoContainsMatching(t *testing.T) {
	g := testGate()

	// A protected path that merely contains a public fragment must not
	// slip through the gate.
	for _, path := range []string{
		"/api/v1/projects/signin",
		"/dashboard/../auth/x",
		"/x/assets/app.js",
	} {
		result := g.Decide(path, noSession())
		assert.Equal(t, gate.RedirectToSignIn, result.Decision, "path=%q", path)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	g := testGate()
	v := validSession(false)

	first := g.Decide("/dashboard", v)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, g.Decide("/dashboard", v))
	}
}
