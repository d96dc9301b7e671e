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

// Package gate decides route admission before any handler runs. The
// decision function is pure: it sees the request path and the session
// validation that already happened, and performs no RPC of its own.
// Resource-level authorization (may this role perform this action) is the
// permission matrix's job, after admission.
package gate

import (
	"strings"

	"github.com/devbench/console/internal/session"
)

// Decision is the gate's verdict for one request.
type Decision int

const (
	// Allow admits the request to its handler.
	Allow Decision = iota
	// RedirectToSignIn sends the request to the sign-in entry point,
	// preserving the originally requested path.
	RedirectToSignIn
	// RedirectToVerification sends an authenticated-but-unverified
	// request to the email-verification page.
	RedirectToVerification
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToSignIn:
		return "redirect_to_signin"
	case RedirectToVerification:
		return "redirect_to_verification"
	default:
		return "unknown"
	}
}

// Result carries the decision plus the path the redirect should return to.
type Result struct {
	Decision     Decision
	OriginalPath string
}

// Config is the static route classification, supplied at startup and
// immutable afterwards.
type Config struct {
	// PublicExact are paths admitted without a session, matched exactly.
	PublicExact []string
	// PublicPrefixes are path prefixes admitted without a session.
	// Matching is prefix-only; "contains" style matching would let a
	// crafted path bypass the gate.
	PublicPrefixes []string
	// VerificationExempt are paths an authenticated-but-unverified
	// session may still reach (the verification page itself, logout).
	VerificationExempt []string
}

// Gate evaluates the fixed decision ladder.
type Gate struct {
	publicExact    map[string]struct{}
	publicPrefixes []string
	verifyExempt   map[string]struct{}
}

// New builds a gate from static route configuration.
func New(cfg Config) *Gate {
	g := &Gate{
		publicExact:  make(map[string]struct{}, len(cfg.PublicExact)),
		verifyExempt: make(map[string]struct{}, len(cfg.VerificationExempt)),
	}
	for _, p := range cfg.PublicExact {
		g.publicExact[p] = struct{}{}
	}
	for _, p := range cfg.VerificationExempt {
		g.verifyExempt[p] = struct{}{}
	}
	g.publicPrefixes = append(g.publicPrefixes, cfg.PublicPrefixes...)
	return g
}

// Decide runs the ladder in fixed order; later rules assume earlier ones
// did not match.
//
//  1. Public path: allow regardless of session state.
//  2. No valid session: redirect to sign-in, carrying the original path.
//  3. Valid but unverified, and the path is not verification-exempt:
//     redirect to verification.
//  4. Otherwise allow.
func (g *Gate) Decide(path string, v session.Validation) Result {
	if g.isPublic(path) {
		return Result{Decision: Allow}
	}
	if !v.Valid {
		return Result{Decision: RedirectToSignIn, OriginalPath: path}
	}
	if !v.Session.EmailVerified && !g.isVerificationExempt(path) {
		return Result{Decision: RedirectToVerification}
	}
	return Result{Decision: Allow}
}

func (g *Gate) isPublic(path string) bool {
	if _, ok := g.publicExact[path]; ok {
		return true
	}
	for _, prefix := range g.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) isVerificationExempt(path string) bool {
	_, ok := g.verifyExempt[path]
	return ok
}
