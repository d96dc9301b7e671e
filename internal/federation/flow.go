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

// Package federation drives a sign-in attempt from "provider callback
// received" to an established principal or a definite rejection. The flow
// only links identities; the backend decides whether a principal may
// exist, and the session store (not this package) mints sessions.
package federation

import (
	"context"
	"errors"
	"time"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/backend"
	"github.com/devbench/console/internal/identity"
)

// State is one stage of a sign-in attempt. Established and Rejected are
// terminal; a rejected attempt is not retried, the caller starts over with
// fresh provider data.
type State string

const (
	StateAwaitingCallback State = "awaiting_callback"
	StateBackendVerifying State = "backend_verifying"
	StateEstablished      State = "established"
	StateRejected         State = "rejected"
)

// Internal rejection reasons produced by the flow itself (as opposed to
// reasons relayed from the backend).
const (
	ReasonMissingIdentityData = "missing identity data"
	ReasonBackendUnavailable  = "backend unavailable"
)

// Outcome is the discriminated result of one attempt. Callers must branch
// on State; Principal is set only when State == StateEstablished, and the
// message fields only when State == StateRejected.
type Outcome struct {
	State     State
	Principal *identity.Principal

	// Reason is the internal diagnostic string (raw backend wording
	// included). It is logged, never rendered to users.
	Reason string

	// UserMessage is the normalized, user-safe rendering of Reason.
	UserMessage string
}

// Established reports whether the attempt ended with a verified principal.
func (o Outcome) Established() bool { return o.State == StateEstablished }

// Flow runs sign-in attempts against the backend identity authority.
type Flow struct {
	client  backend.Client
	auditor audit.Logger
	timeout time.Duration
}

// NewFlow creates a federation flow. The timeout bounds the single backend
// call each attempt makes; zero gets a default rather than an unbounded
// wait.
func NewFlow(client backend.Client, auditor audit.Logger, timeout time.Duration) *Flow {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Flow{client: client, auditor: auditor, timeout: timeout}
}

// FederateProfile runs an attempt for OAuth profile data returned by a
// provider callback.
func (f *Flow) FederateProfile(ctx context.Context, fid identity.FederatedIdentity) Outcome {
	// AwaitingCallback: validate before spending an RPC.
	if !fid.Complete() {
		return f.reject(ctx, fid.Provider, "", ReasonMissingIdentityData)
	}

	// BackendVerifying.
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	principal, err := f.client.AuthenticateFederated(ctx, fid)
	return f.settle(ctx, fid.Provider, fid.Email, principal, err)
}

// FederateCredentials runs an attempt for a direct email/password login,
// skipping provider profile extraction.
func (f *Flow) FederateCredentials(ctx context.Context, email, password string) Outcome {
	if email == "" || password == "" {
		return f.reject(ctx, "credentials", email, ReasonMissingIdentityData)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	principal, err := f.client.AuthenticateCredentials(ctx, email, password)
	return f.settle(ctx, "credentials", email, principal, err)
}

// settle maps the backend response onto a terminal state. A definite
// rejection keeps the backend's reason for diagnostics; any transport
// failure collapses to "backend unavailable". Ambiguity never grants
// access and is never silently retried.
func (f *Flow) settle(ctx context.Context, provider, email string, principal *identity.Principal, err error) Outcome {
	if err != nil {
		var rejection *backend.RejectionError
		if errors.As(err, &rejection) {
			return f.reject(ctx, provider, email, rejection.Message)
		}
		return f.reject(ctx, provider, email, ReasonBackendUnavailable)
	}

	f.auditor.Log(ctx, audit.Event{
		Type:     audit.TypeSignInSuccess,
		ActorID:  principal.ID,
		Provider: provider,
	})
	return Outcome{State: StateEstablished, Principal: principal}
}

func (f *Flow) reject(ctx context.Context, provider, email, reason string) Outcome {
	f.auditor.Log(ctx, audit.Event{
		Type:     audit.TypeSignInRejected,
		Provider: provider,
		Resource: email,
		Reason:   reason,
	})
	return Outcome{
		State:       StateRejected,
		Reason:      reason,
		UserMessage: NormalizeMessage(reason),
	}
}
