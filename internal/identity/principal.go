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

package identity

import (
	"errors"
	"time"

	"github.com/devbench/console/internal/authz"
)

// Domain errors
var (
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingEmail       = errors.New("email is required")
)

// Principal is an authenticated identity. Principals are created and owned
// by the backend identity service; the console only ever receives them in
// response to federation or session verification, never constructs new ones.
type Principal struct {
	ID            string
	Email         string
	DisplayName   string
	AvatarURL     string
	AccountRole   authz.Role
	EmailVerified bool
	Identities    []LinkedIdentity
	CreatedAt     time.Time
}

// LinkedIdentity records one external OAuth identity attached to a
// principal: the provider name plus the provider's own account id.
type LinkedIdentity struct {
	Provider          string
	ProviderAccountID string
	LinkedAt          time.Time
}

// HasIdentity reports whether the principal already has the given provider
// identity linked.
func (p *Principal) HasIdentity(provider, providerAccountID string) bool {
	for _, li := range p.Identities {
		if li.Provider == provider && li.ProviderAccountID == providerAccountID {
			return true
		}
	}
	return false
}

// FederatedIdentity is the profile data an OAuth provider callback yields,
// normalized across providers. Email and the provider/account-id pair are
// mandatory before the backend is consulted.
type FederatedIdentity struct {
	Email             string
	Name              string
	AvatarURL         string
	Provider          string
	ProviderAccountID string
}

// Complete reports whether the profile carries the fields federation
// requires. Incomplete profiles are rejected without a backend round trip.
func (f FederatedIdentity) Complete() bool {
	return f.Email != "" && f.Provider != "" && f.ProviderAccountID != ""
}
