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
	"sync"
)

// Resolver memoizes session validation for the lifetime of one inbound
// request. The gate, page loaders, and resource handlers all ask "who is
// the caller"; the underlying lookup runs at most once and every caller
// sees the same result. Scoped strictly to a single request, never shared
// across requests.
type Resolver struct {
	store *Store
	token string

	once   sync.Once
	result Validation
}

// NewResolver binds a request's token to the store. An empty token is
// fine; it resolves to a malformed validation without touching the store.
func NewResolver(store *Store, token string) *Resolver {
	return &Resolver{store: store, token: token}
}

// Resolve validates the token, at most once per request.
func (r *Resolver) Resolve(ctx context.Context) Validation {
	r.once.Do(func() {
		r.result = r.store.Validate(ctx, r.token)
	})
	return r.result
}

// Token returns the raw token the resolver was built with, for handlers
// that need it (logout revokes it, SSO re-validation forwards it).
func (r *Resolver) Token() string {
	return r.token
}

type resolverKey struct{}

// WithResolver attaches a request-scoped resolver to the context.
func WithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, resolverKey{}, r)
}

// ResolverFromContext retrieves the request's resolver, or nil when the
// request never passed through the session middleware.
func ResolverFromContext(ctx context.Context) *Resolver {
	r, _ := ctx.Value(resolverKey{}).(*Resolver)
	return r
}
