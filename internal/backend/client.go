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

// Package backend is the RPC client for the platform's identity authority.
// The backend is the sole owner of principals: it decides whether an OAuth
// identity maps to an existing principal, verifies raw credentials, and
// resolves bearer tokens. The console never creates principals itself.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devbench/console/internal/authz"
	"github.com/devbench/console/internal/identity"
)

// ErrUnavailable covers every transport-level failure: timeout, connection
// refused, 5xx. It is deliberately distinct from a rejection: an
// unavailable backend must never be interpreted as "identity unknown" or,
// worse, as success.
var ErrUnavailable = errors.New("backend unavailable")

// RejectionError is a definite "no" from the backend: the identity is not
// permitted, credentials are wrong, the token is dead. Code is machine
// readable; Message is the backend's wording and must pass through message
// normalization before any user sees it.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Client is the contract the federation flow and session resolution depend
// on. The HTTP implementation below is the only production one; tests
// substitute fakes.
type Client interface {
	// AuthenticateFederated links an OAuth identity to an existing
	// principal. It never provisions: an unknown email yields a rejection.
	AuthenticateFederated(ctx context.Context, fid identity.FederatedIdentity) (*identity.Principal, error)

	// AuthenticateCredentials verifies a raw email/password pair.
	AuthenticateCredentials(ctx context.Context, email, password string) (*identity.Principal, error)

	// WhoAmI resolves a bearer token to its principal, carrying the token
	// as request metadata.
	WhoAmI(ctx context.Context, bearerToken string) (*identity.Principal, error)
}

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient implements Client over the backend's JSON API. Constructed
// once at startup and dependency-injected; holds no mutable state.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a backend client with a bounded timeout. An
// unbounded wait on the backend would stall the request pipeline, so a
// zero timeout gets a default rather than meaning "forever".
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type federatedRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name,omitempty"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"provider_account_id"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type principalPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url"`
	AccountRole   string `json:"account_role"`
	EmailVerified bool   `json:"email_verified"`
	Identities    []struct {
		Provider          string    `json:"provider"`
		ProviderAccountID string    `json:"provider_account_id"`
		LinkedAt          time.Time `json:"linked_at"`
	} `json:"identities"`
	CreatedAt time.Time `json:"created_at"`
}

type rejectionPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (p *principalPayload) toPrincipal() *identity.Principal {
	principal := &identity.Principal{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		AvatarURL:     p.AvatarURL,
		AccountRole:   authz.Role(p.AccountRole),
		EmailVerified: p.EmailVerified,
		CreatedAt:     p.CreatedAt,
	}
	for _, li := range p.Identities {
		principal.Identities = append(principal.Identities, identity.LinkedIdentity{
			Provider:          li.Provider,
			ProviderAccountID: li.ProviderAccountID,
			LinkedAt:          li.LinkedAt,
		})
	}
	return principal
}

// AuthenticateFederated implements Client.
func (c *HTTPClient) AuthenticateFederated(ctx context.Context, fid identity.FederatedIdentity) (*identity.Principal, error) {
	return c.post(ctx, "/v1/auth/federated", federatedRequest{
		Email:             fid.Email,
		Name:              fid.Name,
		AvatarURL:         fid.AvatarURL,
		Provider:          fid.Provider,
		ProviderAccountID: fid.ProviderAccountID,
	}, "")
}

// AuthenticateCredentials implements Client.
func (c *HTTPClient) AuthenticateCredentials(ctx context.Context, email, password string) (*identity.Principal, error) {
	return c.post(ctx, "/v1/auth/credentials", credentialsRequest{
		Email:    email,
		Password: password,
	}, "")
}

// WhoAmI implements Client.
func (c *HTTPClient) WhoAmI(ctx context.Context, bearerToken string) (*identity.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/auth/whoami", nil)
	if err != nil {
		return nil, fmt.Errorf("build whoami request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	return c.do(req)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, bearer string) (*identity.Principal, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*identity.Principal, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload principalPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: malformed principal response: %v", ErrUnavailable, err)
		}
		return payload.toPrincipal(), nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var rejection rejectionPayload
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil || rejection.Error == "" {
			rejection.Error = "rejected"
			rejection.Message = resp.Status
		}
		return nil, &RejectionError{Code: rejection.Error, Message: rejection.Message}

	default:
		// 5xx and anything unexpected: ambiguity resolves to unavailable,
		// never to success or a user-facing rejection.
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
