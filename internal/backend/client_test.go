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

package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbench/console/internal/backend"
	"github.com/devbench/console/internal/identity"
)

func TestAuthenticateFederated_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auth/federated", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@x.com", req["email"])
		assert.Equal(t, "google", req["provider"])
		assert.Equal(t, "123", req["provider_account_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"id":             "u1",
			"email":          "a@x.com",
			"display_name":   "Ada",
			"account_role":   "account-owner",
			"email_verified": true,
		})
	}))
	defer srv.Close()

	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL})
	principal, err := client.AuthenticateFederated(context.Background(), identity.FederatedIdentity{
		Email:             "a@x.com",
		Provider:          "google",
		ProviderAccountID: "123",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.ID)
	assert.True(t, principal.EmailVerified)
}

func TestAuthenticateFederated_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "principal_not_found",
			"message": "user not found",
		})
	}))
	defer srv.Close()

	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL})
	_, err := client.AuthenticateFederated(context.Background(), identity.FederatedIdentity{
		Email: "ghost@x.com", Provider: "google", ProviderAccountID: "999",
	})

	var rejection *backend.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "principal_not_found", rejection.Code)
	assert.Equal(t, "user not found", rejection.Message)
	assert.NotErrorIs(t, err, backend.ErrUnavailable)
}

func TestAuthenticateCredentials_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL})
	_, err := client.AuthenticateCredentials(context.Background(), "a@x.com", "hunter22")

	require.ErrorIs(t, err, backend.ErrUnavailable)
	var rejection *backend.RejectionError
	assert.False(t, errors.As(err, &rejection))
}

func TestWhoAmI_CarriesBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": "u1", "email": "a@x.com"})
	}))
	defer srv.Close()

	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL})
	principal, err := client.WhoAmI(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.ID)
}

func TestClient_TimeoutIsBounded(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.WhoAmI(context.Background(), "tok")
	require.ErrorIs(t, err, backend.ErrUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	client := backend.NewHTTPClient(backend.Config{BaseURL: srv.URL})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.WhoAmI(ctx, "tok")
	require.ErrorIs(t, err, backend.ErrUnavailable)
}
