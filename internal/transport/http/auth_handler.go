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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/backend"
	"github.com/devbench/console/internal/federation"
	"github.com/devbench/console/internal/observability/logger"
	"github.com/devbench/console/internal/session"
)

// ListProviders returns the enabled sign-in providers in stable order.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		Name      string `json:"name"`
		SignInURL string `json:"signin_url"`
	}

	names := h.providers.Names()
	providers := make([]providerInfo, 0, len(names))
	for _, name := range names {
		providers = append(providers, providerInfo{
			Name:      name,
			SignInURL: "/auth/signin/" + name,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"providers": providers,
	})
}

// BeginSignIn starts the OAuth round trip: it signs the post-login return
// path into the state parameter and redirects to the provider's consent
// screen.
func (h *Handler) BeginSignIn(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	next := sanitizeNext(r.URL.Query().Get("next"))
	state := h.state.Encode(next)

	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth round trip. Any failure before the backend
// verdict redirects to sign-in with a coded error; a backend rejection
// carries the normalized user message. Only an established principal gets
// a session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		h.redirectSignInError(w, r, "unknown_provider", "")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		// The user declined at the consent screen, or the provider failed.
		h.redirectSignInError(w, r, "provider_denied", "")
		return
	}

	next, err := h.state.Decode(q.Get("state"))
	if err != nil {
		slog.WarnContext(r.Context(), "oauth state rejected",
			logger.Provider(p.Name()),
			logger.Error(err),
		)
		h.redirectSignInError(w, r, "invalid_state", "")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectSignInError(w, r, "missing_code", "")
		return
	}

	token, err := p.Exchange(r.Context(), code)
	if err != nil {
		slog.ErrorContext(r.Context(), "oauth code exchange failed",
			logger.Provider(p.Name()),
			logger.Error(err),
		)
		h.redirectSignInError(w, r, "exchange_failed", federation.MsgGeneric)
		return
	}

	fid, err := p.FetchProfile(r.Context(), token)
	if err != nil {
		slog.ErrorContext(r.Context(), "profile fetch failed",
			logger.Provider(p.Name()),
			logger.Error(err),
		)
		h.redirectSignInError(w, r, "profile_failed", federation.MsgGeneric)
		return
	}

	outcome := h.flow.FederateProfile(r.Context(), fid)
	if !outcome.Established() {
		h.instruments.RecordSignIn(r.Context(), p.Name(), "rejected")
		h.redirectSignInError(w, r, "rejected", outcome.UserMessage)
		return
	}
	h.instruments.RecordSignIn(r.Context(), p.Name(), "established")

	signed, _, err := h.sessions.Issue(r.Context(), outcome.Principal, p.Name(), session.Metadata{
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "session issue failed", logger.Error(err))
		h.redirectSignInError(w, r, "session_failed", federation.MsgGeneric)
		return
	}

	h.setSessionCookie(w, signed)
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// LoginRequest represents direct email/password credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates raw credentials against the backend and issues a
// session on success.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome := h.flow.FederateCredentials(r.Context(), req.Email, req.Password)
	if !outcome.Established() {
		h.instruments.RecordSignIn(r.Context(), "credentials", "rejected")
		respondJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "rejected",
			"message": outcome.UserMessage,
		})
		return
	}
	h.instruments.RecordSignIn(r.Context(), "credentials", "established")

	signed, _, err := h.sessions.Issue(r.Context(), outcome.Principal, "credentials", session.Metadata{
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "session issue failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, signed)
	respondJSON(w, http.StatusOK, map[string]any{
		"subject_id":     outcome.Principal.ID,
		"email":          outcome.Principal.Email,
		"display_name":   outcome.Principal.DisplayName,
		"account_role":   outcome.Principal.AccountRole,
		"email_verified": outcome.Principal.EmailVerified,
	})
}

// SSORequest carries a platform token minted elsewhere (CLI, desktop app).
type SSORequest struct {
	Token string `json:"token"`
}

// SSO exchanges an existing platform token for a console session. The
// backend resolves the token to its principal; the console never inspects
// foreign tokens itself.
func (h *Handler) SSO(w http.ResponseWriter, r *http.Request) {
	var req SSORequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	principal, err := h.backend.WhoAmI(r.Context(), req.Token)
	if err != nil {
		h.instruments.RecordSignIn(r.Context(), "sso", "rejected")
		var rejection *backend.RejectionError
		if errors.As(err, &rejection) {
			h.auditor.Log(r.Context(), audit.Event{
				Type:      audit.TypeSignInRejected,
				Provider:  "sso",
				Reason:    rejection.Message,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
			})
			respondJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "rejected",
				"message": federation.NormalizeMessage(rejection.Message),
			})
			return
		}
		respondError(w, http.StatusBadGateway, federation.MsgTemporarilyDown)
		return
	}

	signed, _, err := h.sessions.Issue(r.Context(), principal, "sso", session.Metadata{
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "session issue failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.instruments.RecordSignIn(r.Context(), "sso", "established")
	h.auditor.Log(r.Context(), audit.Event{
		Type:      audit.TypeSignInSuccess,
		ActorID:   principal.ID,
		Provider:  "sso",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	h.setSessionCookie(w, signed)
	respondJSON(w, http.StatusOK, map[string]any{
		"subject_id":     principal.ID,
		"email":          principal.Email,
		"account_role":   principal.AccountRole,
		"email_verified": principal.EmailVerified,
	})
}

// Logout revokes the caller's session. Idempotent: signing out without a
// session, or twice, succeeds quietly.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.getSessionFromCookie(r)
	if token == "" {
		token = bearerToken(r)
	}

	if token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			slog.ErrorContext(r.Context(), "session revoke failed", logger.Error(err))
		}
		h.instruments.RecordRevoked(r.Context(), 1)
		h.auditor.Log(r.Context(), audit.Event{
			Type:      audit.TypeLogout,
			ActorID:   GetSubjectID(r.Context()),
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
		})
	}

	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "signed out",
	})
}

func (h *Handler) redirectSignInError(w http.ResponseWriter, r *http.Request, code, message string) {
	u := h.routes.SignInPath + "?error=" + url.QueryEscape(code)
	if message != "" {
		u += "&message=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// sanitizeNext confines the post-login return target to a local path.
// Anything absolute or scheme-relative collapses to the root.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}
