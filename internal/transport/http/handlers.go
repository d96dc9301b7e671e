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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/authz"
	"github.com/devbench/console/internal/backend"
	"github.com/devbench/console/internal/federation"
	"github.com/devbench/console/internal/gate"
	"github.com/devbench/console/internal/observability/metrics"
	"github.com/devbench/console/internal/session"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	sessions    *session.Store
	matrix      *authz.Matrix
	backend     backend.Client
	flow        *federation.Flow
	providers   *federation.Registry
	state       *federation.StateCodec
	gate        *gate.Gate
	auditor     audit.Logger
	instruments *metrics.Instruments
	cookies     CookieConfig
	routes      RouteConfig
}

// CookieConfig holds session cookie configuration
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// RouteConfig holds the redirect targets the gate middleware uses.
type RouteConfig struct {
	SignInPath       string
	VerificationPath string
}

// ParseSameSite maps a configuration string onto http.SameSite.
// Unrecognized values fall back to Lax.
func ParseSameSite(v string) http.SameSite {
	switch v {
	case "strict", "Strict":
		return http.SameSiteStrictMode
	case "none", "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(
	sessions *session.Store,
	matrix *authz.Matrix,
	backendClient backend.Client,
	flow *federation.Flow,
	providers *federation.Registry,
	state *federation.StateCodec,
	g *gate.Gate,
	auditor audit.Logger,
	instruments *metrics.Instruments,
	cookies CookieConfig,
	routes RouteConfig,
) *Handler {
	return &Handler{
		sessions:    sessions,
		matrix:      matrix,
		backend:     backendClient,
		flow:        flow,
		providers:   providers,
		state:       state,
		gate:        g,
		auditor:     auditor,
		instruments: instruments,
		cookies:     cookies,
		routes:      routes,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Admission runs on every route; public paths pass through untouched.
	r.Use(h.GateMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)

	// Federated sign-in round trip (browser-facing)
	r.Get("/auth/signin/{provider}", h.BeginSignIn)
	r.Get("/auth/callback/{provider}", h.Callback)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated: entry points into a session
		r.Get("/auth/providers", h.ListProviders)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/sso", h.SSO)
		r.Post("/auth/logout", h.Logout)

		// Everything below requires an admitted session (the gate turned
		// away requests without one before routing got here).
		r.Get("/me", h.Me)
		r.Get("/me/permissions", h.MyPermissions)
		r.Post("/authz/check", h.AuthzCheck)

		r.With(h.RequirePermission(authz.ActionManageSessions)).
			Post("/me/sessions/revoke-all", h.RevokeAllSessions)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "devbench-console",
	})
}

// currentSession resolves the caller through the request-scoped resolver.
// The bool is false when the session is invalid or the route was mounted
// without the gate middleware (no resolver in context).
func currentSession(r *http.Request) (session.Validation, bool) {
	resolver := session.ResolverFromContext(r.Context())
	if resolver == nil {
		return session.Validation{}, false
	}
	v := resolver.Resolve(r.Context())
	return v, v.Valid
}

// Me returns the caller's session view: the identity snapshot taken at
// issuance plus the session's lifetime bounds.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	v, ok := currentSession(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"subject_id":     v.Session.SubjectID,
		"provider":       v.Session.Provider,
		"account_role":   v.Session.AccountRole,
		"email_verified": v.Session.EmailVerified,
		"session": map[string]any{
			"id":         v.Session.ID,
			"issued_at":  v.Session.IssuedAt,
			"expires_at": v.Session.ExpiresAt,
		},
	})
}

// MyPermissions lists the actions the caller's account role may perform.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	v, ok := currentSession(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	role := v.Session.AccountRole
	respondJSON(w, http.StatusOK, map[string]any{
		"role":    role,
		"actions": h.matrix.AllowedFor(role),
	})
}

// AuthzCheckRequest asks whether a role may perform an action. Role is
// optional; when absent the caller's own role is checked.
type AuthzCheckRequest struct {
	Action string `json:"action"`
	Role   string `json:"role,omitempty"`
}

// AuthzCheck evaluates one action/role pair against the compiled matrix.
// The response says allowed or denied and nothing else; which roles would
// have been authorized stays in the audit log.
func (h *Handler) AuthzCheck(w http.ResponseWriter, r *http.Request) {
	v, ok := currentSession(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req AuthzCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, "action is required")
		return
	}

	role := authz.Role(req.Role)
	if role == "" {
		role = v.Session.AccountRole
	}

	action := authz.Action(req.Action)
	authorized := h.matrix.IsAuthorized(action, role)

	h.auditor.Log(r.Context(), audit.Event{
		Type:     audit.TypePermissionCheck,
		ActorID:  v.Session.SubjectID,
		Resource: req.Action,
		Metadata: map[string]any{"role": string(role), "authorized": authorized},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"action":     action,
		"role":       role,
		"authorized": authorized,
	})
}

// RevokeAllSessions signs the caller out everywhere, invalidating every
// live session of the subject including the one making the request.
func (h *Handler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	v, ok := currentSession(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	n, err := h.sessions.RevokeAllForSubject(r.Context(), v.Session.SubjectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to revoke sessions")
		return
	}

	h.instruments.RecordRevoked(r.Context(), n)
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{
		"revoked": n,
	})
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    token,
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		Secure:   h.cookies.Secure,
		HttpOnly: h.cookies.HTTPOnly,
		SameSite: h.cookies.SameSite,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.cookies.Name,
		Value:  "",
		Path:   h.cookies.Path,
		Domain: h.cookies.Domain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.cookies.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
