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
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/authz"
	"github.com/devbench/console/internal/gate"
	"github.com/devbench/console/internal/observability/logger"
	"github.com/devbench/console/internal/session"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// GateMiddleware runs route admission for every request. It builds the
// request-scoped session resolver, asks the gate for a verdict, and either
// admits the request or turns it away. Handlers downstream reuse the same
// resolver, so the session lookup happens at most once per request no
// matter how many of them ask.
func (h *Handler) GateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.getSessionFromCookie(r)
		if token == "" {
			token = bearerToken(r)
		}
		resolver := session.NewResolver(h.sessions, token)
		ctx := session.WithResolver(r.Context(), resolver)
		r = r.WithContext(ctx)

		v := resolver.Resolve(ctx)
		result := h.gate.Decide(r.URL.Path, v)
		h.instruments.RecordGateDecision(ctx, result.Decision.String())

		switch result.Decision {
		case gate.Allow:
			if v.Valid {
				ctx = context.WithValue(ctx, subjectIDKey, v.Session.SubjectID)
				ctx = context.WithValue(ctx, sessionIDKey, v.Session.ID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)

		case gate.RedirectToSignIn:
			if token != "" {
				// A token was presented and failed. The reason stays in the
				// logs; the caller only learns "sign in again".
				slog.InfoContext(ctx, "session invalid",
					logger.InvalidReason(string(v.Reason)),
					logger.Path(r.URL.Path),
				)
				h.clearSessionCookie(w)
			}
			h.auditor.Log(ctx, audit.Event{
				Type:      audit.TypeGateRedirect,
				Resource:  r.URL.Path,
				Reason:    string(v.Reason),
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
			})
			if isAPIPath(r.URL.Path) {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			http.Redirect(w, r, h.routes.SignInPath+"?next="+url.QueryEscape(result.OriginalPath), http.StatusFound)

		case gate.RedirectToVerification:
			if isAPIPath(r.URL.Path) {
				respondError(w, http.StatusForbidden, "email not verified")
				return
			}
			http.Redirect(w, r, h.routes.VerificationPath, http.StatusFound)
		}
	})
}

// RequirePermission gates a route on one action from the permission
// matrix, checked against the role snapshot in the caller's session. The
// denial body is deliberately generic; role and grant details go to the
// audit log only.
func (h *Handler) RequirePermission(action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolver := session.ResolverFromContext(r.Context())
			if resolver == nil {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			v := resolver.Resolve(r.Context())
			if !v.Valid {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if !h.matrix.IsAuthorized(action, v.Session.AccountRole) {
				h.auditor.Log(r.Context(), audit.Event{
					Type:      audit.TypeAccessDenied,
					ActorID:   v.Session.SubjectID,
					Resource:  string(action),
					Reason:    "role " + string(v.Session.AccountRole) + " lacks " + string(action),
					IPAddress: getIPAddress(r),
					UserAgent: r.UserAgent(),
				})
				respondError(w, http.StatusForbidden, "not authorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
