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

package federation

import "strings"

// User-safe messages. Backend wording never reaches users verbatim: known
// phrases map to these fixed strings, everything else falls back to the
// generic retry message.
const (
	MsgAccountExists      = "An account with this email already exists. Try signing in instead."
	MsgInvalidCredentials = "Incorrect email or password."
	MsgNoAccount          = "No account matches this identity. Ask your account owner for an invitation."
	MsgMissingIdentity    = "The sign-in provider did not return the required profile information. Please try again."
	MsgTemporarilyDown    = "Sign-in is temporarily unavailable. Please try again in a moment."
	MsgGeneric            = "Something went wrong during sign-in. Please try again."
)

// NormalizeMessage maps an internal rejection reason to its user-safe
// message. Matching is on known backend phrases, case-insensitively.
func NormalizeMessage(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case lower == ReasonMissingIdentityData:
		return MsgMissingIdentity
	case lower == ReasonBackendUnavailable:
		return MsgTemporarilyDown
	case strings.Contains(lower, "already exists"):
		return MsgAccountExists
	case strings.Contains(lower, "not valid credentials"),
		strings.Contains(lower, "invalid credentials"),
		strings.Contains(lower, "invalid password"):
		return MsgInvalidCredentials
	case strings.Contains(lower, "user not found"),
		strings.Contains(lower, "principal not found"),
		strings.Contains(lower, "no such user"):
		return MsgNoAccount
	default:
		return MsgGeneric
	}
}
