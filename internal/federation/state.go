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

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/devbench/console/internal/id"
)

var (
	ErrStateInvalid = errors.New("state parameter invalid")
	ErrStateExpired = errors.New("state parameter expired")
)

// StateCodec signs the OAuth state parameter so the original request path
// survives the provider round trip without trusting the callback query
// string. The signing key is derived from the process secret; the state
// carries a nonce and a short expiry.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type statePayload struct {
	Next  string `json:"next"`
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
}

// NewStateCodec derives the state-signing key from secret. The label keeps
// it distinct from the session-signing key derived from the same secret.
func NewStateCodec(secret []byte, ttl time.Duration) (*StateCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("state codec requires a secret")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("devbench-console/oauth-state"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return &StateCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// Encode produces a signed state carrying the post-login return path.
func (c *StateCodec) Encode(next string) string {
	payload, _ := json.Marshal(statePayload{
		Next:  next,
		Nonce: id.NewUUIDv7(),
		Exp:   c.now().Add(c.ttl).Unix(),
	})
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body)
}

// Decode verifies the signature and expiry and returns the original path.
func (c *StateCodec) Decode(state string) (string, error) {
	body, sig, ok := strings.Cut(state, ".")
	if !ok {
		return "", ErrStateInvalid
	}
	if !hmac.Equal([]byte(c.sign(body)), []byte(sig)) {
		return "", ErrStateInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", ErrStateInvalid
	}
	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", ErrStateInvalid
	}
	if c.now().Unix() > payload.Exp {
		return "", ErrStateExpired
	}
	return payload.Next, nil
}

func (c *StateCodec) sign(body string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
