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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCodec_RoundTrip(t *testing.T) {
	codec, err := NewStateCodec([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	state := codec.Encode("/projects/42")
	next, err := codec.Decode(state)
	require.NoError(t, err)
	assert.Equal(t, "/projects/42", next)
}

func TestStateCodec_TamperedSignature(t *testing.T) {
	codec, err := NewStateCodec([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	state := codec.Encode("/dashboard")
	body, _, _ := strings.Cut(state, ".")
	_, err = codec.Decode(body + ".forged")
	assert.ErrorIs(t, err, ErrStateInvalid)

	_, err = codec.Decode("garbage")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestStateCodec_KeysDifferPerSecret(t *testing.T) {
	a, err := NewStateCodec([]byte("secret-a"), time.Minute)
	require.NoError(t, err)
	b, err := NewStateCodec([]byte("secret-b"), time.Minute)
	require.NoError(t, err)

	_, err = b.Decode(a.Encode("/x"))
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestStateCodec_Expired(t *testing.T) {
	codec, err := NewStateCodec([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	state := codec.Encode("/dashboard")
	codec.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = codec.Decode(state)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestNormalizeMessage(t *testing.T) {
	cases := map[string]string{
		"user not found":                     MsgNoAccount,
		"Principal Not Found for tenant":     MsgNoAccount,
		"not valid credentials":              MsgInvalidCredentials,
		"identity already exists in account": MsgAccountExists,
		ReasonMissingIdentityData:            MsgMissingIdentity,
		ReasonBackendUnavailable:             MsgTemporarilyDown,
		"ERR_BACKEND_0x41 replication stall": MsgGeneric,
		"":                                   MsgGeneric,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeMessage(raw), "raw=%q", raw)
	}
}
