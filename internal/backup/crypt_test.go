// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte(`{"schema_version":1}`)

	env, err := Encrypt(plaintext, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, env.Encrypted)
	assert.Len(t, env.Salt, saltLen)
	assert.Len(t, env.AuthTag, gcmTagLen)
	assert.NotEqual(t, plaintext, env.Payload)

	out, err := Decrypt(env, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptWrongPassword(t *testing.T) {
	env, err := Encrypt([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = Decrypt(env, "wrong")
	require.Error(t, err)
	assert.True(t, IsDecryptionError(err))
}

func TestDecryptTamperedPayload(t *testing.T) {
	env, err := Encrypt([]byte("secret"), "pw")
	require.NoError(t, err)

	env.Payload[0] ^= 0xff
	_, err = Decrypt(env, "pw")
	assert.True(t, IsDecryptionError(err))
}

func TestEncryptFreshSaltAndNonce(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Payload, b.Payload)
}

func TestPlainEnvelopeRoundTrip(t *testing.T) {
	payload := []byte(`{"users":[]}`)
	env := NewPlainEnvelope(payload)

	data, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.False(t, parsed.Encrypted)

	out, err := Decrypt(parsed, "")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestLooksLikeEnvelope(t *testing.T) {
	env, err := NewPlainEnvelope([]byte(`{}`)).Marshal()
	require.NoError(t, err)
	assert.True(t, LooksLikeEnvelope(env))

	sealed, err := Encrypt([]byte(`{}`), "pw")
	require.NoError(t, err)
	data, err := sealed.Marshal()
	require.NoError(t, err)
	assert.True(t, LooksLikeEnvelope(data))

	assert.False(t, LooksLikeEnvelope([]byte(`{"schema_version":1,"users":[]}`)))
	assert.False(t, LooksLikeEnvelope([]byte(`not json`)))
}

func TestParseEnvelopeInvariants(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `PK garbage`},
		{"encrypted without salt", `{"schema_version":1,"encrypted":true,"nonce":"AAAA","auth_tag":"AAAA","payload":"AAAA"}`},
		{"encrypted without nonce", `{"schema_version":1,"encrypted":true,"salt":"AAAA","auth_tag":"AAAA","payload":"AAAA"}`},
		{"encrypted without tag", `{"schema_version":1,"encrypted":true,"salt":"AAAA","nonce":"AAAA","payload":"AAAA"}`},
		{"plaintext with salt", `{"schema_version":1,"encrypted":false,"salt":"AAAA","payload":"AAAA"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tc.data))
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
		})
	}
}
