// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. The derivation is deliberately slow and memory-hard;
// changing these invalidates no existing backup because the salt-bearing
// envelope pins the derivation inputs, but older builds may refuse newer
// envelope schema versions.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	gcmTagLen    = 16
)

// EnvelopeSchemaVersion is the envelope layout version this build produces.
const EnvelopeSchemaVersion = 1

// Envelope is the self-describing container around an export payload.
// When Encrypted is false, Payload holds the plaintext document and the
// cryptographic fields are absent. When true, all three must be present and
// Payload holds the ciphertext without its authentication tag.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	Encrypted     bool   `json:"encrypted"`
	Salt          []byte `json:"salt,omitempty"`
	Nonce         []byte `json:"nonce,omitempty"`
	AuthTag       []byte `json:"auth_tag,omitempty"`
	Payload       []byte `json:"payload"`
}

// NewPlainEnvelope wraps a plaintext payload in an unencrypted envelope.
func NewPlainEnvelope(payload []byte) *Envelope {
	return &Envelope{SchemaVersion: EnvelopeSchemaVersion, Encrypted: false, Payload: payload}
}

// Marshal serializes the envelope as JSON. Byte fields render as base64.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// LooksLikeEnvelope distinguishes an envelope artifact from a bare backup
// document. Only envelopes carry a top-level "encrypted" field.
func LooksLikeEnvelope(data []byte) bool {
	var head struct {
		Encrypted *bool `json:"encrypted"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false
	}
	return head.Encrypted != nil
}

// ParseEnvelope decodes and structurally validates an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, validationErrorf("malformed envelope: %v", err)
	}
	if env.SchemaVersion != EnvelopeSchemaVersion {
		return nil, validationErrorf("unsupported envelope schema version %d", env.SchemaVersion)
	}
	if env.Encrypted {
		if len(env.Salt) == 0 || len(env.Nonce) == 0 || len(env.AuthTag) == 0 {
			return nil, validationErrorf("encrypted envelope is missing cryptographic parameters")
		}
	} else {
		if len(env.Salt) != 0 || len(env.Nonce) != 0 || len(env.AuthTag) != 0 {
			return nil, validationErrorf("plaintext envelope carries cryptographic parameters")
		}
	}
	return &env, nil
}

// deriveKey stretches a password into an AES-256 key with Argon2id.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Encrypt derives a key from password and a fresh random salt, encrypts
// plaintext with AES-256-GCM under a fresh nonce, and returns the sealed
// envelope. The GCM tag is split out into its own envelope field.
func Encrypt(plaintext []byte, password string) (*Envelope, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-gcmTagLen], sealed[len(sealed)-gcmTagLen:]

	return &Envelope{
		SchemaVersion: EnvelopeSchemaVersion,
		Encrypted:     true,
		Salt:          salt,
		Nonce:         nonce,
		AuthTag:       tag,
		Payload:       ct,
	}, nil
}

// Decrypt re-derives the key from the supplied password and the envelope's
// salt, then decrypts and verifies the authentication tag. A verification
// failure yields DecryptionError without distinguishing a wrong password
// from a corrupted artifact.
func Decrypt(env *Envelope, password string) ([]byte, error) {
	if !env.Encrypted {
		return env.Payload, nil
	}
	key := deriveKey(password, env.Salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(env.Payload)+len(env.AuthTag))
	sealed = append(sealed, env.Payload...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aesgcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{}
	}
	return plaintext, nil
}
