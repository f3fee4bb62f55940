// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package auth verifies operator identity before destructive operations.
// Every import, wipe and encrypted export passes through the Gate: password
// first, then a second factor when the account has one enrolled, then the
// typed confirmation phrase for the operation at hand.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/model"
)

// Confirmation phrases, compared byte-for-byte with what the operator typed.
const (
	// PhraseImportAll confirms a full import, which replaces the dataset.
	PhraseImportAll = "DELETE ALL DATA"
	// PhraseWipeAll confirms a full system wipe.
	PhraseWipeAll = "WIPE ALL DATA"
	// PhraseWipeProjects confirms deleting all project-scoped data.
	PhraseWipeProjects = "DELETE ALL PROJECTS"
)

var (
	// ErrInvalidCredentials covers unknown usernames, wrong passwords and
	// inactive accounts alike, so a caller cannot probe which it was.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSecondFactorRequired means the password checked out but the
	// account has TOTP enrolled and no code was supplied.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrInvalidSecondFactor means the supplied TOTP or recovery code was
	// rejected.
	ErrInvalidSecondFactor = errors.New("invalid second factor")
	// ErrConfirmationMismatch means the typed phrase did not match the
	// operation's required phrase exactly.
	ErrConfirmationMismatch = errors.New("confirmation phrase does not match")
	// ErrNotAdmin means the credentials belong to a non-administrator.
	ErrNotAdmin = errors.New("administrator privileges required")
)

// Credential is what the operator presents to the gate. TOTPCode doubles as
// the recovery code when IsRecoveryCode is set.
type Credential struct {
	Username       string
	Password       string
	TOTPCode       string
	IsRecoveryCode bool
}

// Gate authorizes destructive operations against the account store. The
// zero value is not usable; construct with NewGate.
type Gate struct {
	store db.Store
	now   func() time.Time
}

// NewGate returns a gate bound to the given store.
func NewGate(store db.Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// VerifyCredentials checks the username and password. Inactive accounts
// fail the same way unknown ones do.
func (g *Gate) VerifyCredentials(username, password string) (*model.User, error) {
	user, err := g.store.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// VerifySecondFactor validates a TOTP code, or consumes a recovery code
// when the credential is flagged as one. Recovery codes are single use.
func (g *Gate) VerifySecondFactor(user *model.User, code string, isRecoveryCode bool) error {
	if isRecoveryCode {
		hash := HashRecoveryCode(code)
		ok, err := g.store.ConsumeRecoveryCode(user.ID, hash)
		if err != nil {
			return fmt.Errorf("failed to consume recovery code: %w", err)
		}
		if !ok {
			return ErrInvalidSecondFactor
		}
		return nil
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), user.TOTPSecret, g.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrInvalidSecondFactor
	}
	return nil
}

// Authorize runs the full check: password, admin bit, and a second factor
// when (and only when) the account has TOTP enrolled. The second-factor
// requirement is probed from the account at call time, never cached.
func (g *Gate) Authorize(cred Credential) (*model.User, error) {
	user, err := g.VerifyCredentials(cred.Username, cred.Password)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, ErrNotAdmin
	}
	if user.TOTPEnabled {
		if cred.TOTPCode == "" {
			return nil, ErrSecondFactorRequired
		}
		if err := g.VerifySecondFactor(user, cred.TOTPCode, cred.IsRecoveryCode); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// VerifyConfirmationPhrase compares the typed text with the required phrase.
// Matching is exact and case-sensitive; "delete all data" does not confirm
// PhraseImportAll.
func VerifyConfirmationPhrase(typed, required string) error {
	if typed != required {
		return ErrConfirmationMismatch
	}
	return nil
}

// HashPassword produces a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// HashRecoveryCode returns the hex SHA-256 of a recovery code, the only
// form ever stored.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// GenerateRecoveryCodes creates n fresh codes and returns them alongside
// their hashes. The plaintext codes are shown to the operator once and
// never persisted.
func GenerateRecoveryCodes(n int) (codes []string, hashes []string) {
	for i := 0; i < n; i++ {
		code := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		codes = append(codes, code)
		hashes = append(hashes, HashRecoveryCode(code))
	}
	return codes, hashes
}
