// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmynes/taskforge/internal/auth"
)

func TestWipeAllHappyPath(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	admin, err := wiper.WipeAll(adminCred, auth.PhraseWipeAll, "rescue", "rescue-pw")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.NotZero(t, admin.ID)

	counts, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Users)
	assert.Equal(t, 0, counts.Projects)
	assert.Equal(t, 0, counts.Tickets)

	// The fresh admin can sign in with the chosen password.
	_, err = auth.NewGate(store).Authorize(auth.Credential{Username: "rescue", Password: "rescue-pw"})
	require.NoError(t, err)
}

func TestWipeAllWrongPhrase(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	before, err := store.CountEntities()
	require.NoError(t, err)

	_, err = wiper.WipeAll(adminCred, "Wipe All Data", "rescue", "pw")
	assert.ErrorIs(t, err, auth.ErrConfirmationMismatch)

	after, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected wipe must not touch the dataset")
}

func TestWipeAllRequiresReplacementAdmin(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	_, err := wiper.WipeAll(adminCred, auth.PhraseWipeAll, "", "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWipeAllBadCredentials(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	_, err := wiper.WipeAll(auth.Credential{Username: "alice", Password: "bad"},
		auth.PhraseWipeAll, "rescue", "pw")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestWipeAllRejectsNonAdmin(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	_, err := wiper.WipeAll(auth.Credential{Username: "bob", Password: "hunter2"},
		auth.PhraseWipeAll, "rescue", "pw")
	assert.ErrorIs(t, err, auth.ErrNotAdmin)
}

func TestWipeProjectsHappyPath(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	counts, err := wiper.WipeProjects(adminCred, auth.PhraseWipeProjects)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Projects)
	assert.Equal(t, 2, counts.Tickets)
	assert.Equal(t, 1, counts.Attachments)

	after, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 0, after.Projects)
	assert.Equal(t, 2, after.Users, "accounts survive a project wipe")
	assert.Equal(t, 1, after.Settings, "settings survive a project wipe")
}

func TestWipeProjectsWrongPhrase(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	// The full-wipe phrase does not confirm a project wipe.
	_, err := wiper.WipeProjects(adminCred, auth.PhraseWipeAll)
	assert.ErrorIs(t, err, auth.ErrConfirmationMismatch)
}

func TestWipeSharesDestructiveLock(t *testing.T) {
	store, _ := newEngine(t)
	wiper := NewWiper(store, auth.NewGate(store))

	require.NoError(t, acquireDestructiveLock())
	defer releaseDestructiveLock()

	_, err := wiper.WipeAll(adminCred, auth.PhraseWipeAll, "rescue", "pw")
	assert.ErrorIs(t, err, ErrOperationInProgress)

	_, err = wiper.WipeProjects(adminCred, auth.PhraseWipeProjects)
	assert.ErrorIs(t, err, ErrOperationInProgress)
}
