// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/model"
	"github.com/jmynes/taskforge/internal/testutil"
)

// adminCred matches the admin in testutil.SampleDocument.
var adminCred = auth.Credential{Username: "alice", Password: "correct horse"}

// newEngine builds a seeded store, an in-memory file store and a gate, all
// against a fresh in-memory SQLite database.
func newEngine(t *testing.T) (db.Store, *testutil.MemFileStore) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	store, err := db.NewStoreFromDSN("sqlite", "file:test_backup_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	doc := testutil.SampleDocument()
	doc.Counts = doc.CountOf()
	if err := store.ImportDataFromBackup(doc); err != nil {
		t.Fatalf("seeding dataset failed: %v", err)
	}

	files := testutil.NewMemFileStore()
	ctx := context.Background()
	require.NoError(t, files.Write(ctx, "attachments/trace.log", []byte("logs")))
	require.NoError(t, files.Write(ctx, "avatars/alice.png", []byte("png")))
	return store, files
}

func TestExportRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	exporter := NewExporter(store, files, gate)
	artifact, err := exporter.Export(ctx, model.ExportOptions{
		Password:           "backup-pw",
		IncludeAttachments: true,
		IncludeAvatars:     true,
	}, adminCred)
	require.NoError(t, err)
	assert.Equal(t, KindArchive, DetectKind(artifact))

	// Restore into a completely fresh system.
	target, err := db.NewStoreFromDSN("sqlite", "file:test_backup_target_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	seedAdmin(t, target)
	targetFiles := testutil.NewMemFileStore()

	coordinator := NewCoordinator(target, targetFiles, auth.NewGate(target))
	result, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Password:    "backup-pw",
		Credential:  auth.Credential{Username: "boot", Password: "boot-pw"},
		ConfirmText: auth.PhraseImportAll,
	})
	require.NoError(t, err)

	want := testutil.SampleDocument().CountOf()
	assert.Equal(t, want, result.Counts)
	assert.Equal(t, 1, result.Files.AttachmentsRestored)
	assert.Equal(t, 1, result.Files.AvatarsRestored)
	assert.Empty(t, result.Files.MissingFiles)

	// Files landed under their storage keys.
	data, err := targetFiles.Read(ctx, "attachments/trace.log")
	require.NoError(t, err)
	assert.Equal(t, []byte("logs"), data)

	counts, err := target.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, want, counts)

	// The restored admin's credentials work on the target system.
	_, err = auth.NewGate(target).Authorize(adminCred)
	require.NoError(t, err)
}

// seedAdmin creates a minimal admin so the gate on a fresh system has
// someone to authorize.
func seedAdmin(t *testing.T, store db.Store) {
	t.Helper()
	_, err := store.CreateUser(&model.User{
		Username:     "boot",
		PasswordHash: testutil.HashPassword("boot-pw"),
		IsAdmin:      true,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seeding admin failed: %v", err)
	}
}

func TestRestoreWrongPhraseHasNoEffect(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	artifact, err := NewExporter(store, files, gate).Export(ctx, model.ExportOptions{}, adminCred)
	require.NoError(t, err)

	before, err := store.CountEntities()
	require.NoError(t, err)

	coordinator := NewCoordinator(store, files, gate)
	_, err = coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  adminCred,
		ConfirmText: "delete all data", // wrong case
	})
	assert.ErrorIs(t, err, auth.ErrConfirmationMismatch)

	after, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRestoreWrongPassword(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	artifact, err := NewExporter(store, files, gate).Export(ctx, model.ExportOptions{Password: "right"}, adminCred)
	require.NoError(t, err)

	coordinator := NewCoordinator(store, files, gate)
	_, err = coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Password:    "wrong",
		Credential:  adminCred,
		ConfirmText: auth.PhraseImportAll,
	})
	require.Error(t, err)
	assert.True(t, IsDecryptionError(err))
}

func TestRestoreBadCredentials(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	coordinator := NewCoordinator(store, files, auth.NewGate(store))

	_, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    []byte("{}"),
		Credential:  auth.Credential{Username: "alice", Password: "nope"},
		ConfirmText: auth.PhraseImportAll,
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRestoreRejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	doc := testutil.SampleDocument()
	doc.Tickets[0].ProjectID = 404
	raw, err := MarshalDocument(doc)
	require.NoError(t, err)
	artifact, err := NewPlainEnvelope(raw).Marshal()
	require.NoError(t, err)

	before, err := store.CountEntities()
	require.NoError(t, err)

	coordinator := NewCoordinator(store, files, gate)
	_, err = coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  adminCred,
		ConfirmText: auth.PhraseImportAll,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	after, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRestoreAtomicOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	// Duplicate memberships pass validation but violate the composite
	// primary key during the insert phase.
	doc := testutil.SampleDocument()
	doc.Memberships = append(doc.Memberships, doc.Memberships[0])
	raw, err := MarshalDocument(doc)
	require.NoError(t, err)
	artifact, err := NewPlainEnvelope(raw).Marshal()
	require.NoError(t, err)

	before, err := store.ExportDataForBackup()
	require.NoError(t, err)

	coordinator := NewCoordinator(store, files, gate)
	_, err = coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  adminCred,
		ConfirmText: auth.PhraseImportAll,
	})
	require.Error(t, err)
	var fatal *FatalRestoreError
	assert.True(t, errors.As(err, &fatal))

	after, err := store.ExportDataForBackup()
	require.NoError(t, err)
	assert.Equal(t, before.Counts, after.Counts)
}

func TestRestoreMissingFilesAreTolerated(t *testing.T) {
	ctx := context.Background()
	store, _ := newEngine(t)
	_ = auth.NewGate(store)

	// Export with attachments, then strip the attachment entry out by
	// rebuilding the archive with only the document.
	doc, err := store.ExportDataForBackup()
	require.NoError(t, err)
	SnapshotDocument(doc)
	raw, err := MarshalDocument(doc)
	require.NoError(t, err)
	envData, err := NewPlainEnvelope(raw).Marshal()
	require.NoError(t, err)
	artifact, err := Pack(envData, []BundleFile{{Path: AvatarPath(1), Data: []byte("png")}})
	require.NoError(t, err)

	target, err := db.NewStoreFromDSN("sqlite", "file:test_backup_missing_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	seedAdmin(t, target)
	targetFiles := testutil.NewMemFileStore()

	coordinator := NewCoordinator(target, targetFiles, auth.NewGate(target))
	result, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  auth.Credential{Username: "boot", Password: "boot-pw"},
		ConfirmText: auth.PhraseImportAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Files.AvatarsRestored)
	assert.Equal(t, 1, result.Files.AttachmentsMissing)
	assert.Contains(t, result.Files.MissingFiles, AttachmentPath(1))

	// The attachment row itself is restored even though its bytes are gone.
	counts, err := target.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Attachments)
}

func TestRestoreCountsAllFilesMissingFromEmptyArchive(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)

	// An archive that carries the document but none of the binaries it
	// references: every referenced file must show up in the report.
	doc, err := store.ExportDataForBackup()
	require.NoError(t, err)
	SnapshotDocument(doc)
	raw, err := MarshalDocument(doc)
	require.NoError(t, err)
	artifact, err := Pack(raw, nil)
	require.NoError(t, err)

	target, err := db.NewStoreFromDSN("sqlite", "file:test_backup_empty_archive_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	seedAdmin(t, target)
	targetFiles := testutil.NewMemFileStore()

	coordinator := NewCoordinator(target, targetFiles, auth.NewGate(target))
	result, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  auth.Credential{Username: "boot", Password: "boot-pw"},
		ConfirmText: auth.PhraseImportAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Files.AttachmentsRestored)
	assert.Equal(t, 0, result.Files.AvatarsRestored)
	assert.Equal(t, 1, result.Files.AttachmentsMissing)
	assert.Equal(t, 1, result.Files.AvatarsMissing)
	assert.Contains(t, result.Files.MissingFiles, AttachmentPath(1))
	assert.Contains(t, result.Files.MissingFiles, AvatarPath(1))

	// The rows themselves still import.
	counts, err := target.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Attachments)
	_, err = files.Read(ctx, "attachments/trace.log")
	require.NoError(t, err, "source file store must be untouched")
}

func TestRestoreBareDocumentArtifact(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	// A bare document produced by a plain export imports without any
	// envelope around it.
	artifact, err := NewExporter(store, files, gate).Export(ctx, model.ExportOptions{}, adminCred)
	require.NoError(t, err)

	target, err := db.NewStoreFromDSN("sqlite", "file:test_backup_bare_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	seedAdmin(t, target)

	coordinator := NewCoordinator(target, testutil.NewMemFileStore(), auth.NewGate(target))
	result, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    artifact,
		Credential:  auth.Credential{Username: "boot", Password: "boot-pw"},
		ConfirmText: auth.PhraseImportAll,
	})
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleDocument().CountOf(), result.Counts)
	// No archive, so nothing is reported missing.
	assert.Empty(t, result.Files.MissingFiles)
	assert.Equal(t, 0, result.Files.AttachmentsMissing)
}

func TestRestoreMergeKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	doc := &model.BackupDocument{
		SchemaVersion: model.BackupSchemaVersion,
		Users: []model.User{
			{ID: 1, Username: "shadow-alice", PasswordHash: "x", IsActive: true},
			{ID: 30, Username: "erin", PasswordHash: "x", IsActive: true},
		},
	}
	raw, err := MarshalDocument(doc)
	require.NoError(t, err)
	artifact, err := NewPlainEnvelope(raw).Marshal()
	require.NoError(t, err)

	before, err := store.CountEntities()
	require.NoError(t, err)

	coordinator := NewCoordinator(store, files, gate)
	_, err = coordinator.Restore(ctx, RestoreRequest{
		Artifact:   artifact,
		Credential: adminCred,
		Merge:      true,
	})
	require.NoError(t, err)

	after, err := store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, before.Users+1, after.Users)

	u, err := store.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, u, "existing user must survive a merge import")
}

func TestRestoreMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	require.NoError(t, acquireDestructiveLock())
	defer releaseDestructiveLock()

	coordinator := NewCoordinator(store, files, gate)
	_, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    []byte("{}"),
		Credential:  adminCred,
		ConfirmText: auth.PhraseImportAll,
	})
	assert.ErrorIs(t, err, ErrOperationInProgress)
}

func TestCoordinatorStateReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	coordinator := NewCoordinator(store, files, gate)
	assert.Equal(t, StateIdle, coordinator.CurrentState())

	_, err := coordinator.Restore(ctx, RestoreRequest{
		Artifact:    []byte("not an artifact"),
		Credential:  adminCred,
		ConfirmText: auth.PhraseImportAll,
	})
	require.Error(t, err)
	assert.Equal(t, StateIdle, coordinator.CurrentState())
}

func TestCoordinatorPhaseTransitions(t *testing.T) {
	assert.True(t, canAdvance(StateIdle, StateValidating))
	assert.True(t, canAdvance(StateValidating, StateApplying))
	assert.True(t, canAdvance(StateApplying, StateRestoringFiles))
	assert.True(t, canAdvance(StateRestoringFiles, StateReporting))
	assert.True(t, canAdvance(StateReporting, StateIdle))
	assert.True(t, canAdvance(StateValidating, StateIdle))

	assert.False(t, canAdvance(StateIdle, StateApplying))
	assert.False(t, canAdvance(StateApplying, StateValidating))
	assert.False(t, canAdvance(StateIdle, StateReporting))

	// setState refuses an illegal jump and keeps the current phase.
	c := &Coordinator{}
	c.setState(StateValidating)
	c.setState(StateReporting)
	assert.Equal(t, StateValidating, c.CurrentState())
	c.setState(StateApplying)
	assert.Equal(t, StateApplying, c.CurrentState())
}

func TestExportPlainAndCompressed(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)
	exporter := NewExporter(store, files, gate)

	plain, err := exporter.Export(ctx, model.ExportOptions{}, adminCred)
	require.NoError(t, err)
	assert.Equal(t, KindPlain, DetectKind(plain))

	// A password-less export is the bare document, not an envelope.
	assert.False(t, LooksLikeEnvelope(plain))
	doc, err := ParseDocument(plain)
	require.NoError(t, err)
	assert.Equal(t, model.BackupSchemaVersion, doc.SchemaVersion)

	compressed, err := exporter.Export(ctx, model.ExportOptions{Compress: true}, adminCred)
	require.NoError(t, err)
	assert.Equal(t, KindCompressed, DetectKind(compressed))
	assert.Less(t, 0, len(compressed))
}

func TestExportSkipsAbsentFiles(t *testing.T) {
	ctx := context.Background()
	store, files := newEngine(t)
	gate := auth.NewGate(store)

	// Drop the attachment bytes; the export must still succeed.
	require.NoError(t, files.Delete(ctx, "attachments/trace.log"))

	artifact, err := NewExporter(store, files, gate).Export(ctx, model.ExportOptions{
		IncludeAttachments: true,
	}, adminCred)
	require.NoError(t, err)

	_, bundled, err := Unpack(artifact)
	require.NoError(t, err)
	assert.NotContains(t, bundled, AttachmentPath(1))
}
