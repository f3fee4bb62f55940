// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package backup implements export, import and destructive reset of the
// Taskforge dataset. An export produces a single artifact (bare JSON,
// zstd-compressed JSON, or an archive with attachment and avatar binaries);
// an import replays such an artifact into the database inside one
// transaction. All destructive entry points share a single lock so at most
// one runs at a time across the process.
package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/filestore"
	"github.com/jmynes/taskforge/internal/logging"
	"github.com/jmynes/taskforge/internal/model"
)

// State names the phase a running destructive operation is in. Transitions
// only ever move forward through the sequence; any failure resets to Idle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateApplying
	StateRestoringFiles
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateApplying:
		return "applying"
	case StateRestoringFiles:
		return "restoring-files"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// destructiveMu serializes imports and wipes process-wide. TryLock rather
// than Lock: a second operation fails fast instead of queueing behind a
// long restore.
var destructiveMu sync.Mutex

func acquireDestructiveLock() error {
	if !destructiveMu.TryLock() {
		return ErrOperationInProgress
	}
	return nil
}

func releaseDestructiveLock() {
	destructiveMu.Unlock()
}

// Coordinator drives a full import: authorization, artifact decoding,
// validation, the transactional database replay, and file reconciliation.
type Coordinator struct {
	store db.Store
	files filestore.Store
	gate  *auth.Gate

	mu    sync.Mutex
	state State
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(store db.Store, files filestore.Store, gate *auth.Gate) *Coordinator {
	return &Coordinator{store: store, files: files, gate: gate}
}

// CurrentState reports the phase of the operation in flight, or idle.
func (c *Coordinator) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// canAdvance reports whether a phase transition is legal: phases advance
// one step at a time, and any phase may reset to idle.
func canAdvance(from, to State) bool {
	return to == StateIdle || to == from+1
}

func (c *Coordinator) setState(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canAdvance(c.state, next) {
		logging.Warnf("Refusing restore phase transition %s -> %s", c.state, next)
		return
	}
	c.state = next
}

// RestoreRequest carries everything an import needs. Merge switches from
// replace-all semantics to additive integration, which skips rows whose
// identifiers already exist.
type RestoreRequest struct {
	Artifact    []byte
	Password    string
	Credential  auth.Credential
	ConfirmText string
	Merge       bool
}

// Restore replays a backup artifact into the live system. Authorization and
// the confirmation phrase are checked before the destructive lock is taken;
// nothing is modified until both the artifact and its references validate.
// The database replay is atomic: any failure inside it leaves the previous
// dataset untouched and is reported as a FatalRestoreError.
func (c *Coordinator) Restore(ctx context.Context, req RestoreRequest) (*model.ImportResult, error) {
	operator, err := c.gate.Authorize(req.Credential)
	if err != nil {
		return nil, err
	}
	if !req.Merge {
		if err := auth.VerifyConfirmationPhrase(req.ConfirmText, auth.PhraseImportAll); err != nil {
			return nil, err
		}
	}

	if err := acquireDestructiveLock(); err != nil {
		return nil, err
	}
	defer releaseDestructiveLock()
	defer c.setState(StateIdle)

	c.setState(StateValidating)
	doc, bundled, err := c.decodeArtifact(req.Artifact, req.Password)
	if err != nil {
		return nil, err
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	c.setState(StateApplying)
	if req.Merge {
		err = c.store.IntegrateDataFromBackup(doc)
	} else {
		err = c.store.ImportDataFromBackup(doc)
	}
	if err != nil {
		return nil, &FatalRestoreError{Err: err}
	}

	c.setState(StateRestoringFiles)
	report := c.restoreFiles(ctx, doc, bundled)

	c.setState(StateReporting)
	result := &model.ImportResult{Counts: doc.CountOf(), Files: report}
	if err := c.store.LogAction(operator.Username, "IMPORT_BACKUP",
		fmt.Sprintf("imported %d users, %d projects, %d tickets (merge=%t)",
			result.Counts.Users, result.Counts.Projects, result.Counts.Tickets, req.Merge)); err != nil {
		logging.Warnf("Failed to write audit entry for import: %v", err)
	}
	logging.Infof("Import complete: %d tickets across %d projects, %d files restored",
		result.Counts.Tickets, result.Counts.Projects,
		report.AttachmentsRestored+report.AvatarsRestored)
	return result, nil
}

// decodeArtifact unwraps compression and archive layers, then parses and,
// if needed, decrypts the document.
func (c *Coordinator) decodeArtifact(artifact []byte, password string) (*model.BackupDocument, map[string][]byte, error) {
	var bundled map[string][]byte
	data := artifact

	if DetectKind(data) == KindCompressed {
		decompressed, err := DecompressDocument(data)
		if err != nil {
			return nil, nil, err
		}
		data = decompressed
	}
	if DetectKind(data) == KindArchive {
		document, files, err := Unpack(data)
		if err != nil {
			return nil, nil, err
		}
		data = document
		bundled = files
	}

	if LooksLikeEnvelope(data) {
		env, err := ParseEnvelope(data)
		if err != nil {
			return nil, nil, err
		}
		data, err = Decrypt(env, password)
		if err != nil {
			return nil, nil, err
		}
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, nil, err
	}
	return doc, bundled, nil
}

// restoreFiles writes bundled binaries back to the file store and tallies
// what the archive referenced but did not contain. Missing files never fail
// the import; the rows already committed stay and the gaps are reported.
// A nil bundle means the artifact was not an archive, so nothing counts as
// missing; an empty non-nil bundle came from an archive and every referenced
// file counts.
func (c *Coordinator) restoreFiles(ctx context.Context, doc *model.BackupDocument, bundled map[string][]byte) model.FileReport {
	var report model.FileReport
	if c.files == nil {
		return report
	}

	for _, a := range doc.Attachments {
		data, ok := bundled[AttachmentPath(a.ID)]
		if !ok {
			if bundled != nil {
				report.AttachmentsMissing++
				report.MissingFiles = append(report.MissingFiles, AttachmentPath(a.ID))
			}
			continue
		}
		if err := c.files.Write(ctx, a.StorageKey, data); err != nil {
			logging.Warnf("Failed to restore attachment %d: %v", a.ID, err)
			report.AttachmentsMissing++
			report.MissingFiles = append(report.MissingFiles, AttachmentPath(a.ID))
			continue
		}
		report.AttachmentsRestored++
	}

	for _, u := range doc.Users {
		if u.AvatarKey == "" {
			continue
		}
		data, ok := bundled[AvatarPath(u.ID)]
		if !ok {
			if bundled != nil {
				report.AvatarsMissing++
				report.MissingFiles = append(report.MissingFiles, AvatarPath(u.ID))
			}
			continue
		}
		if err := c.files.Write(ctx, u.AvatarKey, data); err != nil {
			logging.Warnf("Failed to restore avatar for user %d: %v", u.ID, err)
			report.AvatarsMissing++
			report.MissingFiles = append(report.MissingFiles, AvatarPath(u.ID))
			continue
		}
		report.AvatarsRestored++
	}
	return report
}

// Exporter produces backup artifacts from the live dataset.
type Exporter struct {
	store db.Store
	files filestore.Store
	gate  *auth.Gate
}

// NewExporter wires an exporter to its collaborators.
func NewExporter(store db.Store, files filestore.Store, gate *auth.Gate) *Exporter {
	return &Exporter{store: store, files: files, gate: gate}
}

// Export snapshots the dataset and renders it per the options. Encrypted
// exports require an authorized operator; plain exports do too when a gate
// is configured, since the document contains credential hashes.
func (e *Exporter) Export(ctx context.Context, opts model.ExportOptions, cred auth.Credential) ([]byte, error) {
	operator, err := e.gate.Authorize(cred)
	if err != nil {
		return nil, err
	}

	doc, err := e.store.ExportDataForBackup()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot dataset: %w", err)
	}
	SnapshotDocument(doc)

	document, err := MarshalDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup: %w", err)
	}

	artifact := document
	if opts.Password != "" {
		env, err := Encrypt(document, opts.Password)
		if err != nil {
			return nil, err
		}
		artifact, err = env.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize backup envelope: %w", err)
		}
	}

	if opts.WillBeArchive() {
		files, err := e.collectFiles(ctx, doc, opts)
		if err != nil {
			return nil, err
		}
		artifact, err = Pack(artifact, files)
		if err != nil {
			return nil, err
		}
	} else if opts.Compress {
		artifact, err = CompressDocument(artifact)
		if err != nil {
			return nil, err
		}
	}

	if err := e.store.LogAction(operator.Username, "EXPORT_BACKUP",
		fmt.Sprintf("exported %d users, %d projects, %d tickets (encrypted=%t, archive=%t)",
			doc.Counts.Users, doc.Counts.Projects, doc.Counts.Tickets,
			opts.Password != "", opts.WillBeArchive())); err != nil {
		logging.Warnf("Failed to write audit entry for export: %v", err)
	}
	return artifact, nil
}

// collectFiles reads the referenced binaries that actually exist in the
// file store. A missing binary is logged and skipped, not an error: the
// dataset row still exports and the manifest records the gap by omission.
func (e *Exporter) collectFiles(ctx context.Context, doc *model.BackupDocument, opts model.ExportOptions) ([]BundleFile, error) {
	var files []BundleFile

	if opts.IncludeAttachments {
		for _, a := range doc.Attachments {
			data, err := e.files.Read(ctx, a.StorageKey)
			if err == filestore.ErrNotFound {
				logging.Warnf("Attachment %d (%s) has no stored file, skipping", a.ID, a.Filename)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment %d: %w", a.ID, err)
			}
			files = append(files, BundleFile{Path: AttachmentPath(a.ID), Data: data})
		}
	}

	if opts.IncludeAvatars {
		for _, u := range doc.Users {
			if u.AvatarKey == "" {
				continue
			}
			data, err := e.files.Read(ctx, u.AvatarKey)
			if err == filestore.ErrNotFound {
				logging.Warnf("User %s has no stored avatar, skipping", u.Username)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read avatar for user %d: %w", u.ID, err)
			}
			files = append(files, BundleFile{Path: AvatarPath(u.ID), Data: data})
		}
	}
	return files, nil
}
