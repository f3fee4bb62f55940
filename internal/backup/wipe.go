// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"fmt"
	"time"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/logging"
	"github.com/jmynes/taskforge/internal/model"
)

// Wiper performs the two destructive reset operations. Both share the
// process-wide destructive lock with imports.
type Wiper struct {
	store db.Store
	gate  *auth.Gate
}

// NewWiper wires a wiper to the store and authorization gate.
func NewWiper(store db.Store, gate *auth.Gate) *Wiper {
	return &Wiper{store: store, gate: gate}
}

// WipeAll deletes every row of every table and seeds a fresh administrator
// account, all inside one transaction. The system is never left without an
// admin: if seeding fails, the wipe rolls back with it. Files in the file
// store are not touched; orphaned binaries are cleaned up out of band.
func (w *Wiper) WipeAll(cred auth.Credential, confirmText, newAdminUsername, newAdminPassword string) (*model.User, error) {
	operator, err := w.gate.Authorize(cred)
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyConfirmationPhrase(confirmText, auth.PhraseWipeAll); err != nil {
		return nil, err
	}
	if newAdminUsername == "" || newAdminPassword == "" {
		return nil, validationErrorf("replacement admin username and password are required")
	}

	if err := acquireDestructiveLock(); err != nil {
		return nil, err
	}
	defer releaseDestructiveLock()

	hash, err := auth.HashPassword(newAdminPassword)
	if err != nil {
		return nil, err
	}
	admin := &model.User{
		Username:     newAdminUsername,
		DisplayName:  newAdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	logging.Warnf("Full system wipe requested by %s", operator.Username)
	if err := w.store.WipeAll(admin); err != nil {
		return nil, fmt.Errorf("failed to wipe system: %w", err)
	}

	if err := w.store.LogAction(admin.Username, "WIPE_ALL",
		fmt.Sprintf("system wiped by %s, new admin %s seeded", operator.Username, admin.Username)); err != nil {
		logging.Warnf("Failed to write audit entry for wipe: %v", err)
	}
	logging.Infof("System wiped, new administrator %s created", admin.Username)
	return admin, nil
}

// WipeProjects deletes all project-scoped data (projects, sprints, labels,
// tickets, comments, attachments, memberships) while keeping accounts,
// settings and the audit trail. All deletions run in one transaction.
func (w *Wiper) WipeProjects(cred auth.Credential, confirmText string) (model.ProjectWipeCounts, error) {
	var zero model.ProjectWipeCounts

	operator, err := w.gate.Authorize(cred)
	if err != nil {
		return zero, err
	}
	if err := auth.VerifyConfirmationPhrase(confirmText, auth.PhraseWipeProjects); err != nil {
		return zero, err
	}

	if err := acquireDestructiveLock(); err != nil {
		return zero, err
	}
	defer releaseDestructiveLock()

	logging.Warnf("Project wipe requested by %s", operator.Username)
	counts, err := w.store.WipeProjects()
	if err != nil {
		return zero, fmt.Errorf("failed to wipe projects: %w", err)
	}

	if err := w.store.LogAction(operator.Username, "WIPE_PROJECTS",
		fmt.Sprintf("deleted %d projects, %d tickets, %d attachments",
			counts.Projects, counts.Tickets, counts.Attachments)); err != nil {
		logging.Warnf("Failed to write audit entry for project wipe: %v", err)
	}
	logging.Infof("Project wipe complete: %d projects removed", counts.Projects)
	return counts, nil
}
