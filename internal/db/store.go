// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/jmynes/taskforge/internal/model"
)

// Store defines the interface for all database operations in Taskforge.
// This allows for multiple database backends to be implemented.
type Store interface {
	// User methods
	GetUserByUsername(username string) (*model.User, error)
	GetUserByID(id int) (*model.User, error)
	CreateUser(u *model.User) (int, error)
	GetAllUsers() ([]model.User, error)
	CountAdmins() (int, error)

	// Recovery code methods
	ReplaceRecoveryCodes(userID int, hashes []string) error
	ConsumeRecoveryCode(userID int, codeHash string) (bool, error)

	// Dataset methods
	CountEntities() (model.EntityCounts, error)
	GetAllProjects() ([]model.Project, error)
	GetAllAttachments() ([]model.Attachment, error)

	// Backup methods
	ExportDataForBackup() (*model.BackupDocument, error)
	ImportDataFromBackup(doc *model.BackupDocument) error
	IntegrateDataFromBackup(doc *model.BackupDocument) error

	// Wipe methods
	WipeAll(admin *model.User) error
	WipeProjects() (model.ProjectWipeCounts, error)

	// Audit log methods
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)
	LogAction(username, action, details string) error
}
