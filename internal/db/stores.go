// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"

	"github.com/jmynes/taskforge/internal/model"
	"github.com/uptrace/bun"
)

// bunStore implements Store on top of a *bun.DB. The dialect-specific store
// types embed it; everything dialect-sensitive is handled by Bun's query
// builder or by the migration files.
type bunStore struct {
	bun *bun.DB
}

// BunDB exposes the underlying *bun.DB for callers that need raw access,
// such as the test helpers.
func (s *bunStore) BunDB() *bun.DB { return s.bun }

func (s *bunStore) GetUserByUsername(username string) (*model.User, error) {
	return GetUserByUsernameBun(s.bun, username)
}

func (s *bunStore) GetUserByID(id int) (*model.User, error) {
	return GetUserByIDBun(s.bun, id)
}

func (s *bunStore) CreateUser(u *model.User) (int, error) {
	id, err := CreateUserBun(s.bun, u)
	if err == nil {
		u.ID = id
		_ = s.LogAction("system", "CREATE_USER", fmt.Sprintf("user: %s", u.Username))
	}
	return id, err
}

func (s *bunStore) GetAllUsers() ([]model.User, error) {
	return GetAllUsersBun(s.bun)
}

func (s *bunStore) CountAdmins() (int, error) {
	return CountAdminsBun(s.bun)
}

func (s *bunStore) ReplaceRecoveryCodes(userID int, hashes []string) error {
	return ReplaceRecoveryCodesBun(s.bun, userID, hashes)
}

func (s *bunStore) ConsumeRecoveryCode(userID int, codeHash string) (bool, error) {
	return ConsumeRecoveryCodeBun(s.bun, userID, codeHash)
}

func (s *bunStore) CountEntities() (model.EntityCounts, error) {
	return CountEntitiesBun(s.bun)
}

func (s *bunStore) GetAllProjects() ([]model.Project, error) {
	return GetAllProjectsBun(s.bun)
}

func (s *bunStore) GetAllAttachments() ([]model.Attachment, error) {
	return GetAllAttachmentsBun(s.bun)
}

func (s *bunStore) ExportDataForBackup() (*model.BackupDocument, error) {
	return ExportDataForBackupBun(s.bun)
}

func (s *bunStore) ImportDataFromBackup(doc *model.BackupDocument) error {
	return ImportDataFromBackupBun(s.bun, doc)
}

func (s *bunStore) IntegrateDataFromBackup(doc *model.BackupDocument) error {
	return IntegrateDataFromBackupBun(s.bun, doc)
}

func (s *bunStore) WipeAll(admin *model.User) error {
	return WipeAllBun(s.bun, admin)
}

func (s *bunStore) WipeProjects() (model.ProjectWipeCounts, error) {
	return WipeProjectsBun(s.bun)
}

func (s *bunStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return GetAllAuditLogEntriesBun(s.bun)
}

func (s *bunStore) LogAction(username, action, details string) error {
	return LogActionBun(s.bun, username, action, details)
}
