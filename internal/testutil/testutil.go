// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package testutil provides shared fixtures for tests: an in-memory file
// store and a small consistent dataset.
package testutil

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmynes/taskforge/internal/filestore"
	"github.com/jmynes/taskforge/internal/model"
)

// MemFileStore is an in-memory filestore.Store for tests.
type MemFileStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// NewMemFileStore returns an empty in-memory store.
func NewMemFileStore() *MemFileStore {
	return &MemFileStore{Objects: make(map[string][]byte)}
}

func (s *MemFileStore) Write(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.Objects[key] = cp
	return nil
}

func (s *MemFileStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Objects[key]
	if !ok {
		return nil, filestore.ErrNotFound
	}
	return data, nil
}

func (s *MemFileStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[key]
	return ok, nil
}

func (s *MemFileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	return nil
}

// HashPassword returns a bcrypt hash at minimum cost, fast enough for tests.
func HashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// SampleDocument builds a small, referentially consistent dataset: two
// users, one project with a sprint, a label, two tickets, a comment and an
// attachment.
func SampleDocument() *model.BackupDocument {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.BackupDocument{
		SchemaVersion: model.BackupSchemaVersion,
		ExportedAt:    now,
		Users: []model.User{
			{ID: 1, Username: "alice", Email: "alice@example.com", DisplayName: "Alice",
				PasswordHash: HashPassword("correct horse"), IsAdmin: true, IsActive: true,
				AvatarKey: "avatars/alice.png", CreatedAt: now},
			{ID: 2, Username: "bob", Email: "bob@example.com", DisplayName: "Bob",
				PasswordHash: HashPassword("hunter2"), IsActive: true, CreatedAt: now},
		},
		Settings: []model.Setting{
			{Key: "site_name", Value: "Taskforge Test"},
		},
		Projects: []model.Project{
			{ID: 1, Key: "OPS", Name: "Operations", OwnerID: 1, CreatedAt: now},
		},
		Memberships: []model.Membership{
			{ProjectID: 1, UserID: 1, Role: "owner"},
			{ProjectID: 1, UserID: 2, Role: "member"},
		},
		Sprints: []model.Sprint{
			{ID: 1, ProjectID: 1, Name: "Sprint 1", StartsAt: now, EndsAt: now.AddDate(0, 0, 14), IsActive: true},
		},
		Labels: []model.Label{
			{ID: 1, ProjectID: 1, Name: "bug", Color: "#d73a4a"},
		},
		Tickets: []model.Ticket{
			{ID: 1, ProjectID: 1, SprintID: 1, ReporterID: 1, AssigneeID: 2,
				Title: "Fix login timeout", Status: "open", Priority: "high",
				CreatedAt: now, UpdatedAt: now},
			{ID: 2, ProjectID: 1, ReporterID: 2,
				Title: "Update dependencies", Status: "open", Priority: "low",
				CreatedAt: now, UpdatedAt: now},
		},
		TicketLabels: []model.TicketLabel{
			{TicketID: 1, LabelID: 1},
		},
		Comments: []model.Comment{
			{ID: 1, TicketID: 1, AuthorID: 2, Body: "Reproduced on staging.", CreatedAt: now},
		},
		Attachments: []model.Attachment{
			{ID: 1, TicketID: 1, UploaderID: 2, Filename: "trace.log",
				ContentType: "text/plain", Size: 4, StorageKey: "attachments/trace.log", CreatedAt: now},
		},
	}
}
