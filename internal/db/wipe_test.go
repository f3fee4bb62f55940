// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"testing"

	"github.com/jmynes/taskforge/internal/model"
)

func TestWipeAllSeedsAdmin(t *testing.T) {
	s := newTestDB(t)
	seedDataset(t, s)

	admin := &model.User{Username: "fresh-admin", PasswordHash: "hash"}
	if err := s.WipeAll(admin); err != nil {
		t.Fatalf("WipeAll failed: %v", err)
	}

	counts, err := s.CountEntities()
	if err != nil {
		t.Fatalf("CountEntities failed: %v", err)
	}
	if counts.Users != 1 {
		t.Fatalf("expected exactly one user after wipe, got %d", counts.Users)
	}
	if counts.Projects != 0 || counts.Tickets != 0 || counts.Settings != 0 {
		t.Fatalf("expected empty dataset after wipe, got %+v", counts)
	}

	u, err := s.GetUserByUsername("fresh-admin")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if u == nil || !u.IsAdmin || !u.IsActive {
		t.Fatalf("expected an active admin after wipe, got %+v", u)
	}
	if admin.ID == 0 {
		t.Fatalf("expected WipeAll to set the new admin's id")
	}

	n, err := s.CountAdmins()
	if err != nil {
		t.Fatalf("CountAdmins failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one admin, got %d", n)
	}
}

func TestWipeAllClearsAuditLog(t *testing.T) {
	s := newTestDB(t)
	if err := s.LogAction("alice", "EXPORT_BACKUP", "before wipe"); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	if err := s.WipeAll(&model.User{Username: "a", PasswordHash: "h"}); err != nil {
		t.Fatalf("WipeAll failed: %v", err)
	}

	entries, err := s.GetAllAuditLogEntries()
	if err != nil {
		t.Fatalf("GetAllAuditLogEntries failed: %v", err)
	}
	for _, e := range entries {
		if e.Details == "before wipe" {
			t.Fatalf("audit entry survived a full wipe: %+v", e)
		}
	}
}

func TestWipeProjectsKeepsAccounts(t *testing.T) {
	s := newTestDB(t)
	doc := seedDataset(t, s)
	if err := s.LogAction("alice", "EXPORT_BACKUP", "history"); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	counts, err := s.WipeProjects()
	if err != nil {
		t.Fatalf("WipeProjects failed: %v", err)
	}
	want := model.ProjectWipeCounts{
		Projects:    len(doc.Projects),
		Sprints:     len(doc.Sprints),
		Labels:      len(doc.Labels),
		Tickets:     len(doc.Tickets),
		Comments:    len(doc.Comments),
		Attachments: len(doc.Attachments),
		Memberships: len(doc.Memberships),
	}
	if counts != want {
		t.Fatalf("wipe counts mismatch: got %+v want %+v", counts, want)
	}

	after, err := s.CountEntities()
	if err != nil {
		t.Fatalf("CountEntities failed: %v", err)
	}
	if after.Projects != 0 || after.Tickets != 0 || after.Attachments != 0 {
		t.Fatalf("expected project data gone, got %+v", after)
	}
	if after.Users != len(doc.Users) || after.Settings != len(doc.Settings) {
		t.Fatalf("expected accounts and settings untouched, got %+v", after)
	}

	// The audit trail is system data and survives a project wipe.
	entries, err := s.GetAllAuditLogEntries()
	if err != nil {
		t.Fatalf("GetAllAuditLogEntries failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected audit trail to survive a project wipe")
	}
}
