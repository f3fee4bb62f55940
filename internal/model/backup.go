// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.
package model

import "time"

// BackupSchemaVersion is the document version this build reads and writes.
// A document with any other version fails validation; there is no coercion.
const BackupSchemaVersion = 1

// BackupDocument is the plaintext export of the entire dataset. Entity
// slices are ordered so that replaying inserts in struct order satisfies
// every foreign key in a single pass: users before projects before tickets
// before comments and attachments.
type BackupDocument struct {
	SchemaVersion int          `json:"schema_version"`
	ExportedAt    time.Time    `json:"exported_at"`
	Counts        EntityCounts `json:"counts"`

	Users         []User         `json:"users"`
	RecoveryCodes []RecoveryCode `json:"recovery_codes"`
	Settings      []Setting      `json:"settings"`
	Projects      []Project      `json:"projects"`
	Memberships   []Membership   `json:"memberships"`
	Sprints       []Sprint       `json:"sprints"`
	Labels        []Label        `json:"labels"`
	Tickets       []Ticket       `json:"tickets"`
	TicketLabels  []TicketLabel  `json:"ticket_labels"`
	Comments      []Comment      `json:"comments"`
	Attachments   []Attachment   `json:"attachments"`
	AuditLog      []AuditLogEntry `json:"audit_log"`
}

// EntityCounts tallies the rows of each entity type.
type EntityCounts struct {
	Users        int `json:"users"`
	Projects     int `json:"projects"`
	Memberships  int `json:"memberships"`
	Sprints      int `json:"sprints"`
	Labels       int `json:"labels"`
	Tickets      int `json:"tickets"`
	TicketLabels int `json:"ticket_labels"`
	Comments     int `json:"comments"`
	Attachments  int `json:"attachments"`
	Settings     int `json:"settings"`
}

// CountOf recomputes the entity counts from the document's slices.
func (d *BackupDocument) CountOf() EntityCounts {
	return EntityCounts{
		Users:        len(d.Users),
		Projects:     len(d.Projects),
		Memberships:  len(d.Memberships),
		Sprints:      len(d.Sprints),
		Labels:       len(d.Labels),
		Tickets:      len(d.Tickets),
		TicketLabels: len(d.TicketLabels),
		Comments:     len(d.Comments),
		Attachments:  len(d.Attachments),
		Settings:     len(d.Settings),
	}
}

// FileManifestEntry describes one binary file referenced by the document.
// Present reflects what was actually found in the archive, never what any
// embedded manifest claims.
type FileManifestEntry struct {
	EntityType   string `json:"entity_type"`
	EntityID     int    `json:"entity_id"`
	RelativePath string `json:"relative_path"`
	Present      bool   `json:"present"`
}

// ExportOptions selects what an export artifact contains.
type ExportOptions struct {
	Password           string
	IncludeAttachments bool
	IncludeAvatars     bool
	Compress           bool
}

// WillBeArchive reports whether the artifact must be packaged as an archive.
func (o ExportOptions) WillBeArchive() bool {
	return o.IncludeAttachments || o.IncludeAvatars
}

// FileReport is the reconciliation section of an ImportResult.
type FileReport struct {
	AttachmentsRestored int      `json:"attachments_restored"`
	AvatarsRestored     int      `json:"avatars_restored"`
	AttachmentsMissing  int      `json:"attachments_missing"`
	AvatarsMissing      int      `json:"avatars_missing"`
	MissingFiles        []string `json:"missing_files,omitempty"`
}

// ImportResult is returned once per fully successful import. It is never
// partially populated: a failed import returns an error and no result.
type ImportResult struct {
	Counts EntityCounts `json:"counts"`
	Files  FileReport   `json:"files"`
}

// ProjectWipeCounts reports what a project-scoped wipe removed.
type ProjectWipeCounts struct {
	Projects    int `json:"projects"`
	Sprints     int `json:"sprints"`
	Labels      int `json:"labels"`
	Tickets     int `json:"tickets"`
	Comments    int `json:"comments"`
	Attachments int `json:"attachments"`
	Memberships int `json:"memberships"`
}
