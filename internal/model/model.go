// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core domain entities of Taskforge. These are
// plain structs, free of persistence concerns; the db package maps them to
// and from table rows.
package model

import (
	"fmt"
	"time"
)

// User is an account that can sign in. PasswordHash is a bcrypt hash and
// TOTPSecret is only meaningful when TOTPEnabled is true.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	IsActive     bool      `json:"is_active"`
	TOTPEnabled  bool      `json:"totp_enabled"`
	TOTPSecret   string    `json:"totp_secret,omitempty"`
	AvatarKey    string    `json:"avatar_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// String returns the username for display purposes.
func (u User) String() string { return u.Username }

// RecoveryCode is a single-use second-factor fallback. Only a SHA-256 hash
// of the code is stored.
type RecoveryCode struct {
	ID       int    `json:"id"`
	UserID   int    `json:"user_id"`
	CodeHash string `json:"code_hash"`
	Used     bool   `json:"used"`
}

// Setting is a system-wide key/value configuration row.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Project groups tickets, sprints and labels under a short key like "OPS".
type Project struct {
	ID          int       `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int       `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// String returns the project key and name.
func (p Project) String() string { return fmt.Sprintf("%s (%s)", p.Key, p.Name) }

// Membership links a user to a project with a role.
type Membership struct {
	ProjectID int    `json:"project_id"`
	UserID    int    `json:"user_id"`
	Role      string `json:"role"`
}

// Sprint is a time-boxed iteration within a project.
type Sprint struct {
	ID        int       `json:"id"`
	ProjectID int       `json:"project_id"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	IsActive  bool      `json:"is_active"`
}

// Label is a project-scoped tag that can be attached to tickets.
type Label struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

// Ticket is the unit of work. SprintID and AssigneeID are zero when unset;
// the db layer stores them as NULL.
type Ticket struct {
	ID         int       `json:"id"`
	ProjectID  int       `json:"project_id"`
	SprintID   int       `json:"sprint_id,omitempty"`
	ReporterID int       `json:"reporter_id"`
	AssigneeID int       `json:"assignee_id,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TicketLabel is the many-to-many relationship between tickets and labels.
type TicketLabel struct {
	TicketID int `json:"ticket_id"`
	LabelID  int `json:"label_id"`
}

// Comment is a user's note on a ticket.
type Comment struct {
	ID        int       `json:"id"`
	TicketID  int       `json:"ticket_id"`
	AuthorID  int       `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment records a binary file uploaded to a ticket. StorageKey is the
// key under which the bytes live in the durable file store.
type Attachment struct {
	ID          int       `json:"id"`
	TicketID    int       `json:"ticket_id"`
	UploaderID  int       `json:"uploader_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditLogEntry records an administrative action for the audit trail.
type AuditLogEntry struct {
	ID        int    `json:"id"`
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}
