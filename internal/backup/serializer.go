// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"encoding/json"
	"time"

	"github.com/jmynes/taskforge/internal/model"
)

// MarshalDocument renders the document as indented JSON so that exports
// diff cleanly under version control.
func MarshalDocument(doc *model.BackupDocument) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// ParseDocument decodes a plaintext document. A payload that is not valid
// JSON, or not object-shaped, is a validation failure.
func ParseDocument(data []byte) (*model.BackupDocument, error) {
	var doc model.BackupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, validationErrorf("document is not valid JSON: %v", err)
	}
	return &doc, nil
}

// SnapshotDocument assembles an export document from a full dataset read.
// Counts are recomputed from the slices so they can never drift from the
// actual content.
func SnapshotDocument(doc *model.BackupDocument) {
	doc.SchemaVersion = model.BackupSchemaVersion
	doc.ExportedAt = time.Now().UTC()
	doc.Counts = doc.CountOf()
}

// ValidateDocument checks the schema version and every cross-entity
// reference before any row is written. The first violation found is
// returned; nothing about the live dataset is consulted.
func ValidateDocument(doc *model.BackupDocument) error {
	if doc.SchemaVersion != model.BackupSchemaVersion {
		return validationErrorf("unsupported schema version %d (expected %d)",
			doc.SchemaVersion, model.BackupSchemaVersion)
	}

	users := make(map[int]bool, len(doc.Users))
	for _, u := range doc.Users {
		if u.Username == "" {
			return validationErrorf("user %d has an empty username", u.ID)
		}
		if users[u.ID] {
			return validationErrorf("duplicate user id %d", u.ID)
		}
		users[u.ID] = true
	}

	for _, rc := range doc.RecoveryCodes {
		if !users[rc.UserID] {
			return validationErrorf("recovery code %d references unknown user %d", rc.ID, rc.UserID)
		}
	}

	projects := make(map[int]bool, len(doc.Projects))
	for _, p := range doc.Projects {
		if p.Key == "" {
			return validationErrorf("project %d has an empty key", p.ID)
		}
		if projects[p.ID] {
			return validationErrorf("duplicate project id %d", p.ID)
		}
		if !users[p.OwnerID] {
			return validationErrorf("project %q references unknown owner %d", p.Key, p.OwnerID)
		}
		projects[p.ID] = true
	}

	for _, m := range doc.Memberships {
		if !projects[m.ProjectID] {
			return validationErrorf("membership references unknown project %d", m.ProjectID)
		}
		if !users[m.UserID] {
			return validationErrorf("membership references unknown user %d", m.UserID)
		}
	}

	sprints := make(map[int]bool, len(doc.Sprints))
	for _, s := range doc.Sprints {
		if !projects[s.ProjectID] {
			return validationErrorf("sprint %d references unknown project %d", s.ID, s.ProjectID)
		}
		sprints[s.ID] = true
	}

	labels := make(map[int]bool, len(doc.Labels))
	for _, l := range doc.Labels {
		if !projects[l.ProjectID] {
			return validationErrorf("label %d references unknown project %d", l.ID, l.ProjectID)
		}
		labels[l.ID] = true
	}

	tickets := make(map[int]bool, len(doc.Tickets))
	for _, t := range doc.Tickets {
		if tickets[t.ID] {
			return validationErrorf("duplicate ticket id %d", t.ID)
		}
		if !projects[t.ProjectID] {
			return validationErrorf("ticket %d references unknown project %d", t.ID, t.ProjectID)
		}
		if t.SprintID != 0 && !sprints[t.SprintID] {
			return validationErrorf("ticket %d references unknown sprint %d", t.ID, t.SprintID)
		}
		if !users[t.ReporterID] {
			return validationErrorf("ticket %d references unknown reporter %d", t.ID, t.ReporterID)
		}
		if t.AssigneeID != 0 && !users[t.AssigneeID] {
			return validationErrorf("ticket %d references unknown assignee %d", t.ID, t.AssigneeID)
		}
		tickets[t.ID] = true
	}

	for _, tl := range doc.TicketLabels {
		if !tickets[tl.TicketID] {
			return validationErrorf("ticket label references unknown ticket %d", tl.TicketID)
		}
		if !labels[tl.LabelID] {
			return validationErrorf("ticket label references unknown label %d", tl.LabelID)
		}
	}

	for _, c := range doc.Comments {
		if !tickets[c.TicketID] {
			return validationErrorf("comment %d references unknown ticket %d", c.ID, c.TicketID)
		}
		if !users[c.AuthorID] {
			return validationErrorf("comment %d references unknown author %d", c.ID, c.AuthorID)
		}
	}

	for _, a := range doc.Attachments {
		if !tickets[a.TicketID] {
			return validationErrorf("attachment %d references unknown ticket %d", a.ID, a.TicketID)
		}
		if !users[a.UploaderID] {
			return validationErrorf("attachment %d references unknown uploader %d", a.ID, a.UploaderID)
		}
	}

	return nil
}
