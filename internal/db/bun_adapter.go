package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmynes/taskforge/internal/model"
	"github.com/uptrace/bun"
)

// UserModel maps the `users` table for Bun queries.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`
	ID            int            `bun:"id,pk,autoincrement"`
	Username      string         `bun:"username"`
	Email         string         `bun:"email"`
	DisplayName   string         `bun:"display_name"`
	PasswordHash  string         `bun:"password_hash"`
	IsAdmin       bool           `bun:"is_admin"`
	IsActive      bool           `bun:"is_active"`
	TOTPEnabled   bool           `bun:"totp_enabled"`
	TOTPSecret    sql.NullString `bun:"totp_secret"`
	AvatarKey     sql.NullString `bun:"avatar_key"`
	CreatedAt     time.Time      `bun:"created_at"`
}

// RecoveryCodeModel maps the `recovery_codes` table.
type RecoveryCodeModel struct {
	bun.BaseModel `bun:"table:recovery_codes"`
	ID            int    `bun:"id,pk,autoincrement"`
	UserID        int    `bun:"user_id"`
	CodeHash      string `bun:"code_hash"`
	Used          bool   `bun:"used"`
}

// SettingModel maps the `settings` table.
type SettingModel struct {
	bun.BaseModel `bun:"table:settings"`
	Key           string `bun:"name,pk"`
	Value         string `bun:"value"`
}

// ProjectModel maps the `projects` table.
type ProjectModel struct {
	bun.BaseModel `bun:"table:projects"`
	ID            int            `bun:"id,pk,autoincrement"`
	Key           string         `bun:"slug"`
	Name          string         `bun:"name"`
	Description   sql.NullString `bun:"description"`
	OwnerID       int            `bun:"owner_id"`
	CreatedAt     time.Time      `bun:"created_at"`
}

// MembershipModel maps the `memberships` join table.
type MembershipModel struct {
	bun.BaseModel `bun:"table:memberships"`
	ProjectID     int    `bun:"project_id"`
	UserID        int    `bun:"user_id"`
	Role          string `bun:"role"`
}

// SprintModel maps the `sprints` table.
type SprintModel struct {
	bun.BaseModel `bun:"table:sprints"`
	ID            int       `bun:"id,pk,autoincrement"`
	ProjectID     int       `bun:"project_id"`
	Name          string    `bun:"name"`
	StartsAt      time.Time `bun:"starts_at"`
	EndsAt        time.Time `bun:"ends_at"`
	IsActive      bool      `bun:"is_active"`
}

// LabelModel maps the `labels` table.
type LabelModel struct {
	bun.BaseModel `bun:"table:labels"`
	ID            int    `bun:"id,pk,autoincrement"`
	ProjectID     int    `bun:"project_id"`
	Name          string `bun:"name"`
	Color         string `bun:"color"`
}

// TicketModel maps the `tickets` table.
type TicketModel struct {
	bun.BaseModel `bun:"table:tickets"`
	ID            int           `bun:"id,pk,autoincrement"`
	ProjectID     int           `bun:"project_id"`
	SprintID      sql.NullInt64 `bun:"sprint_id"`
	ReporterID    int           `bun:"reporter_id"`
	AssigneeID    sql.NullInt64 `bun:"assignee_id"`
	Title         string        `bun:"title"`
	Body          string        `bun:"body"`
	Status        string        `bun:"status"`
	Priority      string        `bun:"priority"`
	CreatedAt     time.Time     `bun:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at"`
}

// CommentModel maps the `comments` table.
type CommentModel struct {
	bun.BaseModel `bun:"table:comments"`
	ID            int       `bun:"id,pk,autoincrement"`
	TicketID      int       `bun:"ticket_id"`
	AuthorID      int       `bun:"author_id"`
	Body          string    `bun:"body"`
	CreatedAt     time.Time `bun:"created_at"`
}

// AttachmentModel maps the `attachments` table.
type AttachmentModel struct {
	bun.BaseModel `bun:"table:attachments"`
	ID            int       `bun:"id,pk,autoincrement"`
	TicketID      int       `bun:"ticket_id"`
	UploaderID    int       `bun:"uploader_id"`
	Filename      string    `bun:"filename"`
	ContentType   string    `bun:"content_type"`
	Size          int64     `bun:"size"`
	StorageKey    string    `bun:"storage_key"`
	CreatedAt     time.Time `bun:"created_at"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// --- Mapping helpers (centralized conversions) ---

func userModelToModel(u UserModel) model.User {
	m := model.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		IsActive:     u.IsActive,
		TOTPEnabled:  u.TOTPEnabled,
		CreatedAt:    u.CreatedAt,
	}
	if u.TOTPSecret.Valid {
		m.TOTPSecret = u.TOTPSecret.String
	}
	if u.AvatarKey.Valid {
		m.AvatarKey = u.AvatarKey.String
	}
	return m
}

func userToUserModel(u model.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		IsActive:     u.IsActive,
		TOTPEnabled:  u.TOTPEnabled,
		TOTPSecret:   sql.NullString{String: u.TOTPSecret, Valid: u.TOTPSecret != ""},
		AvatarKey:    sql.NullString{String: u.AvatarKey, Valid: u.AvatarKey != ""},
		CreatedAt:    u.CreatedAt,
	}
}

func projectModelToModel(p ProjectModel) model.Project {
	m := model.Project{ID: p.ID, Key: p.Key, Name: p.Name, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt}
	if p.Description.Valid {
		m.Description = p.Description.String
	}
	return m
}

func ticketModelToModel(t TicketModel) model.Ticket {
	m := model.Ticket{
		ID:         t.ID,
		ProjectID:  t.ProjectID,
		ReporterID: t.ReporterID,
		Title:      t.Title,
		Body:       t.Body,
		Status:     t.Status,
		Priority:   t.Priority,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
	if t.SprintID.Valid {
		m.SprintID = int(t.SprintID.Int64)
	}
	if t.AssigneeID.Valid {
		m.AssigneeID = int(t.AssigneeID.Int64)
	}
	return m
}

func ticketToTicketModel(t model.Ticket) TicketModel {
	return TicketModel{
		ID:         t.ID,
		ProjectID:  t.ProjectID,
		SprintID:   sql.NullInt64{Int64: int64(t.SprintID), Valid: t.SprintID != 0},
		ReporterID: t.ReporterID,
		AssigneeID: sql.NullInt64{Int64: int64(t.AssigneeID), Valid: t.AssigneeID != 0},
		Title:      t.Title,
		Body:       t.Body,
		Status:     t.Status,
		Priority:   t.Priority,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func attachmentModelToModel(a AttachmentModel) model.Attachment {
	return model.Attachment{
		ID:          a.ID,
		TicketID:    a.TicketID,
		UploaderID:  a.UploaderID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		StorageKey:  a.StorageKey,
		CreatedAt:   a.CreatedAt,
	}
}

// TicketLabelRow is a scan target for the ticket_labels join table.
type TicketLabelRow struct {
	TicketID int `bun:"ticket_id"`
	LabelID  int `bun:"label_id"`
}

// --- User helpers ---

// GetUserByUsernameBun retrieves a user by username. Returns (nil, nil) when
// no such user exists.
func GetUserByUsernameBun(bdb *bun.DB, username string) (*model.User, error) {
	ctx := context.Background()
	var um UserModel
	err := bdb.NewSelect().Model(&um).Where("username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := userModelToModel(um)
	return &m, nil
}

// GetUserByIDBun retrieves a user by its numeric ID.
func GetUserByIDBun(bdb *bun.DB, id int) (*model.User, error) {
	ctx := context.Background()
	var um UserModel
	err := bdb.NewSelect().Model(&um).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := userModelToModel(um)
	return &m, nil
}

// CreateUserBun inserts a new user and returns its ID.
func CreateUserBun(bdb *bun.DB, u *model.User) (int, error) {
	ctx := context.Background()
	um := userToUserModel(*u)
	um.ID = 0
	if um.CreatedAt.IsZero() {
		um.CreatedAt = time.Now().UTC()
	}
	if _, err := bdb.NewInsert().Model(&um).
		Column("username", "email", "display_name", "password_hash", "is_admin", "is_active", "totp_enabled", "totp_secret", "avatar_key", "created_at").
		Returning("id").Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return um.ID, nil
}

// GetAllUsersBun returns all users ordered by username.
func GetAllUsersBun(bdb *bun.DB) ([]model.User, error) {
	ctx := context.Background()
	var ums []UserModel
	if err := bdb.NewSelect().Model(&ums).OrderExpr("username").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(ums))
	for _, u := range ums {
		out = append(out, userModelToModel(u))
	}
	return out, nil
}

// CountAdminsBun returns the number of active administrator accounts.
func CountAdminsBun(bdb *bun.DB) (int, error) {
	ctx := context.Background()
	var count int
	if err := QueryRawInto(ctx, bdb, &count, "SELECT COUNT(id) FROM users WHERE is_admin = ? AND is_active = ?", true, true); err != nil {
		return 0, err
	}
	return count, nil
}

// --- Recovery code helpers ---

// ReplaceRecoveryCodesBun swaps a user's recovery codes for a new set within
// one transaction.
func ReplaceRecoveryCodesBun(bdb *bun.DB, userID int, hashes []string) error {
	ctx := context.Background()
	return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		if _, err := ExecRaw(ctx, tx, "DELETE FROM recovery_codes WHERE user_id = ?", userID); err != nil {
			return err
		}
		for _, h := range hashes {
			if _, err := ExecRaw(ctx, tx, "INSERT INTO recovery_codes (user_id, code_hash, used) VALUES (?, ?, ?)", userID, h, false); err != nil {
				return MapDBError(err)
			}
		}
		return nil
	})
}

// ConsumeRecoveryCodeBun marks an unused recovery code as used. It returns
// true only when a matching unused code existed; the update and the check
// are a single statement so a code can never be consumed twice.
func ConsumeRecoveryCodeBun(bdb *bun.DB, userID int, codeHash string) (bool, error) {
	ctx := context.Background()
	res, err := ExecRaw(ctx, bdb, "UPDATE recovery_codes SET used = ? WHERE user_id = ? AND code_hash = ? AND used = ?", true, userID, codeHash, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Dataset read helpers ---

// GetAllProjectsBun returns all projects ordered by key.
func GetAllProjectsBun(bdb *bun.DB) ([]model.Project, error) {
	ctx := context.Background()
	var pms []ProjectModel
	if err := bdb.NewSelect().Model(&pms).OrderExpr("slug").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(pms))
	for _, p := range pms {
		out = append(out, projectModelToModel(p))
	}
	return out, nil
}

// GetAllAttachmentsBun returns all attachment rows.
func GetAllAttachmentsBun(bdb *bun.DB) ([]model.Attachment, error) {
	ctx := context.Background()
	var ams []AttachmentModel
	if err := bdb.NewSelect().Model(&ams).OrderExpr("id").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Attachment, 0, len(ams))
	for _, a := range ams {
		out = append(out, attachmentModelToModel(a))
	}
	return out, nil
}

// CountEntitiesBun tallies the rows of every entity type.
func CountEntitiesBun(bdb *bun.DB) (model.EntityCounts, error) {
	ctx := context.Background()
	var counts model.EntityCounts
	tables := []struct {
		table string
		dest  *int
	}{
		{"users", &counts.Users},
		{"projects", &counts.Projects},
		{"memberships", &counts.Memberships},
		{"sprints", &counts.Sprints},
		{"labels", &counts.Labels},
		{"tickets", &counts.Tickets},
		{"ticket_labels", &counts.TicketLabels},
		{"comments", &counts.Comments},
		{"attachments", &counts.Attachments},
		{"settings", &counts.Settings},
	}
	for _, t := range tables {
		if err := QueryRawInto(ctx, bdb, t.dest, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.table)); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// --- Audit log helpers ---

// GetAllAuditLogEntriesBun retrieves audit log entries ordered by timestamp desc.
func GetAllAuditLogEntriesBun(bdb *bun.DB) ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var am []AuditLogModel
	if err := bdb.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(am))
	for _, a := range am {
		out = append(out, model.AuditLogEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details})
	}
	return out, nil
}

// LogActionBun inserts an audit log entry for the acting user.
func LogActionBun(bdb *bun.DB, username, action, details string) error {
	ctx := context.Background()
	if username == "" {
		username = "system"
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	_, err := ExecRaw(ctx, bdb, "INSERT INTO audit_log (timestamp, username, action, details) VALUES (?, ?, ?, ?)", ts, username, action, details)
	return MapDBError(err)
}

// --- Backup helpers ---

// ExportDataForBackupBun exports all tables' data into a model.BackupDocument
// using a single Bun transaction, so the export is a consistent snapshot.
func ExportDataForBackupBun(bdb *bun.DB) (*model.BackupDocument, error) {
	ctx := context.Background()
	var doc *model.BackupDocument
	err := WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		doc = &model.BackupDocument{SchemaVersion: model.BackupSchemaVersion, ExportedAt: time.Now().UTC()}

		var users []UserModel
		if err := tx.NewSelect().Model(&users).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, u := range users {
			doc.Users = append(doc.Users, userModelToModel(u))
		}

		var rcs []RecoveryCodeModel
		if err := tx.NewSelect().Model(&rcs).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, rc := range rcs {
			doc.RecoveryCodes = append(doc.RecoveryCodes, model.RecoveryCode{ID: rc.ID, UserID: rc.UserID, CodeHash: rc.CodeHash, Used: rc.Used})
		}

		var sets []SettingModel
		if err := tx.NewSelect().Model(&sets).OrderExpr("name").Scan(ctx); err != nil {
			return err
		}
		for _, s := range sets {
			doc.Settings = append(doc.Settings, model.Setting{Key: s.Key, Value: s.Value})
		}

		var projects []ProjectModel
		if err := tx.NewSelect().Model(&projects).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, p := range projects {
			doc.Projects = append(doc.Projects, projectModelToModel(p))
		}

		var mems []MembershipModel
		if err := tx.NewSelect().Model(&mems).Scan(ctx); err != nil {
			return err
		}
		for _, m := range mems {
			doc.Memberships = append(doc.Memberships, model.Membership{ProjectID: m.ProjectID, UserID: m.UserID, Role: m.Role})
		}

		var sprints []SprintModel
		if err := tx.NewSelect().Model(&sprints).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, s := range sprints {
			doc.Sprints = append(doc.Sprints, model.Sprint{ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, StartsAt: s.StartsAt, EndsAt: s.EndsAt, IsActive: s.IsActive})
		}

		var labels []LabelModel
		if err := tx.NewSelect().Model(&labels).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, l := range labels {
			doc.Labels = append(doc.Labels, model.Label{ID: l.ID, ProjectID: l.ProjectID, Name: l.Name, Color: l.Color})
		}

		var tickets []TicketModel
		if err := tx.NewSelect().Model(&tickets).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, t := range tickets {
			doc.Tickets = append(doc.Tickets, ticketModelToModel(t))
		}

		var tls []TicketLabelRow
		if err := QueryRawInto(ctx, tx, &tls, "SELECT ticket_id, label_id FROM ticket_labels"); err != nil {
			return err
		}
		for _, r := range tls {
			doc.TicketLabels = append(doc.TicketLabels, model.TicketLabel{TicketID: r.TicketID, LabelID: r.LabelID})
		}

		var comments []CommentModel
		if err := tx.NewSelect().Model(&comments).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, c := range comments {
			doc.Comments = append(doc.Comments, model.Comment{ID: c.ID, TicketID: c.TicketID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt})
		}

		var atts []AttachmentModel
		if err := tx.NewSelect().Model(&atts).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, a := range atts {
			doc.Attachments = append(doc.Attachments, attachmentModelToModel(a))
		}

		var als []AuditLogModel
		if err := tx.NewSelect().Model(&als).OrderExpr("id").Scan(ctx); err != nil {
			return err
		}
		for _, a := range als {
			doc.AuditLog = append(doc.AuditLog, model.AuditLogEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details})
		}

		doc.Counts = doc.CountOf()
		return nil
	})
	return doc, err
}

// wipeTables lists every domain table in reverse foreign-key order, so a
// straight DELETE pass never trips a constraint.
var wipeTables = []string{
	"audit_log",
	"attachments",
	"comments",
	"ticket_labels",
	"tickets",
	"labels",
	"sprints",
	"memberships",
	"projects",
	"settings",
	"recovery_codes",
	"users",
}

// projectWipeTables lists only project-owned tables, same ordering rule.
// Users, credentials, settings and the audit log survive a project wipe.
var projectWipeTables = []string{
	"attachments",
	"comments",
	"ticket_labels",
	"tickets",
	"labels",
	"sprints",
	"memberships",
	"projects",
}

func wipeAllTablesTx(ctx context.Context, tx bun.Tx) error {
	for _, t := range wipeTables {
		if _, err := ExecRaw(ctx, tx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return err
		}
	}
	return nil
}

func insertBackupDocumentTx(ctx context.Context, tx bun.Tx, doc *model.BackupDocument) error {
	// Users first: everything else points at them.
	for _, u := range doc.Users {
		um := userToUserModel(u)
		if _, err := ExecRaw(ctx, tx,
			"INSERT INTO users (id, username, email, display_name, password_hash, is_admin, is_active, totp_enabled, totp_secret, avatar_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			um.ID, um.Username, um.Email, um.DisplayName, um.PasswordHash, um.IsAdmin, um.IsActive, um.TOTPEnabled, um.TOTPSecret, um.AvatarKey, um.CreatedAt); err != nil {
			return MapDBError(err)
		}
	}
	for _, rc := range doc.RecoveryCodes {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO recovery_codes (id, user_id, code_hash, used) VALUES (?, ?, ?, ?)", rc.ID, rc.UserID, rc.CodeHash, rc.Used); err != nil {
			return MapDBError(err)
		}
	}
	for _, s := range doc.Settings {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO settings (name, value) VALUES (?, ?)", s.Key, s.Value); err != nil {
			return MapDBError(err)
		}
	}
	for _, p := range doc.Projects {
		desc := sql.NullString{String: p.Description, Valid: p.Description != ""}
		if _, err := ExecRaw(ctx, tx, "INSERT INTO projects (id, slug, name, description, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?)", p.ID, p.Key, p.Name, desc, p.OwnerID, p.CreatedAt); err != nil {
			return MapDBError(err)
		}
	}
	for _, m := range doc.Memberships {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO memberships (project_id, user_id, role) VALUES (?, ?, ?)", m.ProjectID, m.UserID, m.Role); err != nil {
			return MapDBError(err)
		}
	}
	for _, s := range doc.Sprints {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO sprints (id, project_id, name, starts_at, ends_at, is_active) VALUES (?, ?, ?, ?, ?, ?)", s.ID, s.ProjectID, s.Name, s.StartsAt, s.EndsAt, s.IsActive); err != nil {
			return MapDBError(err)
		}
	}
	for _, l := range doc.Labels {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO labels (id, project_id, name, color) VALUES (?, ?, ?, ?)", l.ID, l.ProjectID, l.Name, l.Color); err != nil {
			return MapDBError(err)
		}
	}
	for _, t := range doc.Tickets {
		tm := ticketToTicketModel(t)
		if _, err := ExecRaw(ctx, tx,
			"INSERT INTO tickets (id, project_id, sprint_id, reporter_id, assignee_id, title, body, status, priority, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			tm.ID, tm.ProjectID, tm.SprintID, tm.ReporterID, tm.AssigneeID, tm.Title, tm.Body, tm.Status, tm.Priority, tm.CreatedAt, tm.UpdatedAt); err != nil {
			return MapDBError(err)
		}
	}
	for _, tl := range doc.TicketLabels {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO ticket_labels (ticket_id, label_id) VALUES (?, ?)", tl.TicketID, tl.LabelID); err != nil {
			return MapDBError(err)
		}
	}
	for _, c := range doc.Comments {
		if _, err := ExecRaw(ctx, tx, "INSERT INTO comments (id, ticket_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)", c.ID, c.TicketID, c.AuthorID, c.Body, c.CreatedAt); err != nil {
			return MapDBError(err)
		}
	}
	for _, a := range doc.Attachments {
		if _, err := ExecRaw(ctx, tx,
			"INSERT INTO attachments (id, ticket_id, uploader_id, filename, content_type, size, storage_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			a.ID, a.TicketID, a.UploaderID, a.Filename, a.ContentType, a.Size, a.StorageKey, a.CreatedAt); err != nil {
			return MapDBError(err)
		}
	}
	// Audit log: convert RFC3339 timestamps to time.Time when possible so MySQL accepts them.
	for _, ale := range doc.AuditLog {
		var ts interface{} = ale.Timestamp
		if ale.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, ale.Timestamp); err == nil {
				ts = parsed
			} else {
				s := strings.Replace(ale.Timestamp, "T", " ", 1)
				ts = strings.TrimSuffix(s, "Z")
			}
		}
		if _, err := ExecRaw(ctx, tx, "INSERT INTO audit_log (id, timestamp, username, action, details) VALUES (?, ?, ?, ?, ?)", ale.ID, ts, ale.Username, ale.Action, ale.Details); err != nil {
			return MapDBError(err)
		}
	}
	return nil
}

// ImportDataFromBackupBun performs a full wipe-and-replace using a single Bun
// transaction. If any insert fails, the transaction rolls back and the
// pre-import dataset is untouched.
func ImportDataFromBackupBun(bdb *bun.DB, doc *model.BackupDocument) error {
	ctx := context.Background()
	return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		if err := wipeAllTablesTx(ctx, tx); err != nil {
			return err
		}
		return insertBackupDocumentTx(ctx, tx, doc)
	})
}

// IntegrateDataFromBackupBun performs a non-destructive restore: rows whose
// primary key already exists are left alone. Bun's Ignore() renders the
// dialect-appropriate INSERT OR IGNORE / ON CONFLICT DO NOTHING.
func IntegrateDataFromBackupBun(bdb *bun.DB, doc *model.BackupDocument) error {
	ctx := context.Background()
	return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		for _, u := range doc.Users {
			um := userToUserModel(u)
			if _, err := tx.NewInsert().Model(&um).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, s := range doc.Settings {
			sm := SettingModel{Key: s.Key, Value: s.Value}
			if _, err := tx.NewInsert().Model(&sm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, p := range doc.Projects {
			pm := ProjectModel{ID: p.ID, Key: p.Key, Name: p.Name, Description: sql.NullString{String: p.Description, Valid: p.Description != ""}, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt}
			if _, err := tx.NewInsert().Model(&pm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, m := range doc.Memberships {
			mm := MembershipModel{ProjectID: m.ProjectID, UserID: m.UserID, Role: m.Role}
			if _, err := tx.NewInsert().Model(&mm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, s := range doc.Sprints {
			sm := SprintModel{ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, StartsAt: s.StartsAt, EndsAt: s.EndsAt, IsActive: s.IsActive}
			if _, err := tx.NewInsert().Model(&sm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, l := range doc.Labels {
			lm := LabelModel{ID: l.ID, ProjectID: l.ProjectID, Name: l.Name, Color: l.Color}
			if _, err := tx.NewInsert().Model(&lm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, t := range doc.Tickets {
			tm := ticketToTicketModel(t)
			if _, err := tx.NewInsert().Model(&tm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, tl := range doc.TicketLabels {
			if _, err := ExecRaw(ctx, tx, "INSERT INTO ticket_labels (ticket_id, label_id) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM ticket_labels WHERE ticket_id = ? AND label_id = ?)", tl.TicketID, tl.LabelID, tl.TicketID, tl.LabelID); err != nil {
				return err
			}
		}
		for _, c := range doc.Comments {
			cm := CommentModel{ID: c.ID, TicketID: c.TicketID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt}
			if _, err := tx.NewInsert().Model(&cm).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		for _, a := range doc.Attachments {
			am := AttachmentModel{ID: a.ID, TicketID: a.TicketID, UploaderID: a.UploaderID, Filename: a.Filename, ContentType: a.ContentType, Size: a.Size, StorageKey: a.StorageKey, CreatedAt: a.CreatedAt}
			if _, err := tx.NewInsert().Model(&am).Ignore().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Wipe helpers ---

// WipeAllBun deletes every domain row and provisions the replacement admin
// account inside the same transaction. The commit therefore never produces a
// state with zero administrators.
func WipeAllBun(bdb *bun.DB, admin *model.User) error {
	ctx := context.Background()
	return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		if err := wipeAllTablesTx(ctx, tx); err != nil {
			return err
		}
		am := userToUserModel(*admin)
		am.ID = 0
		am.IsAdmin = true
		am.IsActive = true
		if am.CreatedAt.IsZero() {
			am.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NewInsert().Model(&am).
			Column("username", "email", "display_name", "password_hash", "is_admin", "is_active", "totp_enabled", "totp_secret", "avatar_key", "created_at").
			Returning("id").Exec(ctx); err != nil {
			return MapDBError(err)
		}
		admin.ID = am.ID
		admin.IsAdmin = true
		admin.IsActive = true
		return nil
	})
}

// WipeProjectsBun deletes only project-owned data in one transaction and
// returns the counts actually removed. Accounts, credentials, settings and
// the audit log are excluded from the delete set.
func WipeProjectsBun(bdb *bun.DB) (model.ProjectWipeCounts, error) {
	ctx := context.Background()
	var counts model.ProjectWipeCounts
	err := WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		dests := map[string]*int{
			"projects":    &counts.Projects,
			"sprints":     &counts.Sprints,
			"labels":      &counts.Labels,
			"tickets":     &counts.Tickets,
			"comments":    &counts.Comments,
			"attachments": &counts.Attachments,
			"memberships": &counts.Memberships,
		}
		for _, t := range projectWipeTables {
			res, err := ExecRaw(ctx, tx, fmt.Sprintf("DELETE FROM %s", t))
			if err != nil {
				return err
			}
			if dest, ok := dests[t]; ok {
				if n, err := res.RowsAffected(); err == nil {
					*dest = int(n)
				}
			}
		}
		return nil
	})
	return counts, err
}
