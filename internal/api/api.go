// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package api exposes the backup, import and wipe operations over HTTP.
// Every destructive endpoint takes credentials in the request body and is
// re-authorized per call; there is no session.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/backup"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/logging"
	"github.com/jmynes/taskforge/internal/model"
)

// Server bundles the engine components behind the HTTP handlers.
type Server struct {
	store       db.Store
	exporter    *backup.Exporter
	coordinator *backup.Coordinator
	wiper       *backup.Wiper
}

// NewServer wires the handlers to the engine.
func NewServer(store db.Store, exporter *backup.Exporter, coordinator *backup.Coordinator, wiper *backup.Wiper) *Server {
	return &Server{store: store, exporter: exporter, coordinator: coordinator, wiper: wiper}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/backup/export", s.handleExport)
		api.POST("/backup/import", s.handleImport)
		api.POST("/system/wipe", s.handleWipeAll)
		api.POST("/system/wipe-projects", s.handleWipeProjects)
		api.GET("/system/health", s.handleHealth)
	}
	return r
}

type credentialBody struct {
	Username       string `json:"username" form:"username"`
	Password       string `json:"password" form:"password"`
	TOTPCode       string `json:"totp_code" form:"totp_code"`
	IsRecoveryCode bool   `json:"is_recovery_code" form:"is_recovery_code"`
}

func (c credentialBody) toCredential() auth.Credential {
	return auth.Credential{
		Username:       c.Username,
		Password:       c.Password,
		TOTPCode:       c.TOTPCode,
		IsRecoveryCode: c.IsRecoveryCode,
	}
}

// writeError maps engine errors onto HTTP statuses. The second-factor case
// gets its own error code so clients can prompt for a TOTP code and retry.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrSecondFactorRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "second_factor_required"})
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidSecondFactor),
		errors.Is(err, auth.ErrNotAdmin):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrConfirmationMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "confirmation_mismatch"})
	case errors.Is(err, backup.ErrOperationInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case backup.IsValidationError(err), backup.IsDecryptionError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logging.Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type exportRequest struct {
	credentialBody
	EncryptionPassword string `json:"encryption_password"`
	IncludeAttachments bool   `json:"include_attachments"`
	IncludeAvatars     bool   `json:"include_avatars"`
	Compress           bool   `json:"compress"`
}

func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	opts := model.ExportOptions{
		Password:           req.EncryptionPassword,
		IncludeAttachments: req.IncludeAttachments,
		IncludeAvatars:     req.IncludeAvatars,
		Compress:           req.Compress,
	}
	artifact, err := s.exporter.Export(c.Request.Context(), opts, req.toCredential())
	if err != nil {
		writeError(c, err)
		return
	}

	filename := "taskforge-backup.json"
	contentType := "application/json"
	switch {
	case opts.WillBeArchive():
		filename = "taskforge-backup.zip"
		contentType = "application/zip"
	case opts.Compress:
		filename = "taskforge-backup.json.zst"
		contentType = "application/zstd"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, artifact)
}

// handleImport takes a multipart form: the artifact under "file", the
// credentials and confirmation phrase as plain fields.
func (s *Server) handleImport(c *gin.Context) {
	var cred credentialBody
	if err := c.ShouldBind(&cred); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backup file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable backup file"})
		return
	}
	defer f.Close()
	artifact, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable backup file"})
		return
	}

	req := backup.RestoreRequest{
		Artifact:    artifact,
		Password:    c.PostForm("decryption_password"),
		Credential:  cred.toCredential(),
		ConfirmText: c.PostForm("confirm_text"),
		Merge:       c.PostForm("merge") == "true",
	}
	result, err := s.coordinator.Restore(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type wipeAllRequest struct {
	credentialBody
	ConfirmText      string `json:"confirm_text"`
	NewAdminUsername string `json:"new_admin_username"`
	NewAdminPassword string `json:"new_admin_password"`
}

func (s *Server) handleWipeAll(c *gin.Context) {
	var req wipeAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	admin, err := s.wiper.WipeAll(req.toCredential(), req.ConfirmText, req.NewAdminUsername, req.NewAdminPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "wiped", "admin_username": admin.Username})
}

type wipeProjectsRequest struct {
	credentialBody
	ConfirmText string `json:"confirm_text"`
}

func (s *Server) handleWipeProjects(c *gin.Context) {
	var req wipeProjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	counts, err := s.wiper.WipeProjects(req.toCredential(), req.ConfirmText)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "wiped", "deleted": counts})
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.CountEntities()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  s.coordinator.CurrentState().String(),
		"counts": counts,
	})
}
