// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmynes/taskforge/internal/auth"
	"github.com/jmynes/taskforge/internal/backup"
	"github.com/jmynes/taskforge/internal/db"
	"github.com/jmynes/taskforge/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	store, err := db.NewStoreFromDSN("sqlite", "file:test_api_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	doc := testutil.SampleDocument()
	doc.Counts = doc.CountOf()
	if err := store.ImportDataFromBackup(doc); err != nil {
		t.Fatalf("seeding dataset failed: %v", err)
	}

	files := testutil.NewMemFileStore()
	gate := auth.NewGate(store)
	server := NewServer(
		store,
		backup.NewExporter(store, files, gate),
		backup.NewCoordinator(store, files, gate),
		backup.NewWiper(store, gate),
	)
	return server, server.Router()
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string `json:"status"`
		State  string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "idle", body.State)
}

func TestExportEndpoint(t *testing.T) {
	_, router := newTestServer(t)

	w := postJSON(t, router, "/api/backup/export", map[string]any{
		"username": "alice",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "taskforge-backup.json")

	// Password-less exports are the bare document.
	assert.False(t, backup.LooksLikeEnvelope(w.Body.Bytes()))
	doc, err := backup.ParseDocument(w.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, doc.Users, 2)
}

func TestExportEndpointBadCredentials(t *testing.T) {
	_, router := newTestServer(t)

	w := postJSON(t, router, "/api/backup/export", map[string]any{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestImportEndpointRoundTrip(t *testing.T) {
	_, router := newTestServer(t)

	// First export a plain artifact.
	w := postJSON(t, router, "/api/backup/export", map[string]any{
		"username": "alice",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, w.Code)
	artifact := w.Body.Bytes()

	// Then import it back through the multipart endpoint.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice"))
	require.NoError(t, mw.WriteField("password", "correct horse"))
	require.NoError(t, mw.WriteField("confirm_text", auth.PhraseImportAll))
	fw, err := mw.CreateFormFile("file", "backup.json")
	require.NoError(t, err)
	_, err = fw.Write(artifact)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/backup/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Counts struct {
			Users   int `json:"users"`
			Tickets int `json:"tickets"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Counts.Users)
	assert.Equal(t, 2, result.Counts.Tickets)
}

func TestImportEndpointWrongPhrase(t *testing.T) {
	_, router := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice"))
	require.NoError(t, mw.WriteField("password", "correct horse"))
	require.NoError(t, mw.WriteField("confirm_text", "yes please"))
	fw, err := mw.CreateFormFile("file", "backup.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/backup/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "confirmation_mismatch")
}

func TestImportEndpointMissingFile(t *testing.T) {
	_, router := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice"))
	require.NoError(t, mw.WriteField("password", "correct horse"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/backup/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWipeEndpoint(t *testing.T) {
	server, router := newTestServer(t)

	w := postJSON(t, router, "/api/system/wipe", map[string]any{
		"username":           "alice",
		"password":           "correct horse",
		"confirm_text":       auth.PhraseWipeAll,
		"new_admin_username": "rescue",
		"new_admin_password": "rescue-pw",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	counts, err := server.store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Users)
	assert.Equal(t, 0, counts.Projects)
}

func TestWipeEndpointWrongPhrase(t *testing.T) {
	server, router := newTestServer(t)

	w := postJSON(t, router, "/api/system/wipe", map[string]any{
		"username":           "alice",
		"password":           "correct horse",
		"confirm_text":       "WIPE EVERYTHING",
		"new_admin_username": "rescue",
		"new_admin_password": "rescue-pw",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	counts, err := server.store.CountEntities()
	require.NoError(t, err)
	assert.NotZero(t, counts.Projects, "a rejected wipe must not touch the dataset")
}

func TestWipeProjectsEndpoint(t *testing.T) {
	server, router := newTestServer(t)

	w := postJSON(t, router, "/api/system/wipe-projects", map[string]any{
		"username":     "alice",
		"password":     "correct horse",
		"confirm_text": auth.PhraseWipeProjects,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	counts, err := server.store.CountEntities()
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Projects)
	assert.Equal(t, 2, counts.Users)
}
