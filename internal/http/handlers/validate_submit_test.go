package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
	"github.com/luissimon96/migration-validation-voe/internal/scheduler"
	"github.com/luissimon96/migration-validation-voe/internal/services"
)

func submitTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&voe.ValidationSession{}, &voe.SessionLog{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func newSubmitTestHandler(t *testing.T) *ValidateHandler {
	t.Helper()
	log := handlerTestLogger(t)
	db := submitTestDB(t)
	sessions := repos.NewSessionRepo(db, log)
	admission := scheduler.NewAdmission(db, log, sessions, nil, 32, 8, 4)
	sessionSvc := services.NewSessionService(nil, log, sessions, fakeHandlerResultRepo{}, nil, nil, nil, &noopEmitter{})
	return NewValidateHandler(log, sessions, fakeHandlerResultRepo{}, admission, nil, sessionSvc, &fakeAuditLogRepo{}, t.TempDir())
}

func newMultipartSubmitRequest(t *testing.T, cfg map[string]any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := w.WriteField("config", string(raw)); err != nil {
		t.Fatalf("write config field: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/validate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSubmitRejectsFullScopeWithNoScenarios(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newSubmitTestHandler(t)

	r := gin.New()
	r.POST("/api/validate", h.Submit)

	req := newMultipartSubmitRequest(t, map[string]any{
		"source_tech": map[string]any{"name": "javascript-react"},
		"target_tech": map[string]any{"name": "python-django"},
		"scope":       "full",
		"source_url":  "https://source.example.com",
		"target_url":  "https://target.example.com",
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "missing_scenarios" {
		t.Fatalf("expected missing_scenarios error, got %+v", body)
	}
}

func TestSubmitAcceptsFullScopeWithAtLeastOneScenario(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newSubmitTestHandler(t)

	r := gin.New()
	r.POST("/api/validate", h.Submit)

	req := newMultipartSubmitRequest(t, map[string]any{
		"source_tech": map[string]any{"name": "javascript-react"},
		"target_tech": map[string]any{"name": "python-django"},
		"scope":       "full",
		"source_url":  "https://source.example.com",
		"target_url":  "https://target.example.com",
		"scenarios": []map[string]any{
			{"name": "login", "steps": []string{"open /login"}},
		},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	requestID, _ := body["request_id"].(string)
	if requestID == "" {
		t.Fatalf("expected a request_id in the response, got %+v", body)
	}

	session, err := h.sessions.GetByRequestID(context.Background(), nil, requestID)
	if err != nil {
		t.Fatalf("GetByRequestID: %v", err)
	}
	if session.Status != string(voe.SessionStatusQueued) {
		t.Fatalf("expected the admitted session to be queued, got %s", session.Status)
	}
	if len(session.BehavioralConfig) == 0 {
		t.Fatalf("expected a behavioral config to be persisted for a full-scope session")
	}
}
