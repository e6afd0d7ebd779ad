package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	"github.com/luissimon96/migration-validation-voe/internal/http/response"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/ctxutil"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
	"github.com/luissimon96/migration-validation-voe/internal/scheduler"
	"github.com/luissimon96/migration-validation-voe/internal/services"
)

// ValidateHandler is C10's entry point into the Scheduler: it parses a
// submission, assembles an InputBundle per side, and admits a
// voe.ValidationSession. It holds no business logic of its own beyond
// request shaping — everything past admission belongs to the pipeline.
type ValidateHandler struct {
	log *logger.Logger

	sessions repos.SessionRepo
	results  repos.ResultRepo

	admission  *scheduler.Admission
	pool       *scheduler.Pool
	sessionSvc *services.SessionService
	audit      repos.AuditLogRepo

	uploadDir string
}

func NewValidateHandler(
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	results repos.ResultRepo,
	admission *scheduler.Admission,
	pool *scheduler.Pool,
	sessionSvc *services.SessionService,
	audit repos.AuditLogRepo,
	uploadDir string,
) *ValidateHandler {
	return &ValidateHandler{
		log:        baseLog.With("handler", "ValidateHandler"),
		sessions:   sessions,
		results:    results,
		admission:  admission,
		pool:       pool,
		sessionSvc: sessionSvc,
		audit:      audit,
		uploadDir:  uploadDir,
	}
}

type submitConfig struct {
	SourceTech  voe.TechnologyContext      `json:"source_tech"`
	TargetTech  voe.TechnologyContext      `json:"target_tech"`
	Scope       string                     `json:"scope"`
	Priority    string                     `json:"priority,omitempty"`
	SourceURL   string                     `json:"source_url,omitempty"`
	TargetURL   string                     `json:"target_url,omitempty"`
	Scenarios   []voe.BehavioralScenario   `json:"scenarios,omitempty"`
	Credentials *voe.BehavioralCredentials `json:"credentials,omitempty"`
	Timeout     int                        `json:"timeout,omitempty"`
}

// Submit implements `POST /api/validate`: a multipart request carrying a
// JSON `config` field plus source/target files and optional screenshots.
func (h *ValidateHandler) Submit(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(voe.DefaultMaxBundleBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart", err)
		return
	}

	var cfg submitConfig
	if err := json.Unmarshal([]byte(c.Request.FormValue("config")), &cfg); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_config", fmt.Errorf("decode config field: %w", err))
		return
	}
	if !voe.IsSupportedTechnology(cfg.SourceTech.Name) || !voe.IsSupportedTechnology(cfg.TargetTech.Name) {
		response.RespondError(c, http.StatusBadRequest, "unsupported_technology", voe.ErrInvalidTechnology)
		return
	}
	scope := voe.ValidationScope(cfg.Scope)
	if scope == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_scope", errors.New("scope is required"))
		return
	}

	requestID := uuid.New().String()
	sourceBundle, err := h.buildBundle(c.Request.MultipartForm, requestID, "source", "source_files", "source_screenshots")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_source_bundle", err)
		return
	}
	sourceBundle.URL = cfg.SourceURL
	targetBundle, err := h.buildBundle(c.Request.MultipartForm, requestID, "target", "target_files", "target_screenshots")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_target_bundle", err)
		return
	}
	targetBundle.URL = cfg.TargetURL

	var behavioralCfg []byte
	if scope.RequiresBehavioral() {
		if sourceBundle.URL == "" || targetBundle.URL == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_urls", voe.ErrMissingURLs)
			return
		}
		if len(cfg.Scenarios) == 0 {
			response.RespondError(c, http.StatusBadRequest, "missing_scenarios", voe.ErrMissingScenarios)
			return
		}
		behavioralCfg, err = json.Marshal(voe.BehavioralConfig{
			Scenarios:      cfg.Scenarios,
			Credentials:    cfg.Credentials,
			SourceURL:      sourceBundle.URL,
			TargetURL:      targetBundle.URL,
			TimeoutSeconds: cfg.Timeout,
		})
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "session_build_failed", err)
			return
		}
	}

	session, err := h.newSession(c, requestID, cfg, scope, sourceBundle, targetBundle, behavioralCfg)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "session_build_failed", err)
		return
	}
	h.admit(c, session)
}

// BehavioralValidate implements `POST /api/behavioral/validate`: a JSON
// body naming both URLs and the scenarios to reproduce against each, with
// no static artifacts at all.
func (h *ValidateHandler) BehavioralValidate(c *gin.Context) {
	var body struct {
		SourceURL      string                      `json:"source_url"`
		TargetURL      string                      `json:"target_url"`
		Scenarios      []voe.BehavioralScenario    `json:"scenarios"`
		Credentials    *voe.BehavioralCredentials  `json:"credentials,omitempty"`
		TimeoutSeconds int                         `json:"timeout,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if body.SourceURL == "" || body.TargetURL == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_urls", voe.ErrMissingURLs)
		return
	}
	if len(body.Scenarios) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_scenarios", voe.ErrMissingScenarios)
		return
	}

	requestID := uuid.New().String()
	behavioralCfg, _ := json.Marshal(voe.BehavioralConfig{
		Scenarios:      body.Scenarios,
		Credentials:    body.Credentials,
		SourceURL:      body.SourceURL,
		TargetURL:      body.TargetURL,
		TimeoutSeconds: body.TimeoutSeconds,
	})

	session, err := h.newSession(c, requestID, submitConfig{Scope: string(voe.ScopeBehavioral)}, voe.ScopeBehavioral,
		voe.InputBundle{URL: body.SourceURL}, voe.InputBundle{URL: body.TargetURL}, behavioralCfg)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "session_build_failed", err)
		return
	}
	h.admit(c, session)
}

// Hybrid implements `POST /api/validate/hybrid`: the same multipart shape
// as Submit plus a behavioral config blended in, forcing scope to `full`
// so both stage runners engage.
func (h *ValidateHandler) Hybrid(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(voe.DefaultMaxBundleBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart", err)
		return
	}

	var cfg submitConfig
	if err := json.Unmarshal([]byte(c.Request.FormValue("config")), &cfg); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_config", fmt.Errorf("decode config field: %w", err))
		return
	}
	var behavioral voe.BehavioralConfig
	if raw := c.Request.FormValue("behavioral_config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &behavioral); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_behavioral_config", err)
			return
		}
	}
	if !voe.IsSupportedTechnology(cfg.SourceTech.Name) || !voe.IsSupportedTechnology(cfg.TargetTech.Name) {
		response.RespondError(c, http.StatusBadRequest, "unsupported_technology", voe.ErrInvalidTechnology)
		return
	}
	if len(behavioral.Scenarios) == 0 || behavioral.SourceURL == "" || behavioral.TargetURL == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_behavioral_config", voe.ErrMissingScenarios)
		return
	}

	requestID := uuid.New().String()
	sourceBundle, err := h.buildBundle(c.Request.MultipartForm, requestID, "source", "source_files", "source_screenshots")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_source_bundle", err)
		return
	}
	sourceBundle.URL = behavioral.SourceURL
	targetBundle, err := h.buildBundle(c.Request.MultipartForm, requestID, "target", "target_files", "target_screenshots")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_target_bundle", err)
		return
	}
	targetBundle.URL = behavioral.TargetURL

	behavioralJSON, _ := json.Marshal(behavioral)
	session, err := h.newSession(c, requestID, cfg, voe.ScopeFull, sourceBundle, targetBundle, behavioralJSON)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "session_build_failed", err)
		return
	}
	h.admit(c, session)
}

func (h *ValidateHandler) newSession(c *gin.Context, requestID string, cfg submitConfig, scope voe.ValidationScope, sourceBundle, targetBundle voe.InputBundle, behavioralCfg []byte) (*voe.ValidationSession, error) {
	sourceTechJSON, err := json.Marshal(cfg.SourceTech)
	if err != nil {
		return nil, err
	}
	targetTechJSON, err := json.Marshal(cfg.TargetTech)
	if err != nil {
		return nil, err
	}
	sourceBundleJSON, err := json.Marshal(sourceBundle)
	if err != nil {
		return nil, err
	}
	targetBundleJSON, err := json.Marshal(targetBundle)
	if err != nil {
		return nil, err
	}

	priority := cfg.Priority
	if priority == "" {
		priority = string(voe.PriorityInteractive)
	}

	tenantID := ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		tenantID = rd.TenantID
	}

	return &voe.ValidationSession{
		RequestID:        requestID,
		TenantID:         tenantID,
		SourceTech:       sourceTechJSON,
		TargetTech:       targetTechJSON,
		Scope:            string(scope),
		Priority:         priority,
		SourceBundle:     sourceBundleJSON,
		TargetBundle:     targetBundleJSON,
		BehavioralConfig: behavioralCfg,
	}, nil
}

func (h *ValidateHandler) admit(c *gin.Context, session *voe.ValidationSession) {
	if err := h.admission.Admit(c.Request.Context(), session); err != nil {
		if errors.Is(err, voe.ErrOverloaded) {
			response.RespondError(c, http.StatusServiceUnavailable, "overloaded", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "admission_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"request_id": session.RequestID, "status": "accepted"})
}

// Status implements `GET /api/validate/{request_id}/status`.
func (h *ValidateHandler) Status(c *gin.Context) {
	session, err := h.lookup(c)
	if err != nil {
		return
	}
	status := voe.SessionStatus(session.Status)
	response.RespondOK(c, gin.H{
		"request_id":        session.RequestID,
		"status":             status,
		"progress":           progressFor(status),
		"result_available":   status == voe.SessionStatusCompleted,
	})
}

func progressFor(status voe.SessionStatus) int {
	switch status {
	case voe.SessionStatusPending:
		return 0
	case voe.SessionStatusQueued:
		return 10
	case voe.SessionStatusProcessing:
		return 50
	case voe.SessionStatusCompleted, voe.SessionStatusFailed, voe.SessionStatusCancelled, voe.SessionStatusTimedOut:
		return 100
	default:
		return 0
	}
}

// Result implements `GET /api/validate/{request_id}/result`.
func (h *ValidateHandler) Result(c *gin.Context) {
	session, err := h.lookup(c)
	if err != nil {
		return
	}
	status := voe.SessionStatus(session.Status)
	if status != voe.SessionStatusCompleted && !status.Terminal() {
		c.JSON(http.StatusAccepted, gin.H{"request_id": session.RequestID, "status": status})
		return
	}

	unified, discrepancies, err := h.loadUnified(c, session.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "result_load_failed", err)
		return
	}
	if unified == nil {
		response.RespondError(c, http.StatusNotFound, "result_not_found", voe.ErrResultNotFound)
		return
	}
	response.RespondOK(c, gin.H{
		"request_id":      session.RequestID,
		"status":          status,
		"overall_status":  unified.OverallStatus,
		"fidelity_score":  unified.FidelityScore,
		"summary":         unified.Summary,
		"execution_time":  unified.ExecutionTime,
		"discrepancies":   discrepancies,
	})
}

// Report implements `GET /api/validate/{request_id}/report?format=json|html|md`.
func (h *ValidateHandler) Report(c *gin.Context) {
	session, err := h.lookup(c)
	if err != nil {
		return
	}
	if !voe.SessionStatus(session.Status).Terminal() {
		response.RespondError(c, http.StatusAccepted, "not_ready", errors.New("session has not reached a terminal status"))
		return
	}

	unified, discrepancies, err := h.loadUnified(c, session.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "result_load_failed", err)
		return
	}
	if unified == nil {
		response.RespondError(c, http.StatusNotFound, "result_not_found", voe.ErrResultNotFound)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	switch format {
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", renderReportHTML(session, unified, discrepancies))
	case "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", renderReportMarkdown(session, unified, discrepancies))
	case "json", "":
		response.RespondOK(c, gin.H{
			"request_id":     session.RequestID,
			"overall_status": unified.OverallStatus,
			"fidelity_score": unified.FidelityScore,
			"summary":        unified.Summary,
			"discrepancies":  discrepancies,
		})
	default:
		response.RespondError(c, http.StatusBadRequest, "unsupported_format", fmt.Errorf("unsupported report format %q", format))
	}
}

// Cancel implements `DELETE /api/validate/{request_id}`: queued sessions
// are cancelled directly through the Session State Machine; processing
// sessions are signalled through the Scheduler pool's cooperative cancel,
// which the worker observes via its own context.
func (h *ValidateHandler) Cancel(c *gin.Context) {
	session, err := h.lookup(c)
	if err != nil {
		return
	}
	actorID := actorIDFrom(c)

	status := voe.SessionStatus(session.Status)
	if status.Terminal() {
		if err := h.sessions.SoftDelete(c.Request.Context(), nil, session.ID, actorID); err != nil {
			h.recordAudit(c, "session_cancel", "rejected", actorID, session.ID)
			response.RespondError(c, http.StatusInternalServerError, "soft_delete_failed", err)
			return
		}
		h.recordAudit(c, "session_cancel", "accepted", actorID, session.ID)
		response.RespondOK(c, gin.H{"request_id": session.RequestID, "status": status, "deleted": true})
		return
	}
	if status == voe.SessionStatusProcessing {
		if !h.pool.Cancel(session.ID) {
			h.recordAudit(c, "session_cancel", "rejected", actorID, session.ID)
			response.RespondError(c, http.StatusConflict, "cancel_failed", errors.New("session is not currently owned by any worker"))
			return
		}
		h.recordAudit(c, "session_cancel", "accepted", actorID, session.ID)
		response.RespondOK(c, gin.H{"request_id": session.RequestID, "status": "cancelling"})
		return
	}
	if err := h.sessionSvc.Cancel(c.Request.Context(), session.ID, actorID); err != nil {
		h.recordAudit(c, "session_cancel", "rejected", actorID, session.ID)
		response.RespondError(c, http.StatusConflict, "cancel_failed", err)
		return
	}
	h.recordAudit(c, "session_cancel", "accepted", actorID, session.ID)
	response.RespondOK(c, gin.H{"request_id": session.RequestID, "status": voe.SessionStatusCancelled})
}

func actorIDFrom(c *gin.Context) string {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		return ""
	}
	if rd.UserID != uuid.Nil {
		return rd.UserID.String()
	}
	return rd.APIKeyID
}

// recordAudit appends one §2.3 audit entry. Best-effort: a logging failure
// never blocks the cancel response the caller is waiting on.
func (h *ValidateHandler) recordAudit(c *gin.Context, action, outcome, actorID string, sessionID uuid.UUID) {
	if h.audit == nil {
		return
	}
	tenantID := ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		tenantID = rd.TenantID
	}
	entry := &voe.AuditLog{
		TenantID:  tenantID,
		ActorID:   actorID,
		Action:    action,
		Outcome:   outcome,
		SessionID: &sessionID,
	}
	if err := h.audit.Append(c.Request.Context(), nil, entry); err != nil {
		h.log.Warn("failed to append audit log", "error", err)
	}
}

func (h *ValidateHandler) lookup(c *gin.Context) (*voe.ValidationSession, error) {
	requestID := c.Param("request_id")
	session, err := h.sessions.GetByRequestID(c.Request.Context(), nil, requestID)
	if err != nil {
		if errors.Is(err, voe.ErrSessionNotFound) {
			response.RespondError(c, http.StatusNotFound, "session_not_found", err)
			return nil, err
		}
		response.RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return nil, err
	}
	return session, nil
}

func (h *ValidateHandler) loadUnified(c *gin.Context, sessionID uuid.UUID) (*voe.ValidationResult, []voe.ValidationDiscrepancy, error) {
	results, err := h.results.ListResults(c.Request.Context(), nil, sessionID)
	if err != nil {
		return nil, nil, err
	}
	var unified *voe.ValidationResult
	for i := range results {
		if results[i].Kind == "unified" {
			unified = &results[i]
			break
		}
	}
	if unified == nil {
		return nil, nil, nil
	}
	discrepancies, err := h.results.ListDiscrepancies(c.Request.Context(), nil, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return unified, discrepancies, nil
}

// buildBundle saves every uploaded file under h.uploadDir/requestID/side/
// and records it as an InputFile, content-addressed via the C1 fingerprint
// hash so the Analysis Stage Runner and cache share the same identity for
// a file regardless of upload path.
func (h *ValidateHandler) buildBundle(form *multipart.Form, requestID, side, fileField, screenshotField string) (voe.InputBundle, error) {
	var bundle voe.InputBundle
	if form == nil {
		return bundle, nil
	}

	files := form.File[fileField]
	screenshots := form.File[screenshotField]
	if len(files)+len(screenshots) > voe.DefaultMaxBundleEntries {
		return bundle, voe.ErrTooManyEntries
	}

	var total int64
	for _, fh := range files {
		inputFile, err := h.saveUpload(requestID, side, "files", fh)
		if err != nil {
			return bundle, err
		}
		total += inputFile.SizeBytes
		bundle.Files = append(bundle.Files, inputFile)
	}
	for _, fh := range screenshots {
		inputFile, err := h.saveUpload(requestID, side, "screenshots", fh)
		if err != nil {
			return bundle, err
		}
		total += inputFile.SizeBytes
		bundle.Screenshots = append(bundle.Screenshots, inputFile)
	}
	if total > voe.DefaultMaxBundleBytes {
		return bundle, voe.ErrBundleTooLarge
	}
	return bundle, nil
}

func (h *ValidateHandler) saveUpload(requestID, side, kind string, fh *multipart.FileHeader) (voe.InputFile, error) {
	if fh.Size > voe.DefaultMaxFileBytes {
		return voe.InputFile{}, voe.ErrFileTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return voe.InputFile{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, voe.DefaultMaxFileBytes+1))
	if err != nil {
		return voe.InputFile{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if int64(len(content)) > voe.DefaultMaxFileBytes {
		return voe.InputFile{}, voe.ErrFileTooLarge
	}

	relPath := filepath.Join(requestID, side, kind, filepath.Base(fh.Filename))
	absPath := filepath.Join(h.uploadDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return voe.InputFile{}, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return voe.InputFile{}, fmt.Errorf("write upload %s: %w", fh.Filename, err)
	}

	language := languageFromExt(fh.Filename)
	var hash string
	if kind == "screenshots" {
		hash = fingerprint.Image(relPath, string(content))
	} else {
		hash = fingerprint.File(relPath, language, string(content))
	}

	return voe.InputFile{
		Path:        fh.Filename,
		ContentRef:  relPath,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
		Language:    language,
	}, nil
}

func languageFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".py":
		return "python"
	case ".java":
		return "java"
	case ".cs":
		return "csharp"
	case ".php":
		return "php"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".go":
		return "go"
	default:
		return ""
	}
}

