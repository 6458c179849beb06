package http

import (
	"errors"
	"net/http"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/interface/http/handlers"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Report Card Hub API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"students": "/api/v1/students",
			"report":   "/api/v1/students/{id}/report",
			"analysis": "/api/v1/students/{id}/analysis",
			"chat":     "/api/v1/students/{id}/chat",
			"voice":    "/api/v1/students/{id}/voice",
		},
	})
}

// handleHealth handles the health check endpoint. Degraded optional
// backends still answer 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"healthy": true,
			"ready":   true,
			"uptime":  s.Uptime().String(),
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents handles GET /api/v1/students?section=A&q=ram
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		writeNotConfigured(w, "Student list")
		return
	}

	q := query.ListStudentsQuery{
		Section: r.URL.Query().Get("section"),
		Search:  r.URL.Query().Get("q"),
		Limit:   getQueryParamInt(r, "limit", 100),
		Offset:  getQueryParamInt(r, "offset", 0),
	}
	res, err := s.deps.ListStudents.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	_ = q.Validate()
	meta := &ResponseMeta{
		TotalCount: res.Total,
		Limit:      q.Limit,
		Offset:     q.Offset,
		HasMore:    q.Offset+len(res.Students) < res.Total,
	}
	writeJSONWithMeta(w, r, http.StatusOK, res, meta)
}

// handleFirstInSection handles GET /api/v1/sections/{section}/first
func (s *Server) handleFirstInSection(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudent == nil {
		writeNotConfigured(w, "Student")
		return
	}
	st, err := s.deps.GetStudent.FirstInSection(r.Context(), r.PathValue("section"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetStudent handles GET /api/v1/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudent == nil {
		writeNotConfigured(w, "Student")
		return
	}
	st, err := s.deps.GetStudent.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetReportCard handles GET /api/v1/students/{id}/report
func (s *Server) handleGetReportCard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetReportCard == nil {
		writeNotConfigured(w, "Report card")
		return
	}
	card, err := s.deps.GetReportCard.Handle(r.Context(), query.GetReportCardQuery{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAnalyze handles POST /api/v1/students/{id}/analysis. Provider
// failures still answer 200 with "fallback": true.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.AnalyzeStudent == nil {
		writeNotConfigured(w, "Analysis")
		return
	}
	res, err := s.deps.AnalyzeStudent.Handle(r.Context(), command.AnalyzeStudentCommand{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAnalysisHistory handles GET /api/v1/students/{id}/analysis/history
func (s *Server) handleAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAnalysisHistory == nil {
		writeNotConfigured(w, "Analysis history")
		return
	}
	recs, err := s.deps.GetAnalysisHistory.Handle(r.Context(), query.GetAnalysisHistoryQuery{
		StudentID: r.PathValue("id"),
		Limit:     getQueryParamInt(r, "limit", 10),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, recs, &ResponseMeta{TotalCount: len(recs)})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// ChatRequest is the body of POST /api/v1/students/{id}/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	Message   string `json:"message" validate:"notblank,max=2000"`
}

// handleQuickQuestions handles GET /api/v1/chat/questions
func (s *Server) handleQuickQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": chat.QuickQuestions})
}

// handleChat handles POST /api/v1/students/{id}/chat. Errors found before
// the stream starts are plain JSON; after that the stream carries:
//
//	event: session  {"session_id": "...", "greeting": "..."}
//	event: chunk    {"text": "..."}
//	event: error    {"message": "..."}
//	event: done     {"session_id": "...", "message": {...}, "failed": false}
//
// When the model fails mid-stream the chunks already sent stay a message of
// their own; the apology arrives as an error event before done.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.SendChatMessage == nil {
		writeNotConfigured(w, "Chat")
		return
	}

	var req ChatRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd := command.SendChatMessageCommand{
		StudentID: r.PathValue("id"),
		SessionID: req.SessionID,
		Message:   req.Message,
	}
	st, sess, err := s.deps.SendChatMessage.Prepare(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := handlers.NewSSEWriter(w)
	if err != nil {
		s.logger.Error("chat stream unavailable", logger.Err(err))
		return
	}

	hello := map[string]string{"session_id": sess.ID}
	if req.SessionID == "" && len(sess.Messages) > 0 {
		hello["greeting"] = sess.Messages[0].Text
	}
	if err := sse.Event("session", hello); err != nil {
		return
	}

	reply, err := s.deps.SendChatMessage.Send(r.Context(), st, sess.ID, req.Message, func(chunk string) error {
		return sse.Event("chunk", map[string]string{"text": chunk})
	})
	if err != nil {
		_ = sse.Event("error", map[string]string{"message": publicMessage(err)})
		return
	}
	if reply.Failed {
		if err := sse.Event("error", map[string]string{"message": reply.Message.Text}); err != nil {
			return
		}
	}
	_ = sse.Event("done", reply)
}

// handleChatHistory handles GET /api/v1/students/{id}/chat/{session}
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetChatHistory == nil {
		writeNotConfigured(w, "Chat history")
		return
	}
	res, err := s.deps.GetChatHistory.Handle(r.Context(), query.GetChatHistoryQuery{
		StudentID: r.PathValue("id"),
		SessionID: r.PathValue("session"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEndChat handles DELETE /api/v1/students/{id}/chat/{session}
func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.EndChatSession == nil {
		writeNotConfigured(w, "Chat")
		return
	}
	err := s.deps.EndChatSession.Handle(r.Context(), command.EndChatSessionCommand{
		StudentID: r.PathValue("id"),
		SessionID: r.PathValue("session"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func writeNotConfigured(w http.ResponseWriter, what string) {
	writeJSONError(w, http.StatusNotImplemented, "not_implemented", what+" handler not configured")
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// FeatureAdmin changes feature flags at runtime.
type FeatureAdmin interface {
	Snapshot() []config.Feature
	SetRolloutPercent(feature string, percent int) error
	EnableFeature(feature string) error
	DisableFeature(feature string) error
	SetStudentOverride(studentID, feature string, on bool) error
}

// FeatureRequest is the body of PUT /api/v1/admin/features/{name}. Rollout
// wins when both fields are set. With student_id, enabled becomes an
// override for that student only.
type FeatureRequest struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	Rollout   *int   `json:"rollout,omitempty" validate:"omitempty,min=0,max=100"`
	StudentID string `json:"student_id,omitempty"`
}

// handleListFeatures handles GET /api/v1/admin/features
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"features": s.deps.Features.Snapshot()})
}

// handleSetFeature handles PUT /api/v1/admin/features/{name}
func (s *Server) handleSetFeature(w http.ResponseWriter, r *http.Request) {
	var req FeatureRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	name := r.PathValue("name")
	var err error
	switch {
	case req.StudentID != "" && req.Enabled != nil:
		if err = s.deps.Features.SetStudentOverride(req.StudentID, name, *req.Enabled); err == nil {
			logger.FromContext(r.Context()).Info("feature override set",
				logger.String("feature", name), logger.StudentID(req.StudentID))
			writeJSON(w, http.StatusOK, map[string]any{"name": name, "student_id": req.StudentID, "enabled": *req.Enabled})
			return
		}
	case req.Rollout != nil:
		err = s.deps.Features.SetRolloutPercent(name, *req.Rollout)
	case req.Enabled != nil && *req.Enabled:
		err = s.deps.Features.EnableFeature(name)
	case req.Enabled != nil:
		err = s.deps.Features.DisableFeature(name)
	default:
		err = &handlers.ValidationError{Fields: map[string]string{"enabled": "enabled or rollout is required"}}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	for _, f := range s.deps.Features.Snapshot() {
		if f.Name == name {
			logger.FromContext(r.Context()).Info("feature flag changed",
				logger.String("feature", name), logger.Int("rollout", f.Rollout))
			writeJSON(w, http.StatusOK, f)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path), logger.Err(err))
	}
	writeAPIError(w, status, apiErr)
}

func classifyError(err error) (int, *APIError) {
	var verr *handlers.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, &APIError{Code: "validation_failed", Message: "Request is invalid", Fields: verr.Fields}
	case errors.Is(err, handlers.ErrBadJSON):
		return http.StatusBadRequest, &APIError{Code: "invalid_request", Message: handlers.ErrBadJSON.Error()}
	case errors.Is(err, chat.ErrSessionMismatch):
		return http.StatusForbidden, &APIError{Code: "session_mismatch", Message: "Chat session belongs to another student"}
	case errors.Is(err, shared.ErrFeatureDisabled):
		return http.StatusForbidden, &APIError{Code: "feature_disabled", Message: "This feature is disabled"}
	case errors.Is(err, shared.ErrGeminiNotConfigured):
		return http.StatusServiceUnavailable, &APIError{Code: "ai_not_configured", Message: "AI assistant is not configured"}
	case errors.Is(err, shared.ErrStudentNotFound):
		return http.StatusNotFound, &APIError{Code: "student_not_found", Message: "Student not found"}
	case shared.IsNotFound(err):
		return http.StatusNotFound, &APIError{Code: "not_found", Message: publicMessage(err)}
	case shared.IsValidation(err):
		return http.StatusBadRequest, &APIError{Code: "invalid_request", Message: publicMessage(err)}
	case shared.IsExternalService(err):
		return http.StatusBadGateway, &APIError{Code: "upstream_error", Message: "AI provider is unavailable"}
	default:
		return http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "An unexpected error occurred"}
	}
}

// publicMessage returns the message of a domain error without its chain.
func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "An unexpected error occurred"
}
