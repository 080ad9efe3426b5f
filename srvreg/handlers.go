package srvreg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trainops/coachms/repository"
)

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

// statusForError maps a repository error code onto an HTTP status.
func statusForError(repoErr *repository.RepositoryError) int {
	switch repoErr.Code {
	case repository.ErrCodeEntityNotFound:
		return http.StatusNotFound
	case repository.ErrCodeDenied, repository.ErrCodeUnauthorized:
		return http.StatusForbidden
	case repository.ErrCodeSessionTerminal,
		repository.ErrCodeAlreadyTransitioned,
		repository.ErrCodeDuplicateDefect,
		repository.ErrCodeAlreadyResolved,
		repository.ErrCodeInvalidState,
		repository.PgErrUniqueViolation:
		return http.StatusConflict
	case repository.ErrCodeIncompleteChecklist,
		repository.ErrCodeUnresolvedDefects,
		repository.ErrCodeMissingEvidence:
		return http.StatusUnprocessableEntity
	case repository.PgErrForeignKeyViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(repoErr *repository.RepositoryError) (*Response, error) {
	body, _ := json.Marshal(map[string]any{"error": repoErr})
	return &Response{
		StatusCode: statusForError(repoErr),
		Headers:    defaultHeaders,
		Body:       string(body),
	}, fmt.Errorf("%s: %s", repoErr.Code, repoErr.Message)
}

func jsonResponse(statusCode int, payload any) *Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       `{"error":"failed to encode response"}`,
		}
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    defaultHeaders,
		Body:       string(body),
	}
}

func badRequest(message string) (*Response, error) {
	return &Response{
		StatusCode: http.StatusBadRequest,
		Headers:    defaultHeaders,
		Body:       fmt.Sprintf(`{"error":%q}`, message),
	}, fmt.Errorf("%s", message)
}

// pathSegment returns the path part at index, or "" when the path is shorter.
func pathSegment(path string, index int) string {
	parts := strings.Split(path, "/")
	if index >= len(parts) {
		return ""
	}
	return parts[index]
}

type startSessionBody struct {
	Module  string `json:"module"`
	CoachID string `json:"coach_id"`
}

// StartSessionHandler opens or resumes the coach's session under a module.
func (sr *ServiceRegistry) StartSessionHandler(req *Request) (*Response, error) {
	var body startSessionBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		sr.logger.Info("failed to parse body", "err", err)
		return badRequest("invalid body format")
	}
	if body.CoachID == "" {
		return badRequest("coach_id is required")
	}
	if body.Module == "" {
		return badRequest("module is required")
	}
	if req.Principal.ID == "" {
		return badRequest("X-Inspector-ID header is required")
	}

	session, repoErr := sr.repository.StartOrResume(body.CoachID, repository.Module(body.Module), req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusCreated, map[string]any{"session": session}), nil
}

// GetSessionHandler returns one session by id.
func (sr *ServiceRegistry) GetSessionHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)

	session, repoErr := sr.repository.GetSession(sessionID)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{"session": session}), nil
}

type autosaveBody struct {
	Answers []repository.AnswerInput `json:"answers"`
}

// AutosaveHandler persists a batch of answers into a session.
func (sr *ServiceRegistry) AutosaveHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)

	var body autosaveBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		sr.logger.Info("failed to parse body", "err", err)
		return badRequest("invalid body format")
	}
	if len(body.Answers) == 0 {
		return badRequest("answers are required")
	}
	for _, a := range body.Answers {
		if a.QuestionID == "" {
			return badRequest("every answer needs a question_id")
		}
	}

	session, repoErr := sr.repository.Autosave(sessionID, body.Answers, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"message":       "answers saved",
		"session_id":    session.ID,
		"status":        session.Status,
		"last_saved_at": session.LastSavedAt,
	}), nil
}

// SubmitSessionHandler transitions a session to SUBMITTED.
func (sr *ServiceRegistry) SubmitSessionHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)

	session, repoErr := sr.repository.Submit(sessionID, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"message":    "session submitted",
		"session_id": session.ID,
		"status":     session.Status,
	}), nil
}

// CompleteSessionHandler transitions a session to COMPLETED.
func (sr *ServiceRegistry) CompleteSessionHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)

	session, repoErr := sr.repository.Complete(sessionID, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"message":    "session completed",
		"session_id": session.ID,
		"status":     session.Status,
	}), nil
}

// ProgressHandler returns the session's checklist completion counts,
// optionally scoped to one subcategory.
func (sr *ServiceRegistry) ProgressHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)
	subcategoryID := req.Query.Get("subcategory_id")

	progress, repoErr := sr.repository.ComputeProgress(sessionID, subcategoryID)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, progress), nil
}

// SessionDefectsHandler lists every defect raised under one session.
func (sr *ServiceRegistry) SessionDefectsHandler(req *Request) (*Response, error) {
	sessionID := pathSegment(req.Path, 2)

	defects, repoErr := sr.repository.SessionDefects(sessionID)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{"defects": defects}), nil
}

type raiseDefectBody struct {
	SessionID   string  `json:"session_id"`
	QuestionID  string  `json:"question_id"`
	BeforePhoto *string `json:"before_photo"`
}

// RaiseDefectHandler records a deficiency against a checklist question.
func (sr *ServiceRegistry) RaiseDefectHandler(req *Request) (*Response, error) {
	var body raiseDefectBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		sr.logger.Info("failed to parse body", "err", err)
		return badRequest("invalid body format")
	}
	if body.SessionID == "" {
		return badRequest("session_id is required")
	}
	if body.QuestionID == "" {
		return badRequest("question_id is required")
	}

	defect, repoErr := sr.repository.RaiseDefect(body.SessionID, body.QuestionID, body.BeforePhoto, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusCreated, map[string]any{"defect": defect}), nil
}

type resolveDefectBody struct {
	AfterPhoto *string `json:"after_photo"`
}

// ResolveDefectHandler closes an open defect with after-photo evidence.
func (sr *ServiceRegistry) ResolveDefectHandler(req *Request) (*Response, error) {
	defectID := pathSegment(req.Path, 2)

	var body resolveDefectBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		sr.logger.Info("failed to parse body", "err", err)
		return badRequest("invalid body format")
	}

	defect, repoErr := sr.repository.ResolveDefect(defectID, body.AfterPhoto, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]any{"defect": defect}), nil
}

// parseListQuery pulls page/limit/filters out of a monitoring query string.
func parseListQuery(req *Request) (int, int, repository.MonitoringFilters) {
	page, _ := strconv.Atoi(req.Query.Get("page"))
	limit, _ := strconv.Atoi(req.Query.Get("limit"))

	filters := repository.MonitoringFilters{
		Module:      repository.Module(req.Query.Get("module")),
		InspectorID: req.Query.Get("inspector"),
		Status:      req.Query.Get("status"),
	}
	if raw := req.Query.Get("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = &ts
		}
	}
	if raw := req.Query.Get("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = &ts
		}
	}
	return page, limit, filters
}

// MonitoringSessionsHandler returns one page of the merged session feed.
func (sr *ServiceRegistry) MonitoringSessionsHandler(req *Request) (*Response, error) {
	page, limit, filters := parseListQuery(req)

	result, repoErr := sr.repository.ListSessions(page, limit, filters, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, result), nil
}

// MonitoringDefectsHandler returns one page of the merged defect feed.
func (sr *ServiceRegistry) MonitoringDefectsHandler(req *Request) (*Response, error) {
	page, limit, filters := parseListQuery(req)

	result, repoErr := sr.repository.ListDefects(page, limit, filters, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, result), nil
}

// MonitoringSummaryHandler returns the dashboard roll-up statistics.
func (sr *ServiceRegistry) MonitoringSummaryHandler(req *Request) (*Response, error) {
	_, _, filters := parseListQuery(req)

	stats, repoErr := sr.repository.Summarize(filters, req.Principal)
	if repoErr != nil {
		return errorResponse(repoErr)
	}
	return jsonResponse(http.StatusOK, stats), nil
}

// AuditHandler returns recent audit trail events, newest first. Admin only.
func (sr *ServiceRegistry) AuditHandler(req *Request) (*Response, error) {
	if req.Principal.Role != repository.RoleAdmin {
		return errorResponse(&repository.RepositoryError{
			Code:    repository.ErrCodeUnauthorized,
			Message: "Audit reads require the admin role",
		})
	}
	if sr.trail == nil {
		return jsonResponse(http.StatusOK, map[string]any{"events": []any{}}), nil
	}

	limit, _ := strconv.Atoi(req.Query.Get("limit"))
	events, err := sr.trail.Recent(limit, req.Query.Get("coach"))
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       `{"error":"failed to read audit trail"}`,
		}, err
	}
	return jsonResponse(http.StatusOK, map[string]any{"events": events}), nil
}
