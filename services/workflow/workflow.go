package workflow

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CreateSessionRequest is the optional body of POST /workflows/{id}/sessions.
type CreateSessionRequest struct {
	AutoExecute *bool `json:"autoExecute,omitempty"`
}

// NavigateRequest is the body of POST /sessions/{sid}/navigate.
type NavigateRequest struct {
	NodeID string `json:"nodeId"`
}

// CompleteNodeRequest is the optional body of POST /sessions/{sid}/nodes/{nodeId}/complete.
type CompleteNodeRequest struct {
	Data map[string]any `json:"data"`
}

// NodeErrorRequest is the body of POST /sessions/{sid}/nodes/{nodeId}/error.
type NodeErrorRequest struct {
	Message string `json:"message"`
}

// SessionResponse describes a session and its current state.
type SessionResponse struct {
	SessionID  string    `json:"sessionId"`
	WorkflowID string    `json:"workflowId"`
	CreatedAt  time.Time `json:"createdAt"`
	State      Snapshot  `json:"state"`
}

type errorResponse struct {
	Message string    `json:"message"`
	State   *Snapshot `json:"state,omitempty"`
}

// HandleListWorkflows returns every stored definition.
func (s *Service) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.repo.List(r.Context())
	if err != nil {
		slog.Error("Failed to list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if defs == nil {
		defs = []Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// HandleGetWorkflow loads a workflow definition and returns it as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Getting workflow", "id", id)

	def, err := s.repo.Get(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if def == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// HandleCreateSession builds an engine for the workflow, starts it and returns the
// new session.
func (s *Service) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Creating session", "workflow", id)

	var req CreateSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	graph, err := s.Graph(r.Context(), id)
	if err != nil {
		writeEngineError(w, err, nil)
		return
	}
	if graph == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	autoExecute := s.cfg.AutoExecute
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}
	sess, err := s.StartSession(r.Context(), graph, autoExecute)
	if err != nil {
		writeEngineError(w, err, nil)
		return
	}
	slog.Info("Session started", "workflow", id, "session", sess.ID, "autoExecute", autoExecute)
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

// HandleGetSession returns the session state.
func (s *Service) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleDeleteSession stops the engine and forgets the session.
func (s *Service) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.sessions.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLifecycle applies start, pause, resume, stop or reset.
func (s *Service) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	action := mux.Vars(r)["action"]
	switch action {
	case "start":
		if err := sess.Engine.Start(r.Context()); err != nil {
			writeEngineError(w, err, nil)
			return
		}
	case "pause":
		sess.Engine.Pause()
	case "resume":
		sess.Engine.Resume()
	case "stop":
		sess.Engine.Stop()
	case "reset":
		sess.Engine.Reset()
	}
	slog.Debug("Session lifecycle", "session", sess.ID, "action", action, "status", sess.Engine.Status())
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleNavigate moves the session to another node.
func (s *Service) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.NodeID) == "" {
		writeError(w, http.StatusBadRequest, errMissing("nodeId").Error())
		return
	}

	if err := sess.Engine.NavigateToNode(r.Context(), req.NodeID); err != nil {
		snap := sess.Engine.Snapshot()
		writeEngineError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleCompleteNode completes the active node with an optional payload.
func (s *Service) HandleCompleteNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req CompleteNodeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Engine.CompleteNode(mux.Vars(r)["nodeId"], req.Data); err != nil {
		writeEngineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleNodeError reports a failure against the active node.
func (s *Service) HandleNodeError(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req NodeErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errMissing("message").Error())
		return
	}
	if _, err := sess.Engine.SetNodeError(mux.Vars(r)["nodeId"], errors.New(req.Message)); err != nil {
		writeEngineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleValidate reports whether the current step can advance.
func (s *Service) HandleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": sess.Engine.ValidateCurrentStep(r.Context())})
}

// HandleCompliance returns the compliance status of a started session.
func (s *Service) HandleCompliance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	status := sess.Engine.ComplianceStatus()
	if status == nil {
		writeError(w, http.StatusConflict, "workflow not started")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleAudit returns the full audit report.
func (s *Service) HandleAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Engine.AuditReport())
}

func (s *Service) lookupSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sid := mux.Vars(r)["sid"]
	if _, err := uuid.Parse(sid); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, ok := s.sessions.Get(sid)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func sessionResponse(sess *Session) SessionResponse {
	return SessionResponse{
		SessionID:  sess.ID,
		WorkflowID: sess.WorkflowID,
		CreatedAt:  sess.CreatedAt,
		State:      sess.Engine.Snapshot(),
	}
}

// decodeOptional decodes a JSON body, treating an empty body as the zero value.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeEngineError(w http.ResponseWriter, err error, state *Snapshot) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidGraph), errors.Is(err, ErrNoStartNode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrNodeNotActive),
		errors.Is(err, ErrTransitionValidationFailed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("Workflow operation failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeJSON(w, status, errorResponse{Message: err.Error(), State: state})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

type validationError struct {
	field string
	kind  string
}

func (e *validationError) Error() string {
	if e.kind == "missing" {
		return e.field + " is required"
	}
	return e.field + " is invalid"
}

func errMissing(field string) error { return &validationError{field: field, kind: "missing"} }
