package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orquestra-ai/orquestra/internal/controller"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Threads())
}

type createThreadRequest struct {
	Name          string   `json:"name"`
	WorkspaceDirs []string `json:"workspaceDirs"`
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name required")
		return
	}

	th, err := s.ctrl.CreateThread(r.Context(), req.Name, req.WorkspaceDirs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	th, err := s.ctrl.Thread(chi.URLParam(r, "threadID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

type renameRequest struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

func (s *Server) renameThread(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name required")
		return
	}
	if err := s.ctrl.RenameThread(r.Context(), chi.URLParam(r, "threadID"), req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.DeleteThread(r.Context(), chi.URLParam(r, "threadID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

type submitRequest struct {
	Prompt      string             `json:"prompt"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
	Effort      types.Effort       `json:"effort,omitempty"`
	SessionID   string             `json:"sessionID,omitempty"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt required")
		return
	}

	sessionID, err := s.ctrl.Submit(r.Context(), chi.URLParam(r, "threadID"), controller.SubmitOptions{
		Prompt:      req.Prompt,
		Attachments: req.Attachments,
		Effort:      req.Effort,
		SessionID:   req.SessionID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionID": sessionID})
}

func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "title required")
		return
	}
	if err := s.ctrl.RenameSession(r.Context(), chi.URLParam(r, "sessionID"), req.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Abort(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Approve(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) approveAlways(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ApproveAlways(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Deny(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

type answerRequest struct {
	Answers map[string]string `json:"answers"`
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.ctrl.Answer(r.Context(), chi.URLParam(r, "sessionID"), req.Answers)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, controller.ErrSessionNotFound), errors.Is(err, controller.ErrNoMediation):
		writeDomainError(w, err)
	default:
		// Incomplete answer forms are a client error, not a server one.
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	}
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mediator.Rules())
}

type addRuleRequest struct {
	ToolName string `json:"toolName"`
	Pattern  string `json:"pattern"`
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ToolName == "" || req.Pattern == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "toolName and pattern required")
		return
	}

	rule, err := s.mediator.AddRule(r.Context(), req.ToolName, req.Pattern)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) removeRule(w http.ResponseWriter, r *http.Request) {
	if err := s.mediator.RemoveRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	if s.teams == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.teams.Tracked())
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	if s.teams == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "team coordination disabled")
		return
	}
	snap := s.teams.Snapshot(chi.URLParam(r, "teamName"))
	if snap == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no snapshot for team")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
