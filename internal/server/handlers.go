package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/mount"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/step"
	"github.com/felixgeelhaar/blitz/internal/template"
)

type errorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// statusFor maps a coded error to an HTTP status.
func statusFor(err error) int {
	switch code := errors.CodeOf(err); {
	case code == errors.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case code == errors.ErrCodeTemplatePromptRequired:
		return http.StatusBadRequest
	case code == errors.ErrCodeNoActionableOutput:
		return http.StatusUnprocessableEntity
	case code == errors.ErrCodeSessionNoBackend:
		return http.StatusServiceUnavailable
	case code == errors.ErrCodeProviderRateLimit:
		return http.StatusTooManyRequests
	case code == errors.ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	case code == errors.ErrCodeEmptyResponse, strings.HasPrefix(string(code), "PROVIDER-"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error, sessionID string) {
	body := errorResponse{Error: err.Error(), SessionID: sessionID}
	var be *errors.BlitzError
	if stderrors.As(err, &be) {
		body.Error = be.Message
		body.Code = string(be.Code)
		body.Suggestions = be.Suggestions
	}
	if status >= 500 {
		s.logger.WithError(err).ErrorContext(r.Context(), "request error", "path", r.URL.Path)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

type templateRequest struct {
	Prompt string `json:"prompt"`
}

type templateResponse struct {
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// handleTemplate picks the starter template for a prompt.
// POST /template {prompt} -> {prompts, uiPrompts}
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "Prompt is required")
		return
	}

	tpl, err := template.Detect(req.Prompt)
	if err != nil {
		badRequest(w, "Prompt is required")
		return
	}
	s.logger.InfoContext(r.Context(), "template detected", "template", tpl.Name, "reason", tpl.Reason)

	writeJSON(w, http.StatusOK, templateResponse{Prompts: tpl.Prompts, UIPrompts: tpl.UIPrompts})
}

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleChat relays a conversation to the generator.
// POST /chat {messages} -> {response}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "Messages array is required")
		return
	}

	raw := strings.TrimSpace(string(req.Messages))
	if !strings.HasPrefix(raw, "[") {
		badRequest(w, "Messages array is required")
		return
	}
	var msgs []provider.Message
	if err := json.Unmarshal(req.Messages, &msgs); err != nil {
		badRequest(w, "Messages array is required")
		return
	}

	if s.deps.Generator == nil {
		s.writeError(w, r, http.StatusServiceUnavailable,
			errors.New(errors.ErrCodeSessionNoBackend, "no generation provider configured").
				WithSuggestion("Set GEMINI_API_KEY and restart the server"), "")
		return
	}

	s.logger.InfoContext(r.Context(), "processing chat request", "messages", len(msgs))
	out, err := s.deps.Generator.Generate(r.Context(), msgs)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: out})
}

func (s *Server) sessions(w http.ResponseWriter) (*session.Manager, bool) {
	if s.deps.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sessions are not enabled"})
		return nil, false
	}
	return s.deps.Sessions, true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	mgr, ok := s.sessions(w)
	if !ok {
		return nil, false
	}
	sess, err := mgr.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err, "")
		return nil, false
	}
	return sess, true
}

type createSessionRequest struct {
	Prompt string `json:"prompt"`
}

type sessionResponse struct {
	Session session.Summary `json:"session"`
	Turn    *session.Turn   `json:"turn,omitempty"`
}

// handleCreateSession starts a session. With a prompt it generates the
// project; without one it creates an empty session for posted artifacts.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.sessions(w)
	if !ok {
		return
	}

	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil && !stderrors.Is(err, io.EOF) {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	sess, err := mgr.Create()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, "")
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusCreated, sessionResponse{Session: sess.Summary()})
		return
	}

	turn, err := sess.Init(r.Context(), req.Prompt)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeSessionNoBackend) {
			_ = mgr.Delete(sess.ID())
			s.writeError(w, r, statusFor(err), err, "")
			return
		}
		s.writeError(w, r, statusFor(err), err, sess.ID())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess.Summary(), Turn: &turn})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.sessions(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]session.Summary{"sessions": mgr.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.Summary()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.sessions(w)
	if !ok {
		return
	}
	if err := mgr.Delete(chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, statusFor(err), err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Content string `json:"content"`
}

// handleMessage sends a follow-up message through the session's generator.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "content is required")
		return
	}

	turn, err := sess.Chat(r.Context(), req.Content)
	if err != nil {
		s.writeError(w, r, statusFor(err), err, sess.ID())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.Summary(), Turn: &turn})
}

type artifactRequest struct {
	Response string `json:"response"`
}

// handleArtifact ingests a model response produced elsewhere and runs a pass.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req artifactRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "response is required")
		return
	}

	ingest, err := sess.Ingest(r.Context(), req.Response)
	if err != nil {
		s.writeError(w, r, statusFor(err), err, sess.ID())
		return
	}
	pass, err := sess.Process(r.Context())
	turn := session.Turn{Response: req.Response, Ingest: ingest, Pass: pass}
	if err != nil {
		s.writeError(w, r, statusFor(err), err, sess.ID())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.Summary(), Turn: &turn})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.sessions(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "sessionID")
	if err := mgr.Save(id); err != nil {
		status := statusFor(err)
		if errors.HasCode(err, errors.ErrCodeSessionNoBackend) {
			status = http.StatusNotImplemented
		}
		s.writeError(w, r, status, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stepsResponse struct {
	Steps  []step.Step `json:"steps"`
	Counts step.Counts `json:"counts"`
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	steps := sess.Steps()
	if steps == nil {
		steps = []step.Step{}
	}
	writeJSON(w, http.StatusOK, stepsResponse{Steps: steps, Counts: sess.Counts()})
}

type treeResponse struct {
	Tree  filetree.Tree  `json:"tree"`
	Stats filetree.Stats `json:"stats"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	tree := sess.Tree()
	writeJSON(w, http.StatusOK, treeResponse{Tree: tree, Stats: tree.Stats()})
}

type mountResponse struct {
	Digest string       `json:"digest"`
	Record mount.Record `json:"record"`
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rec, digest := sess.Mount()
	if rec == nil {
		rec = mount.Record{}
	}
	writeJSON(w, http.StatusOK, mountResponse{Digest: digest, Record: rec})
}
