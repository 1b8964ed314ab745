package api

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/model"
	"github.com/sprite-ai/revu/internal/score"
	"github.com/sprite-ai/revu/internal/session"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// --- Session lifecycle ---

type createRequest struct {
	Mode string `json:"mode,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "", "invalid request: "+err.Error())
		return
	}

	mode := model.ModeFullScan
	if req.Mode != "" {
		m, err := model.ParseMode(req.Mode)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "", err.Error())
			return
		}
		mode = m
	}

	ctrl := session.New(s.svc, mode)
	id := s.createSession(ctrl)
	s.logger.Info("session created", "id", id, "mode", mode)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sessionResponse(id, ctrl))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}
	render.JSON(w, r, sessionResponse(chi.URLParam(r, "id"), entry.ctrl))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.drop(id) {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}
	s.logger.Info("session discarded", "id", id)
	render.NoContent(w, r)
}

// --- Workflow operations ---

type sourceRequest struct {
	Files   []aggregate.Unit `json:"files,omitempty"`
	RepoURL string           `json:"repo_url,omitempty"`
	Code    string           `json:"code,omitempty"`
	Name    string           `json:"name,omitempty"`

	// Upload routes Files through the service's project ingestion, which
	// may normalize or filter the unit list before review.
	Upload bool `json:"upload,omitempty"`
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}

	var req sourceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "", "invalid request: "+err.Error())
		return
	}

	units := req.Files
	switch {
	case req.Upload && len(req.Files) > 0:
		ingested, err := s.svc.UploadProject(r.Context(), req.Files)
		if err != nil {
			s.logger.Warn("project upload failed", "id", id, "units", len(req.Files), "err", err)
			writeError(w, r, http.StatusBadGateway, model.ErrKindUploadFailed, err.Error())
			return
		}
		units = ingested
	case req.RepoURL != "":
		fetched, err := s.svc.FetchRepo(r.Context(), req.RepoURL)
		if err != nil {
			s.logger.Warn("repo fetch failed", "id", id, "repo_url", req.RepoURL, "err", err)
			writeError(w, r, http.StatusBadGateway, model.ErrKindRepoFetchFailed, err.Error())
			return
		}
		units = fetched
	case req.Code != "":
		name := req.Name
		if name == "" {
			name = "pasted"
		}
		units = []aggregate.Unit{{Name: name, Content: req.Code}}
	}

	if err := entry.ctrl.SetSource(units); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse(id, entry.ctrl))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}

	if err := entry.ctrl.Analyze(r.Context()); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse(id, entry.ctrl))
}

type selectRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}

	var req selectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "", "invalid request: "+err.Error())
		return
	}

	if err := entry.ctrl.ToggleSelection(model.IssueKey(req.Key)); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse(id, entry.ctrl))
}

type fixRequest struct {
	SelectedOnly bool `json:"selected_only"`
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}

	var req fixRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "", "invalid request: "+err.Error())
		return
	}

	if err := entry.ctrl.Fix(r.Context(), req.SelectedOnly); err != nil {
		writeWorkflowError(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse(id, entry.ctrl))
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}
	render.JSON(w, r, entry.ctrl.Delta())
}

// --- Responses ---

type sessionJSON struct {
	ID                string                `json:"id"`
	Phase             session.Phase         `json:"phase"`
	Language          string                `json:"language,omitempty"`
	Manifest          []string              `json:"manifest,omitempty"`
	SourceCode        string                `json:"source_code,omitempty"`
	CurrentResult     *model.AnalysisResult `json:"current_result,omitempty"`
	FixResult         *model.FixResult      `json:"fix_result,omitempty"`
	RemainingResult   *model.AnalysisResult `json:"remaining_result,omitempty"`
	SelectedKeys      []string              `json:"selected_keys"`
	InitialScore      *float64              `json:"initial_score,omitempty"`
	InitialIssueCount int                   `json:"initial_issue_count"`
	LastError         model.ErrorKind       `json:"last_error,omitempty"`
	ErrorMessage      string                `json:"error_message,omitempty"`
	Delta             *score.Delta          `json:"delta,omitempty"`
}

func sessionResponse(id string, ctrl *session.Controller) sessionJSON {
	snap := ctrl.Snapshot()

	keys := make([]string, 0, len(snap.SelectedKeys))
	for k := range snap.SelectedKeys {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	resp := sessionJSON{
		ID:                id,
		Phase:             snap.Phase,
		Language:          snap.Language,
		Manifest:          snap.Manifest,
		SourceCode:        snap.SourceCode,
		CurrentResult:     snap.CurrentResult,
		FixResult:         snap.FixResult,
		RemainingResult:   snap.RemainingResult,
		SelectedKeys:      keys,
		InitialScore:      snap.InitialScore,
		InitialIssueCount: snap.InitialIssueCount,
		LastError:         snap.LastError,
		ErrorMessage:      snap.ErrorMessage,
	}
	if d := ctrl.Delta(); d.Measured {
		resp.Delta = &d
	}
	return resp
}

type errorJSON struct {
	Error string          `json:"error"`
	Kind  model.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind model.ErrorKind, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorJSON{Error: msg, Kind: kind})
}

// writeWorkflowError maps controller errors to HTTP statuses. Validation
// errors are the caller's fault; anything else is a remote failure.
func writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrOperationInProgress):
		writeError(w, r, http.StatusConflict, model.ErrKindOperationInProgress, err.Error())
	case errors.Is(err, session.ErrEmptySource), errors.Is(err, aggregate.ErrNoUnits):
		writeError(w, r, http.StatusBadRequest, model.ErrKindEmptySource, err.Error())
	case errors.Is(err, session.ErrNoIssuesSelected):
		writeError(w, r, http.StatusBadRequest, model.ErrKindNoIssuesSelected, err.Error())
	case errors.Is(err, session.ErrUnknownIssue),
		errors.Is(err, session.ErrNoAnalysis),
		errors.Is(err, session.ErrWrongPhase),
		errors.Is(err, aggregate.ErrMarkerCollision):
		writeError(w, r, http.StatusBadRequest, "", err.Error())
	default:
		writeError(w, r, http.StatusBadGateway, "", err.Error())
	}
}
