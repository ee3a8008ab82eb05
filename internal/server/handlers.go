package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/evocity/pkg/buildinfo"
	"github.com/matzehuels/evocity/pkg/diff"
	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/evolution"
	"github.com/matzehuels/evocity/pkg/pipeline"
	"github.com/matzehuels/evocity/pkg/scene"
)

// StateResponse is the body of GET /api/state and of accepted commands.
type StateResponse struct {
	Current         int                          `json:"current"`
	Revision        string                       `json:"revision,omitempty"`
	Count           int                          `json:"count"`
	State           evolution.State              `json:"state"`
	Transitioning   bool                         `json:"transitioning"`
	AutoPlay        bool                         `json:"autoplay"`
	AutoPlayReverse bool                         `json:"autoplay_reverse"`
	Duration        string                       `json:"duration"`
	Pending         int                          `json:"pending_animations"`
	Tracked         []string                     `json:"tracked"`
	LastTransition  *evolution.TransitionSummary `json:"last_transition,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string        `json:"error"`
	Code  everrors.Code `json:"code,omitempty"`
}

// DiffResponse is the body of GET /api/revisions/{index}/diff.
type DiffResponse struct {
	From int `json:"from"`
	To   int `json:"to"`
	diff.Classification
}

// RevisionInfo describes one revision in GET /api/revisions.
type RevisionInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// AutoPlayRequest is the body of POST /api/autoplay.
type AutoPlayRequest struct {
	Enabled bool `json:"enabled"`
	Reverse bool `json:"reverse"`
}

// DurationRequest is the body of POST /api/duration. Duration uses Go
// duration syntax, e.g. "1.5s".
type DurationRequest struct {
	Duration string `json:"duration"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Short(),
	})
}

// GetState handles GET /api/state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	var resp StateResponse
	s.withRenderer(func(res *pipeline.Result) { resp = stateOf(res) })
	writeJSON(w, http.StatusOK, resp)
}

// GetElements handles GET /api/elements. ?visible=true limits the response
// to elements currently shown.
func (s *Server) GetElements(w http.ResponseWriter, r *http.Request) {
	visibleOnly := r.URL.Query().Get("visible") == "true"
	var out []scene.Element
	s.withRenderer(func(res *pipeline.Result) {
		for _, e := range res.Renderer.Elements() {
			if visibleOnly && !e.Visible {
				continue
			}
			out = append(out, e)
		}
	})
	if out == nil {
		out = []scene.Element{}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListRevisions handles GET /api/revisions.
func (s *Server) ListRevisions(w http.ResponseWriter, r *http.Request) {
	var out []RevisionInfo
	s.withRenderer(func(res *pipeline.Result) {
		for i, snap := range res.Series.Snapshots() {
			out = append(out, RevisionInfo{Index: i, Name: snap.Name(), Nodes: snap.NodeCount(), Edges: snap.EdgeCount()})
		}
	})
	writeJSON(w, http.StatusOK, out)
}

// GetDiff handles GET /api/revisions/{index}/diff. The revision is compared
// against ?from=N, by default the revision before it; from=-1 compares
// against nothing.
func (s *Server) GetDiff(w http.ResponseWriter, r *http.Request) {
	to, err := indexParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	from := to - 1
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = strconv.Atoi(v); err != nil {
			writeError(w, everrors.New(everrors.ErrCodeInvalidInput, "invalid from parameter %q", v))
			return
		}
	}

	var resp DiffResponse
	s.withRenderer(func(res *pipeline.Result) {
		count := res.Series.Len()
		if err = everrors.ValidateRevisionIndex(to, count); err != nil {
			return
		}
		if from != -1 {
			if err = everrors.ValidateRevisionIndex(from, count); err != nil {
				return
			}
		}
		prev, _ := res.Series.At(from)
		next, _ := res.Series.At(to)
		resp = DiffResponse{
			From:           from,
			To:             to,
			Classification: diff.Compute(prev, next, diff.NewNumericAttributeDiff(res.Tracked...)),
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ShowNext handles POST /api/next.
func (s *Server) ShowNext(w http.ResponseWriter, r *http.Request) {
	s.command(w, func(nav *evolution.Navigator) bool { return nav.ShowNext() })
}

// ShowPrevious handles POST /api/previous.
func (s *Server) ShowPrevious(w http.ResponseWriter, r *http.Request) {
	s.command(w, func(nav *evolution.Navigator) bool { return nav.ShowPrevious() })
}

// ShowRevision handles POST /api/revisions/{index}.
func (s *Server) ShowRevision(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var rangeErr error
	s.withRenderer(func(res *pipeline.Result) {
		rangeErr = everrors.ValidateRevisionIndex(index, res.Series.Len())
	})
	if rangeErr != nil {
		writeError(w, rangeErr)
		return
	}
	s.command(w, func(nav *evolution.Navigator) bool { return nav.ShowSpecific(index) })
}

// SetAutoPlay handles POST /api/autoplay.
func (s *Server) SetAutoPlay(w http.ResponseWriter, r *http.Request) {
	var req AutoPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, everrors.Wrap(everrors.ErrCodeInvalidInput, err, "decode autoplay request"))
		return
	}
	s.command(w, func(nav *evolution.Navigator) bool {
		if req.Reverse {
			return nav.SetAutoPlayReverse(req.Enabled)
		}
		return nav.SetAutoPlay(req.Enabled)
	})
}

// SetDuration handles POST /api/duration.
func (s *Server) SetDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, everrors.Wrap(everrors.ErrCodeInvalidInput, err, "decode duration request"))
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, everrors.Wrap(everrors.ErrCodeInvalidInput, err, "duration"))
		return
	}
	var resp StateResponse
	s.withRenderer(func(res *pipeline.Result) {
		if err = res.Renderer.SetDuration(d); err == nil {
			resp = stateOf(res)
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// command runs a navigation command. Accepted commands answer 202 with the
// new state; rejected ones answer with the error explaining why.
func (s *Server) command(w http.ResponseWriter, fn func(*evolution.Navigator) bool) {
	var (
		accepted bool
		resp     StateResponse
		reason   error
	)
	s.withRenderer(func(res *pipeline.Result) {
		nav := res.Renderer.Navigator()
		accepted = fn(nav)
		resp = stateOf(res)
		if !accepted {
			reason = rejection(nav)
		}
	})
	if !accepted {
		writeError(w, reason)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// rejection explains why nav refused the last command.
func rejection(nav *evolution.Navigator) error {
	switch nav.LastRejection() {
	case evolution.RejectBusy:
		return everrors.New(everrors.ErrCodeAlreadyAnimating, "a transition is in progress")
	case evolution.RejectAutoPlayConflict:
		return everrors.New(everrors.ErrCodeAutoPlayActive, "auto-play is running in the other direction")
	case evolution.RejectNothingShown:
		return everrors.New(everrors.ErrCodeOutOfRange, "no revision is displayed yet")
	default:
		return everrors.New(everrors.ErrCodeOutOfRange, "no revision in that direction (current %d of %d)", nav.Current(), nav.Count())
	}
}

func stateOf(res *pipeline.Result) StateResponse {
	rd := res.Renderer
	nav := rd.Navigator()
	resp := StateResponse{
		Current:         rd.Current(),
		Count:           nav.Count(),
		State:           rd.State(),
		Transitioning:   nav.IsTransitioning(),
		AutoPlay:        nav.IsAutoPlay(),
		AutoPlayReverse: nav.IsAutoPlayReverse(),
		Duration:        rd.Orchestrator().Duration().String(),
		Pending:         rd.PendingAnimations(),
		Tracked:         res.Tracked,
	}
	if snap, ok := res.Series.At(resp.Current); ok {
		resp.Revision = snap.Name()
	}
	if summary, ok := rd.LastSummary(); ok {
		resp.LastTransition = &summary
	}
	return resp
}

func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, everrors.New(everrors.ErrCodeInvalidInput, "invalid revision index %q", raw)
	}
	return index, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, everrors.HTTPStatus(err), ErrorResponse{
		Error: everrors.UserMessage(err),
		Code:  everrors.GetCode(err),
	})
}
