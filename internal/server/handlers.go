package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/impact"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/server/notifier"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/internal/viz"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// errBadRequest marks client errors.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrInvalidAsset):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// idParam returns the {id} URL parameter, unescaped so that "asset%23column"
// yields "asset#column".
func idParam(r *http.Request) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		return "", badRequest("invalid id: %v", err)
	}
	return id, nil
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := state.Filter{
		Type:   core.AssetType(q.Get("type")),
		Source: q.Get("source"),
		Tag:    q.Get("tag"),
		Query:  q.Get("q"),
	}
	if f.Type != "" && !f.Type.Valid() {
		s.writeError(w, r, badRequest("unknown asset type %q", f.Type))
		return
	}
	var err error
	if f.PIIOnly, err = boolParam(r, "pii"); err != nil {
		s.writeError(w, r, badRequest("invalid pii: %v", err))
		return
	}
	if f.Limit, err = intParam(r, "limit", 0); err != nil {
		s.writeError(w, r, badRequest("invalid limit: %v", err))
		return
	}

	assets, err := s.engine.Store().ListAssets(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if assets == nil {
		assets = []*core.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.engine.Store().GetAsset(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSearchColumns(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, r, badRequest("q is required"))
		return
	}
	matches, err := s.engine.Store().SearchColumns(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []state.ColumnMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

type assetLineage struct {
	Asset      string        `json:"asset"`
	Upstream   []lineage.Hop `json:"upstream,omitempty"`
	Downstream []lineage.Hop `json:"downstream,omitempty"`
}

type columnLineage struct {
	Column     core.ColumnRef      `json:"column"`
	Upstream   []lineage.ColumnHop `json:"upstream,omitempty"`
	Downstream []lineage.ColumnHop `json:"downstream,omitempty"`
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if col := r.URL.Query().Get("column"); col != "" && !core.IsColumnRef(id) {
		id = core.ColumnRef{Asset: id, Column: col}.String()
	}
	depth, err := intParam(r, "depth", 0)
	if err != nil {
		s.writeError(w, r, badRequest("invalid depth: %v", err))
		return
	}
	up, down := true, true
	switch dir := r.URL.Query().Get("direction"); dir {
	case "", "both":
	case "up", "upstream":
		down = false
	case "down", "downstream":
		up = false
	default:
		s.writeError(w, r, badRequest("direction must be up, down or both, got %q", dir))
		return
	}

	t, err := s.engine.Tracker(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if core.IsColumnRef(id) {
		ref, err := core.ParseColumnRef(id)
		if err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
		out := columnLineage{Column: ref}
		if up {
			if out.Upstream, err = t.TraceColumn(ref, dag.Upstream, depth); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if down {
			if out.Downstream, err = t.TraceColumn(ref, dag.Downstream, depth); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	out := assetLineage{Asset: id}
	if up {
		if out.Upstream, err = t.Upstream(id, depth); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if down {
		if out.Downstream, err = t.Downstream(id, depth); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c := impact.Change{Target: id, Column: r.URL.Query().Get("column")}
	if core.IsColumnRef(id) {
		ref, err := core.ParseColumnRef(id)
		if err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
		c.Target, c.Column = ref.Asset, ref.Column
	}
	if change := r.URL.Query().Get("change"); change != "" {
		if c.Type, err = impact.ParseChangeType(change); err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
	} else if c.Column != "" {
		c.Type = impact.ChangeDropColumn
	}
	if c.Type.ColumnLevel() && c.Column == "" {
		s.writeError(w, r, badRequest("change %s needs a column", c.Type))
		return
	}
	if c.MaxDepth, err = intParam(r, "depth", 0); err != nil {
		s.writeError(w, r, badRequest("invalid depth: %v", err))
		return
	}

	rep, err := s.engine.Impact(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGlossary(w http.ResponseWriter, r *http.Request) {
	g := s.engine.Glossary()
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		matches := g.Search(q)
		terms := make([]glossary.Term, 0, len(matches))
		for _, m := range matches {
			terms = append(terms, m.Term)
		}
		writeJSON(w, http.StatusOK, terms)
		return
	}
	terms := g.List()
	if terms == nil {
		terms = []glossary.Term{}
	}
	writeJSON(w, http.StatusOK, terms)
}

func graphOptions(r *http.Request) (lineage.GraphOptions, error) {
	opts := lineage.GraphOptions{Focus: r.URL.Query().Get("focus")}
	var err error
	if opts.Depth, err = intParam(r, "depth", 0); err != nil {
		return opts, badRequest("invalid depth: %v", err)
	}
	if opts.Columns, err = boolParam(r, "columns"); err != nil {
		return opts, badRequest("invalid columns: %v", err)
	}
	return opts, nil
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	opts, err := graphOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.engine.Graph(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGraphPage(w http.ResponseWriter, r *http.Request) {
	opts, err := graphOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Columns = true
	snap, err := s.engine.Graph(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viz.RenderHTML(w, snap, viz.HTMLOptions{LiveReload: true}); err != nil {
		s.logger.Error("failed to render graph page", "error", err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, badRequest("invalid limit: %v", err))
		return
	}
	runs, err := s.engine.Store().ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*state.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleCollect runs every configured source, reloads pipelines and notifies
// listeners. A run with failed sources still answers 200 with the run record.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if len(s.sources) == 0 {
		s.writeError(w, r, badRequest("no sources configured"))
		return
	}
	res, err := s.refresh(r.Context(), s.sources)
	if res == nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Run)
}

func (s *Server) notify(kind string, runID string, assets int) {
	s.notifier.Broadcast(notifier.Event{Kind: kind, RunID: runID, Assets: assets})
}
