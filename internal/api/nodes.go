package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxQueryParamLen    = 256
)

// nodeResponse is the body of GET /nodes/*.
type nodeResponse struct {
	Record   *recordJSON   `json:"record,omitempty"`
	Label    string        `json:"label"`
	Status   *int          `json:"status,omitempty"`
	Pending  *int          `json:"pending,omitempty"`
	Children []nodes.Child `json:"children"`
}

// recordJSON is a record without its leaf.
type recordJSON struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Parent string     `json:"parent,omitempty"`
	Type   nodes.Type `json:"type"`
}

// handleListTop returns the children of the top level.
func (s *Server) handleListTop(w http.ResponseWriter, _ *http.Request) {
	root := s.registry.Root()
	writeJSON(w, http.StatusOK, map[string]any{
		"children": nonNil(root.Children()),
		"stats":    s.registry.GetStats(),
	})
}

// handleGetNode resolves the wildcard path with View.Lookup and returns the
// record, its status and its children.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	path, ok := wildcardPath(r)
	if !ok {
		writeBadRequest(w, "invalid path")
		return
	}

	view, err := s.registry.Root().Lookup(path)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	resp := nodeResponse{
		Label:    view.String(),
		Children: nonNil(view.Children()),
	}
	if rec, ok := view.Record(); ok {
		resp.Record = &recordJSON{ID: rec.ID, Name: rec.Name, Parent: rec.Parent, Type: rec.Type}
	}
	if st, err := view.Status(); err == nil {
		v := st.Value()
		resp.Status = &v
		if p, ok := st.Pending(); ok {
			resp.Pending = &p
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleTree renders the outline of the top level or of a looked-up subtree.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	path, ok := wildcardPath(r)
	if !ok {
		writeBadRequest(w, "invalid path")
		return
	}

	view, err := s.registry.Root().Lookup(path)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(view.Outline()))
}

// handleNodeHistory returns recorded status changes for one node, newest first.
func (s *Server) handleNodeHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid node ID")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "status history is not enabled")
		return
	}

	if _, ok := s.registry.Record(id); !ok {
		writeNotFound(w, "node not found")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to get status history", "node_id", id, "error", err)
		writeInternalError(w, "failed to get status history")
		return
	}
	if entries == nil {
		entries = []nodes.StatusHistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_id": id,
		"history": entries,
		"count":   len(entries),
	})
}

// writeLookupError maps registry lookup errors to HTTP responses.
func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	var keyErr *nodes.KeyError
	if errors.As(err, &keyErr) {
		writeNotFound(w, "unrecognized key: "+keyErr.Key)
		return
	}
	s.logger.Error("node lookup failed", "error", err)
	writeInternalError(w, "node lookup failed")
}

// wildcardPath returns the unescaped remainder matched by a "/*" route.
func wildcardPath(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "*")
	path, err := url.PathUnescape(raw)
	if err != nil || len(path) > maxQueryParamLen*4 {
		return "", false
	}
	return path, true
}

// parseHistoryLimit validates the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

func nonNil(children []nodes.Child) []nodes.Child {
	if children == nil {
		return []nodes.Child{}
	}
	return children
}
