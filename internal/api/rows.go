package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/serverdb"
)

// handleSelect handles GET /rest/v1/{table}?user_id=eq.{owner}. The owner
// filter is optional; rows are always restricted to the caller.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	table := r.PathValue("table")

	if f := r.URL.Query().Get("user_id"); f != "" {
		owner, ok := parseEq(f)
		if !ok {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "user_id filter must be eq.<id>")
			return
		}
		if owner != user.UserID {
			writeJSON(w, http.StatusOK, []models.Row{})
			return
		}
	}

	rows, err := s.store.SelectRows(table, user.UserID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordRowsRead(int64(len(rows)))
	writeJSON(w, http.StatusOK, rows)
}

// handleInsert handles POST /rest/v1/{table} and returns the stored row.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	table := r.PathValue("table")

	fields, ok := decodeRow(w, r)
	if !ok {
		return
	}

	row, err := s.store.InsertRow(table, user.UserID, fields)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	logFor(r.Context()).Debug("row inserted", "table", table, "id", row.ID())
	writeJSON(w, http.StatusCreated, row)
}

// handleUpdate handles PATCH /rest/v1/{table}?id=eq.{id}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	table := r.PathValue("table")

	id, ok := idParam(w, r)
	if !ok {
		return
	}
	fields, ok := decodeRow(w, r)
	if !ok {
		return
	}

	if err := s.store.UpdateRow(table, user.UserID, id, fields); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete handles DELETE /rest/v1/{table}?id=eq.{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	table := r.PathValue("table")

	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteRow(table, user.UserID, id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, serverdb.ErrUnknownTable):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, serverdb.ErrRowNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, serverdb.ErrInvalidRow):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRow, err.Error())
	default:
		logFor(r.Context()).Error("store", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

func decodeRow(w http.ResponseWriter, r *http.Request) (models.Row, bool) {
	var fields models.Row
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return nil, false
	}
	if fields == nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON object")
		return nil, false
	}
	return fields, true
}

func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := parseEq(r.URL.Query().Get("id"))
	if !ok || id == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "id filter must be eq.<id>")
		return "", false
	}
	return id, true
}

// parseEq reads a PostgREST-style "eq.<value>" filter.
func parseEq(v string) (string, bool) {
	return strings.CutPrefix(v, "eq.")
}
