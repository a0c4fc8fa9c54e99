// ABOUTME: Request handlers for the /threads endpoints
// ABOUTME: Decode JSON bodies, call the thread store and map errors onto status codes

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/2389/coven-threads/internal/export"
	"github.com/2389/coven-threads/internal/threads"
)

// CreateThreadRequest is the JSON request body for POST /threads.
type CreateThreadRequest struct {
	Title          *string `json:"title,omitempty"`
	InitialMessage *string `json:"initial_message,omitempty"`
}

// UpdateThreadRequest is the JSON request body for PATCH /threads/{id}.
type UpdateThreadRequest struct {
	Title *string `json:"title"`
}

// AppendMessageRequest is the JSON request body for POST /threads/{id}/messages.
// Role must be present but may be empty.
type AppendMessageRequest struct {
	Role    *string `json:"role"`
	Content string `json:"content"`
}

// DeleteThreadResponse is the JSON response for DELETE /threads/{id}.
type DeleteThreadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	errThreadNotFound = "thread not found"
	errInternal       = "internal server error"
	errInvalidJSON    = "invalid JSON body"
)

// handleCreateThread handles POST /threads. An empty body creates a default thread.
func (a *API) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := a.store.Create(r.Context(), deref(req.Title), deref(req.InitialMessage))
	if err != nil {
		a.logger.Error("failed to create thread", "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, errInternal)
		return
	}

	a.logger.Info("thread created", "id", thread.ID, "caller", callerKey(r))
	a.sendJSON(w, http.StatusOK, thread)
}

// handleListThreads handles GET /threads.
func (a *API) handleListThreads(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.store.List(r.Context())
	if err != nil {
		a.logger.Error("failed to list threads", "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if summaries == nil {
		summaries = []threads.ThreadSummary{}
	}
	a.sendJSON(w, http.StatusOK, summaries)
}

// handleGetThread handles GET /threads/{id}.
func (a *API) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	thread, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.sendStoreError(w, "get", id, err)
		return
	}
	a.sendJSON(w, http.StatusOK, thread)
}

// handleUpdateThread handles PATCH /threads/{id}. A missing title leaves it unchanged.
func (a *API) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdateThreadRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := a.store.UpdateTitle(r.Context(), id, req.Title)
	if err != nil {
		a.sendStoreError(w, "update", id, err)
		return
	}
	a.sendJSON(w, http.StatusOK, thread)
}

// handleDeleteThread handles DELETE /threads/{id}.
func (a *API) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	removed, err := a.store.Delete(r.Context(), id)
	if err != nil {
		a.sendStoreError(w, "delete", id, err)
		return
	}
	if !removed {
		a.sendJSONError(w, http.StatusNotFound, errThreadNotFound)
		return
	}

	a.logger.Info("thread deleted", "id", id, "caller", callerKey(r))
	a.sendJSON(w, http.StatusOK, DeleteThreadResponse{Status: "success", Message: "Thread deleted"})
}

// handleAppendMessage handles POST /threads/{id}/messages.
func (a *API) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req AppendMessageRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == nil {
		a.sendJSONError(w, http.StatusBadRequest, "role is required")
		return
	}
	if req.Content == "" {
		a.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	thread, err := a.store.AppendMessage(r.Context(), id, *req.Role, req.Content)
	if err != nil {
		a.sendStoreError(w, "append", id, err)
		return
	}
	a.sendJSON(w, http.StatusOK, thread)
}

// handleExportThread handles GET /threads/{id}/export?format=markdown|html.
func (a *API) handleExportThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")

	thread, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.sendStoreError(w, "export", id, err)
		return
	}

	body, contentType, err := export.Render(format, thread)
	if errors.Is(err, export.ErrUnknownFormat) {
		a.sendJSONError(w, http.StatusBadRequest, "format must be markdown or html")
		return
	}
	if err != nil {
		a.logger.Error("failed to render export", "id", id, "format", format, "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, errInternal)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", export.Filename(thread, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// sendStoreError maps a store error to 404 or 500.
// Corrupt records are logged by the store and surface here as not found.
func (a *API) sendStoreError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, threads.ErrNotFound) {
		a.sendJSONError(w, http.StatusNotFound, errThreadNotFound)
		return
	}
	a.logger.Error("thread store failure", "op", op, "id", id, "error", err)
	a.sendJSONError(w, http.StatusInternalServerError, errInternal)
}

// sendJSON writes v as a JSON response.
func (a *API) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (a *API) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeBody parses the JSON request body into v. When allowEmpty is set an
// absent body leaves v at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New(errInvalidJSON)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
