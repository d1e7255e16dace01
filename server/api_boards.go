package main

import (
	"net/http"
	"strings"
)

func (a *api) handleCreateBoard(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		ProjectID   string `json:"projectId"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ProjectID == "" || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "projectId and title are required")
		return
	}
	if !a.requireMember(w, r, u, req.ProjectID, true) {
		return
	}
	b, err := a.store.CreateBoard(r.Context(), req.ProjectID, strings.TrimSpace(req.Title), req.Description)
	if err != nil {
		a.log.Error("create board", "project", req.ProjectID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, b)
}

func (a *api) handleDeleteBoard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	projectID, err := a.store.ProjectIDByBoard(r.Context(), id)
	if err != nil {
		writeError(w, 404, "board not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	if err := a.store.DeleteBoard(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "board not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
