package main

import (
	"net/http"
	"strconv"
	"strings"
)

func (a *api) handleCreateList(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		Title    string `json:"title"`
		BoardID  string `json:"boardId"`
		Position *int64 `json:"position"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" || req.BoardID == "" {
		writeError(w, 400, "title and boardId are required")
		return
	}
	projectID, err := a.store.ProjectIDByBoard(r.Context(), req.BoardID)
	if err != nil {
		writeError(w, 404, "board not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	l, err := a.store.CreateList(r.Context(), req.BoardID, strings.TrimSpace(req.Title), req.Position)
	if err != nil {
		a.log.Error("create list", "board", req.BoardID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	_ = a.store.LogActivity(r.Context(), Activity{
		Type:        ActivityCardCreated,
		UserID:      u.ID,
		ListID:      l.ID,
		BoardID:     req.BoardID,
		Description: "created list " + strconv.Quote(l.Title),
	})
	writeJSON(w, 201, l)
}

func (a *api) handleUpdateList(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	projectID, err := a.store.ProjectIDByList(r.Context(), id)
	if err != nil {
		writeError(w, 404, "list not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	var req struct {
		Title    *string `json:"title"`
		Position *int64  `json:"position"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	l, err := a.store.UpdateList(r.Context(), id, req.Title, req.Position)
	if err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "list not found")
			return
		}
		a.log.Error("update list", "list", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, l)
}

func (a *api) handleDeleteList(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	projectID, err := a.store.ProjectIDByList(r.Context(), id)
	if err != nil {
		writeError(w, 404, "list not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	if err := a.store.DeleteList(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "list not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
