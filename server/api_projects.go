package main

import (
	"net/http"
	"strings"
)

func (a *api) handleListProjects(w http.ResponseWriter, r *http.Request, u User) {
	projects, err := a.store.ProjectsForUser(r.Context(), u.ID)
	if err != nil {
		a.log.Error("list projects", "user", u.ID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, projects)
}

func (a *api) handleCreateProject(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "title is required")
		return
	}
	p, err := a.store.CreateProject(r.Context(), u.ID, strings.TrimSpace(req.Title), req.Description)
	if err != nil {
		a.log.Error("create project", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	full, err := a.store.GetProjectFull(r.Context(), p.ID)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, full)
}

func (a *api) handleGetProject(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.requireMember(w, r, u, id, false) {
		return
	}
	p, err := a.store.GetProjectFull(r.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "project not found")
			return
		}
		a.log.Error("get project", "project", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, p)
}

func (a *api) handleUpdateProject(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.requireMember(w, r, u, id, true) {
		return
	}
	var req struct {
		Title          *string `json:"title"`
		Description    *string `json:"description"`
		Specifications *string `json:"specifications"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	if err := a.store.UpdateProject(r.Context(), id, req.Title, req.Description, req.Specifications); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "project not found")
			return
		}
		a.log.Error("update project", "project", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	p, err := a.store.GetProjectFull(r.Context(), id)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, p)
}

func (a *api) handleDeleteProject(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !isGlobalAdmin(u) {
		role, err := a.store.MemberRole(r.Context(), id, u.ID)
		if err != nil || role != RoleOwner {
			writeError(w, 403, "owner access required")
			return
		}
	}
	if err := a.store.DeleteProject(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "project not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleAddMember(w http.ResponseWriter, r *http.Request, u User) {
	projectID := r.PathValue("id")
	if !isGlobalAdmin(u) {
		role, err := a.store.MemberRole(r.Context(), projectID, u.ID)
		if err != nil || (role != RoleOwner && role != RoleAdmin) {
			writeError(w, 403, "insufficient permissions")
			return
		}
	}
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := readJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, 400, "userId is required")
		return
	}
	if req.Role == "" {
		req.Role = RoleMember
	}
	switch req.Role {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
	default:
		writeError(w, 400, "invalid role")
		return
	}
	target, err := a.store.UserByID(r.Context(), req.UserID)
	if err != nil {
		writeError(w, 404, "user not found")
		return
	}
	if err := a.store.AddProjectMember(r.Context(), projectID, target.ID, req.Role); err != nil {
		a.log.Error("add member", "project", projectID, "user", target.ID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	_ = a.store.LogActivity(r.Context(), Activity{
		Type:        ActivityMemberAdded,
		UserID:      u.ID,
		Description: "added " + target.Username + " to the project",
	})
	writeJSON(w, 201, Member{User: target, Role: req.Role})
}

func (a *api) handleRemoveMember(w http.ResponseWriter, r *http.Request, u User) {
	projectID := r.PathValue("id")
	userID := r.PathValue("userId")
	if !isGlobalAdmin(u) && userID != u.ID {
		role, err := a.store.MemberRole(r.Context(), projectID, u.ID)
		if err != nil || (role != RoleOwner && role != RoleAdmin) {
			writeError(w, 403, "insufficient permissions")
			return
		}
	}
	if err := a.store.RemoveProjectMember(r.Context(), projectID, userID); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "member not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCreateLabel(w http.ResponseWriter, r *http.Request, u User) {
	projectID := r.PathValue("id")
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "name is required")
		return
	}
	l, err := a.store.CreateLabel(r.Context(), projectID, strings.TrimSpace(req.Name), req.Color)
	if err != nil {
		a.log.Error("create label", "project", projectID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, l)
}

func (a *api) handleUploadProjectMedia(w http.ResponseWriter, r *http.Request, u User) {
	projectID := r.PathValue("id")
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	media, err := a.saveUpload(w, r)
	if err != nil {
		return
	}
	if err := a.store.AppendProjectMedia(r.Context(), projectID, media); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "project not found")
			return
		}
		a.log.Error("append media", "project", projectID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, media)
}
