package main

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func (a *api) handleAdminListUsers(w http.ResponseWriter, r *http.Request, _ User) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.log.Error("admin list users", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, users)
}

func (a *api) handleAdminCreateUser(w http.ResponseWriter, r *http.Request, _ User) {
	var req struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Role      string `json:"role"`
	}
	if err := readJSON(w, r, &req); err != nil ||
		strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, 400, "email, username and password are required")
		return
	}
	role := req.Role
	if role == "" {
		role = RoleMember
	}
	switch role {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
	default:
		writeError(w, 400, "invalid role")
		return
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	u, err := a.store.CreateUser(r.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Username),
		string(hashBytes), req.FirstName, req.LastName, role)
	if err != nil {
		a.log.Error("admin create user", "err", err)
		writeError(w, 400, "cannot create user")
		return
	}
	writeJSON(w, 201, u)
}

func (a *api) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, _ User) {
	id := r.PathValue("id")
	var req struct {
		Email     *string `json:"email"`
		Username  *string `json:"username"`
		Password  *string `json:"password"`
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Role      *string `json:"role"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Role != nil {
		switch *req.Role {
		case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		default:
			writeError(w, 400, "invalid role")
			return
		}
	}
	var hash *string
	if req.Password != nil {
		if len(*req.Password) < 6 {
			writeError(w, 400, "password too short")
			return
		}
		hashBytes, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, 500, "internal error")
			return
		}
		h := string(hashBytes)
		hash = &h
	}
	u, err := a.store.AdminUpdateUser(r.Context(), id, req.Email, req.Username, hash,
		req.FirstName, req.LastName, req.Role)
	if err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "user not found")
			return
		}
		a.log.Error("admin update user", "user", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, u)
}

func (a *api) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if id == u.ID {
		writeError(w, 400, "cannot delete yourself")
		return
	}
	if err := a.store.DeleteUser(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "user not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleAdminListProjects(w http.ResponseWriter, r *http.Request, u User) {
	// Admins see every project regardless of membership.
	projects, err := a.store.AllProjectsFull(r.Context())
	if err != nil {
		a.log.Error("admin list projects", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, projects)
}

func (a *api) handleAdminCreateProject(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		OwnerID     string `json:"ownerId"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "title is required")
		return
	}
	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = u.ID
	}
	if _, err := a.store.UserByID(r.Context(), ownerID); err != nil {
		writeError(w, 404, "owner not found")
		return
	}
	p, err := a.store.CreateProject(r.Context(), ownerID, strings.TrimSpace(req.Title), req.Description)
	if err != nil {
		a.log.Error("admin create project", "err", err)
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

func (a *api) handleAdminDeleteProject(w http.ResponseWriter, r *http.Request, _ User) {
	id := r.PathValue("id")
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

func (a *api) handleAdminCreateBoard(w http.ResponseWriter, r *http.Request, _ User) {
	var req struct {
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ProjectID == "" || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "projectId and title are required")
		return
	}
	if _, err := a.store.GetProjectFull(r.Context(), req.ProjectID); err != nil {
		writeError(w, 404, "project not found")
		return
	}
	b, err := a.store.CreateBoard(r.Context(), req.ProjectID, strings.TrimSpace(req.Title), "")
	if err != nil {
		a.log.Error("admin create board", "project", req.ProjectID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, b)
}

func (a *api) handleAdminCreateLabel(w http.ResponseWriter, r *http.Request, _ User) {
	var req struct {
		ProjectID string `json:"projectId"`
		Name      string `json:"name"`
		Color     string `json:"color"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ProjectID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "projectId and name are required")
		return
	}
	l, err := a.store.CreateLabel(r.Context(), req.ProjectID, strings.TrimSpace(req.Name), req.Color)
	if err != nil {
		a.log.Error("admin create label", "project", req.ProjectID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, l)
}

func (a *api) handleAdminUpdateLabel(w http.ResponseWriter, r *http.Request, _ User) {
	id := r.PathValue("id")
	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, 400, "name cannot be empty")
		return
	}
	l, err := a.store.UpdateLabel(r.Context(), id, req.Name, req.Color)
	if err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "label not found")
			return
		}
		a.log.Error("admin update label", "label", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, l)
}

func (a *api) handleAdminDeleteLabel(w http.ResponseWriter, r *http.Request, _ User) {
	id := r.PathValue("id")
	if err := a.store.DeleteLabel(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "label not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
