package main

import "net/http"

func (a *api) handleGetProfile(w http.ResponseWriter, _ *http.Request, u User) {
	writeJSON(w, 200, u)
}

func (a *api) handleUpdateProfile(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Avatar    *string `json:"avatar"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	updated, err := a.store.UpdateProfile(r.Context(), u.ID, req.FirstName, req.LastName, req.Avatar)
	if err != nil {
		a.log.Error("update profile", "user", u.ID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, updated)
}

func (a *api) handleUpdatePassword(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := readJSON(w, r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, 400, "password too short")
		return
	}
	if err := a.store.UpdatePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, 400, "wrong password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
