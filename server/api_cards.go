package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxUploadSize caps attachment and media uploads.
const maxUploadSize = 10 << 20

func uploadDir() string { return getenv("UPLOAD_DIR", "./uploads") }

// saveUpload stores the multipart "file" part under UPLOAD_DIR and
// returns its descriptor. On failure the response has already been
// written.
func (a *api) saveUpload(w http.ResponseWriter, r *http.Request) (MediaFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, 400, "invalid upload")
		return MediaFile{}, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, 400, "file is required")
		return MediaFile{}, err
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		writeError(w, 413, "file too large")
		return MediaFile{}, os.ErrInvalid
	}

	id := uuid.NewString()
	name := filepath.Base(header.Filename)
	if err := os.MkdirAll(uploadDir(), 0o755); err != nil {
		a.log.Error("upload dir", "err", err)
		writeError(w, 500, "internal error")
		return MediaFile{}, err
	}
	dst, err := os.Create(filepath.Join(uploadDir(), id+"_"+name))
	if err != nil {
		a.log.Error("create upload", "err", err)
		writeError(w, 500, "internal error")
		return MediaFile{}, err
	}
	defer dst.Close()
	size, err := io.Copy(dst, file)
	if err != nil {
		a.log.Error("write upload", "err", err)
		writeError(w, 500, "internal error")
		return MediaFile{}, err
	}
	return MediaFile{
		ID:         id,
		Name:       name,
		URL:        "/uploads/" + id + "_" + name,
		Size:       size,
		Type:       header.Header.Get("Content-Type"),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// cardProject resolves the card's project and checks membership. A
// false return means the response has been written.
func (a *api) cardProject(w http.ResponseWriter, r *http.Request, u User, cardID string, needEditor bool) bool {
	projectID, err := a.store.ProjectIDByCard(r.Context(), cardID)
	if err != nil {
		writeError(w, 404, "card not found")
		return false
	}
	return a.requireMember(w, r, u, projectID, needEditor)
}

func (a *api) logCardActivity(r *http.Request, typ string, u User, c Card, verb string) {
	boardID, _, _ := a.store.BoardAndListByCard(r.Context(), c.ID)
	_ = a.store.LogActivity(r.Context(), Activity{
		Type:        typ,
		UserID:      u.ID,
		CardID:      c.ID,
		ListID:      c.ListID,
		BoardID:     boardID,
		Description: verb + " card " + strconv.Quote(c.Title),
	})
}

func (a *api) handleCreateCard(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		Title       string     `json:"title"`
		ListID      string     `json:"listId"`
		Description string     `json:"description"`
		Priority    string     `json:"priority"`
		DueDate     *time.Time `json:"dueDate"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" || req.ListID == "" {
		writeError(w, 400, "title and listId are required")
		return
	}
	projectID, err := a.store.ProjectIDByList(r.Context(), req.ListID)
	if err != nil {
		writeError(w, 404, "list not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	priority := strings.ToUpper(req.Priority)
	if priority != "" && !validPriorities[priority] {
		writeError(w, 400, "invalid priority")
		return
	}
	c, err := a.store.CreateCard(r.Context(), req.ListID, strings.TrimSpace(req.Title),
		req.Description, priority, req.DueDate, u.ID)
	if err != nil {
		a.log.Error("create card", "list", req.ListID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	boardID, _ := a.store.BoardIDByList(r.Context(), req.ListID)
	c.List = &ListRef{BoardID: boardID}
	a.logCardActivity(r, ActivityCardCreated, u, c, "created")
	writeJSON(w, 201, c)
}

func (a *api) handleGetCard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.cardProject(w, r, u, id, false) {
		return
	}
	c, err := a.store.GetCardFull(r.Context(), id)
	if err != nil {
		writeError(w, 404, "card not found")
		return
	}
	writeJSON(w, 200, c)
}

func (a *api) handleUpdateCard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.cardProject(w, r, u, id, true) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	var req struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Priority    *string  `json:"priority"`
		DueDate     *string  `json:"dueDate"`
		Position    *int64   `json:"position"`
		ListID      *string  `json:"listId"`
		Assignees   []string `json:"assignees"`
		Labels      []string `json:"labels"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	// dueDate distinguishes absent from explicit null; a second pass over
	// the raw keys tells them apart.
	raw := map[string]json.RawMessage{}
	_ = json.Unmarshal(body, &raw)
	_, dueDateSet := raw["dueDate"]

	up := CardUpdate{
		Title:       req.Title,
		Description: req.Description,
		Position:    req.Position,
		ListID:      req.ListID,
		AssigneeIDs: req.Assignees,
		LabelIDs:    req.Labels,
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	if req.Priority != nil {
		p := strings.ToUpper(*req.Priority)
		if p != "" && !validPriorities[p] {
			writeError(w, 400, "invalid priority")
			return
		}
		up.Priority = &p
	}
	if dueDateSet {
		if req.DueDate == nil {
			up.ClearDueDate = true
		} else {
			t, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				writeError(w, 400, "invalid dueDate")
				return
			}
			up.DueDate = &t
		}
	}

	if err := a.store.UpdateCard(r.Context(), id, up); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "card not found")
			return
		}
		a.log.Error("update card", "card", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	c, err := a.store.GetCardFull(r.Context(), id)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	a.logCardActivity(r, ActivityCardUpdated, u, c, "updated")
	writeJSON(w, 200, c)
}

func (a *api) handleDeleteCard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.cardProject(w, r, u, id, true) {
		return
	}
	if err := a.store.DeleteCard(r.Context(), id); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "card not found")
			return
		}
		writeError(w, 500, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleMoveCard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.cardProject(w, r, u, id, true) {
		return
	}
	var req struct {
		ListID   string `json:"listId"`
		Position int    `json:"position"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ListID == "" {
		writeError(w, 400, "listId is required")
		return
	}
	if _, err := a.store.BoardIDByList(r.Context(), req.ListID); err != nil {
		writeError(w, 404, "list not found")
		return
	}
	if err := a.store.MoveCard(r.Context(), id, req.ListID, req.Position); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "card not found")
			return
		}
		a.log.Error("move card", "card", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	c, err := a.store.GetCardFull(r.Context(), id)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	a.logCardActivity(r, ActivityCardMoved, u, c, "moved")
	writeJSON(w, 200, c)
}

func (a *api) handleAssignCard(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	projectID, err := a.store.ProjectIDByCard(r.Context(), id)
	if err != nil {
		writeError(w, 404, "card not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	var req struct {
		UserID string `json:"userId"`
		Assign bool   `json:"assign"`
	}
	if err := readJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, 400, "userId is required")
		return
	}
	if _, err := a.store.UserByID(r.Context(), req.UserID); err != nil {
		writeError(w, 404, "user not found")
		return
	}
	if req.Assign {
		if _, err := a.store.MemberRole(r.Context(), projectID, req.UserID); err != nil {
			writeError(w, 403, "assignee is not a project member")
			return
		}
	}
	if err := a.store.AssignCard(r.Context(), id, req.UserID, req.Assign); err != nil {
		a.log.Error("assign card", "card", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	c, err := a.store.GetCardFull(r.Context(), id)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, c)
}

func (a *api) handleToggleCardLabel(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	projectID, err := a.store.ProjectIDByCard(r.Context(), id)
	if err != nil {
		writeError(w, 404, "card not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	var req struct {
		LabelID string `json:"labelId"`
		Add     bool   `json:"add"`
	}
	if err := readJSON(w, r, &req); err != nil || req.LabelID == "" {
		writeError(w, 400, "labelId is required")
		return
	}
	labelProject, err := a.store.ProjectIDByLabel(r.Context(), req.LabelID)
	if err != nil {
		writeError(w, 404, "label not found")
		return
	}
	if labelProject != projectID {
		writeError(w, 400, "label belongs to another project")
		return
	}
	if err := a.store.ToggleCardLabel(r.Context(), id, req.LabelID, req.Add); err != nil {
		a.log.Error("toggle label", "card", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	c, err := a.store.GetCardFull(r.Context(), id)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, c)
}

func (a *api) handleUploadAttachment(w http.ResponseWriter, r *http.Request, u User) {
	id := r.PathValue("id")
	if !a.cardProject(w, r, u, id, true) {
		return
	}
	media, err := a.saveUpload(w, r)
	if err != nil {
		return
	}
	if err := a.store.AppendCardAttachment(r.Context(), id, media); err != nil {
		if err == ErrNotFound {
			writeError(w, 404, "card not found")
			return
		}
		a.log.Error("append attachment", "card", id, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, media)
}
