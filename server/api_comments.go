package main

import (
	"net/http"
	"strconv"
	"strings"
)

func (a *api) handleCreateComment(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		CardID  string `json:"cardId"`
		Content string `json:"content"`
	}
	if err := readJSON(w, r, &req); err != nil || req.CardID == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, 400, "cardId and content are required")
		return
	}
	projectID, err := a.store.ProjectIDByCard(r.Context(), req.CardID)
	if err != nil {
		writeError(w, 404, "card not found")
		return
	}
	if !a.requireMember(w, r, u, projectID, true) {
		return
	}
	c, err := a.store.CreateComment(r.Context(), req.CardID, u.ID, strings.TrimSpace(req.Content))
	if err != nil {
		a.log.Error("create comment", "card", req.CardID, "err", err)
		writeError(w, 500, "internal error")
		return
	}
	boardID, listID, _ := a.store.BoardAndListByCard(r.Context(), req.CardID)
	card, cardErr := a.store.GetCardFull(r.Context(), req.CardID)
	desc := "added a comment"
	if cardErr == nil {
		desc = "commented on " + strconv.Quote(card.Title)
	}
	_ = a.store.LogActivity(r.Context(), Activity{
		Type:        ActivityCommentAdded,
		UserID:      u.ID,
		CardID:      req.CardID,
		ListID:      listID,
		BoardID:     boardID,
		Description: desc,
	})
	writeJSON(w, 201, c)
}
