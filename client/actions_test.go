package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := New(NewRemote(srv.URL))
	s.apply(func(State) State { return seedState() })
	return s
}

func writeEntity(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestCreateCardInstallsServerCopyAndLogsActivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "Write docs", body["title"])
		assert.Equal(t, "l1", body["listId"])
		writeEntity(t, w, http.StatusCreated, map[string]any{
			"id": "c-new", "title": "Write docs", "listId": "l1",
			"position": 2, "priority": "MEDIUM",
		})
	})
	s := newTestStore(t, mux)

	err := s.CreateCard(context.Background(), CardDraft{Title: "Write docs", ListID: "l1", Priority: PriorityMedium})
	require.NoError(t, err)

	st := s.State()
	got, ok := findCard(st, "c-new")
	require.True(t, ok)
	assert.Equal(t, PriorityMedium, got.Priority)
	assert.Equal(t, []string{"c1", "c2", "c-new"}, cardIDs(listByID(t, st, "l1")))

	require.Len(t, st.Activities, 1)
	assert.Equal(t, ActivityCardCreated, st.Activities[0].Type)
	assert.Equal(t, "c-new", st.Activities[0].CardID)
	assert.Equal(t, "b1", st.Activities[0].BoardID)
}

func TestCreateCardValidationSkipsNetwork(t *testing.T) {
	hit := false
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))

	err := s.CreateCard(context.Background(), CardDraft{Title: "   ", ListID: "l1"})

	require.ErrorIs(t, err, ErrValidation)
	assert.False(t, hit)
	assert.Empty(t, s.State().Activities)
}

func TestMoveCardAsyncSendsTargetListAndPosition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /cards/c1/move", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "l2", body["listId"])
		assert.Equal(t, float64(0), body["position"])
		writeEntity(t, w, http.StatusOK, map[string]any{
			"id": "c1", "title": "Task 1", "listId": "l2",
			"position": 0, "priority": "LOW",
		})
	})
	s := newTestStore(t, mux)

	err := s.MoveCardAsync(context.Background(), "c1", "l2", 0)
	require.NoError(t, err)

	st := s.State()
	assert.Equal(t, []string{"c2"}, cardIDs(listByID(t, st, "l1")))
	assert.Equal(t, []string{"c1"}, cardIDs(listByID(t, st, "l2")))

	require.Len(t, st.Activities, 1)
	assert.Equal(t, ActivityCardMoved, st.Activities[0].Type)
}

func TestMoveActivitySupersededByPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /cards/c1/move", func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusOK, map[string]any{
			"id": "c1", "title": "Task 1", "listId": "l2",
			"position": 0, "priority": "LOW",
		})
	})
	s := newTestStore(t, mux)

	require.NoError(t, s.MoveCardAsync(context.Background(), "c1", "l2", 0))
	require.Len(t, s.State().Activities, 1)

	// the backend logged the move itself; repeated polls must leave exactly
	// one entry for it, the server's
	p, _ := findProject(s.State(), "p1")
	server := []Activity{{ID: "srv-move", Type: ActivityCardMoved, BoardID: "b1", Description: `moved card "Task 1"`}}
	for i := 0; i < 3; i++ {
		s.mergeRefreshedProject(p, server)
	}

	st := s.State()
	moved := 0
	for _, a := range st.Activities {
		if a.Type == ActivityCardMoved {
			moved++
		}
	}
	assert.Equal(t, 1, moved)
	require.Len(t, st.Activities, 1)
	assert.Equal(t, "srv-move", st.Activities[0].ID)
}

func TestMoveCardAsyncFailureRestoresPosition(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusInternalServerError, map[string]string{"error": "move failed"})
	}))

	err := s.MoveCardAsync(context.Background(), "c1", "l2", 0)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "move failed", apiErr.Message)

	st := s.State()
	assert.Equal(t, []string{"c1", "c2"}, cardIDs(listByID(t, st, "l1")))
	assert.Empty(t, cardIDs(listByID(t, st, "l2")))
	assert.Empty(t, st.Activities)
}

func TestUpdateCardAsyncFailureRollsBackPriority(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusServiceUnavailable, map[string]string{"error": "backend down"})
	}))

	high := PriorityHigh
	err := s.UpdateCardAsync(context.Background(), "c1", CardPatch{Priority: &high})
	require.Error(t, err)

	got, ok := findCard(s.State(), "c1")
	require.True(t, ok)
	assert.Equal(t, PriorityLow, got.Priority)
	assert.Empty(t, s.State().Activities)
}

func TestUpdateCardAsyncReconcilesServerNormalization(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /cards/c1", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "urgent", body["priority"])
		writeEntity(t, w, http.StatusOK, map[string]any{
			"id": "c1", "title": "Task 1 (triaged)", "listId": "l1", "position": 0,
			"priority": "URGENT",
			"labels":   []map[string]string{{"id": "lab1", "name": "bug"}},
		})
	})
	s := newTestStore(t, mux)

	urgent := PriorityUrgent
	err := s.UpdateCardAsync(context.Background(), "c1", CardPatch{Priority: &urgent})
	require.NoError(t, err)

	st := s.State()
	got, ok := findCard(st, "c1")
	require.True(t, ok)
	assert.Equal(t, PriorityUrgent, got.Priority)
	assert.Equal(t, "Task 1 (triaged)", got.Title)
	assert.Equal(t, []string{"lab1"}, got.Labels)

	require.Len(t, st.Activities, 1)
	assert.Equal(t, ActivityCardUpdated, st.Activities[0].Type)
}

func TestUpdateCardAsyncRetryAfterFailure(t *testing.T) {
	fail := true
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /cards/c1", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			writeEntity(t, w, http.StatusInternalServerError, map[string]string{"error": "try again"})
			return
		}
		writeEntity(t, w, http.StatusOK, map[string]any{
			"id": "c1", "title": "Task 1", "listId": "l1", "position": 0, "priority": "HIGH",
		})
	})
	s := newTestStore(t, mux)

	high := PriorityHigh
	require.Error(t, s.UpdateCardAsync(context.Background(), "c1", CardPatch{Priority: &high}))
	got, _ := findCard(s.State(), "c1")
	assert.Equal(t, PriorityLow, got.Priority)

	fail = false
	require.NoError(t, s.UpdateCardAsync(context.Background(), "c1", CardPatch{Priority: &high}))

	st := s.State()
	got, _ = findCard(st, "c1")
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Len(t, st.Activities, 1)
}

func TestAssignMemberAsyncReconcilesCanonicalList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cards/c1/assign", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "u2", body["userId"])
		assert.Equal(t, true, body["assign"])
		writeEntity(t, w, http.StatusOK, map[string]any{
			"id": "c1", "title": "Task 1", "listId": "l1", "position": 0, "priority": "LOW",
			"assignedTo": []map[string]string{{"id": "u2", "username": "blake"}},
		})
	})
	s := newTestStore(t, mux)

	err := s.AssignMemberAsync(context.Background(), "c1", "u2")
	require.NoError(t, err)

	got, ok := findCard(s.State(), "c1")
	require.True(t, ok)
	require.Len(t, got.AssignedTo, 1)
	assert.Equal(t, "blake", got.AssignedTo[0].Username)
}

func TestAssignMemberAsyncFailureRollsBack(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusNotFound, map[string]string{"error": "user not found"})
	}))

	err := s.AssignMemberAsync(context.Background(), "c1", "u-ghost")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	got, ok := findCard(s.State(), "c1")
	require.True(t, ok)
	assert.Empty(t, got.AssignedTo)
	assert.Empty(t, s.State().Activities)
}

func TestToggleLabelAsyncFailureRollsBack(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusForbidden, map[string]string{"error": "not a member"})
	}))

	err := s.ToggleLabelAsync(context.Background(), "c1", "lab1", true)
	require.Error(t, err)

	got, ok := findCard(s.State(), "c1")
	require.True(t, ok)
	assert.Empty(t, got.Labels)
}

func TestAddCommentAsyncAppendsServerComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /comments", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "c1", body["cardId"])
		writeEntity(t, w, http.StatusCreated, map[string]any{
			"id": "cm1", "content": "ship it", "cardId": "c1", "userId": "u2",
			"user": map[string]string{"id": "u2", "username": "blake"},
		})
	})
	s := newTestStore(t, mux)

	err := s.AddCommentAsync(context.Background(), "c1", "ship it")
	require.NoError(t, err)

	st := s.State()
	got, ok := findCard(st, "c1")
	require.True(t, ok)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "ship it", got.Comments[0].Content)
	assert.Equal(t, "blake", got.Comments[0].User.Username)

	require.Len(t, st.Activities, 1)
	assert.Equal(t, ActivityCommentAdded, st.Activities[0].Type)
}

func TestCreateListLogsCreationEntry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /lists", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "b1", body["boardId"])
		assert.Equal(t, float64(2), body["position"])
		writeEntity(t, w, http.StatusCreated, map[string]any{
			"id": "l3", "title": "Blocked", "boardId": "b1", "position": 2,
		})
	})
	s := newTestStore(t, mux)

	err := s.CreateList(context.Background(), "Blocked")
	require.NoError(t, err)

	st := s.State()
	p, _ := findProject(st, "p1")
	require.Len(t, p.Boards[0].Lists, 3)

	require.Len(t, st.Activities, 1)
	assert.Equal(t, ActivityCardCreated, st.Activities[0].Type)
	assert.Contains(t, st.Activities[0].Description, "created list")
}

func TestUpdateProjectAsyncFailureRollsBack(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(t, w, http.StatusForbidden, map[string]string{"error": "admin access required"})
	}))

	title := "Renamed"
	err := s.UpdateProjectAsync(context.Background(), "p1", ProjectPatch{Title: &title})
	require.Error(t, err)

	p, ok := findProject(s.State(), "p1")
	require.True(t, ok)
	assert.Equal(t, "Demo", p.Title)
}
