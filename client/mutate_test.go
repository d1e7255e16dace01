package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedState() State {
	c1 := Card{ID: "c1", Title: "Task 1", ListID: "l1", Position: 0, Priority: PriorityLow,
		AssignedTo: []User{}, Labels: []string{}, Comments: []Comment{}}
	c2 := Card{ID: "c2", Title: "Task 2", ListID: "l1", Position: 1,
		AssignedTo: []User{}, Labels: []string{}, Comments: []Comment{}}
	l1 := List{ID: "l1", Title: "Todo", BoardID: "b1", Position: 0, Cards: []Card{c1, c2}}
	l2 := List{ID: "l2", Title: "Done", BoardID: "b1", Position: 1, Cards: []Card{}}
	b1 := Board{ID: "b1", Title: "Sprint", ProjectID: "p1", Lists: []List{l1, l2}}
	p1 := Project{
		ID: "p1", Title: "Demo",
		Boards:  []Board{b1},
		Members: []User{{ID: "u1", Username: "avery"}, {ID: "u2", Username: "blake"}},
		Labels:  []Label{{ID: "lab1", Name: "bug", Color: "#ff0000"}},
	}
	return State{
		Projects:         []Project{p1},
		CurrentProjectID: "p1",
		CurrentBoardID:   "b1",
		CurrentUser:      User{ID: "u1", Username: "avery"},
		Activities:       []Activity{},
	}
}

func cardIDs(l List) []string {
	ids := make([]string, 0, len(l.Cards))
	for _, c := range l.Cards {
		ids = append(ids, c.ID)
	}
	return ids
}

func listByID(t *testing.T, st State, listID string) List {
	t.Helper()
	p, ok := findProject(st, st.CurrentProjectID)
	require.True(t, ok)
	for _, b := range p.Boards {
		for _, l := range b.Lists {
			if l.ID == listID {
				return l
			}
		}
	}
	t.Fatalf("list %s not found", listID)
	return List{}
}

func TestMoveCardNoOpKeepsOrder(t *testing.T) {
	st := seedState()

	next := moveCard(st, "c1", "l1", 0)

	assert.Equal(t, []string{"c1", "c2"}, cardIDs(listByID(t, next, "l1")))
}

func TestMoveCardExclusivity(t *testing.T) {
	st := seedState()

	next := moveCard(st, "c1", "l2", 0)

	assert.Equal(t, []string{"c2"}, cardIDs(listByID(t, next, "l1")))
	assert.Equal(t, []string{"c1"}, cardIDs(listByID(t, next, "l2")))
	moved, ok := findCard(next, "c1")
	require.True(t, ok)
	assert.Equal(t, "l2", moved.ListID)
}

func TestMoveCardReorderWithinList(t *testing.T) {
	st := seedState()

	next := moveCard(st, "c1", "l1", 1)

	assert.Equal(t, []string{"c2", "c1"}, cardIDs(listByID(t, next, "l1")))
}

func TestMoveCardClampsIndex(t *testing.T) {
	st := seedState()

	next := moveCard(st, "c1", "l2", 99)
	assert.Equal(t, []string{"c1"}, cardIDs(listByID(t, next, "l2")))

	next = moveCard(st, "c1", "l2", -5)
	assert.Equal(t, []string{"c1"}, cardIDs(listByID(t, next, "l2")))
}

func TestMutationsAreTotalOnAbsentTargets(t *testing.T) {
	st := seedState()

	assert.Equal(t, st, moveCard(st, "nope", "l2", 0))
	assert.Equal(t, st, moveCard(st, "c1", "nope", 0))
	assert.Equal(t, st, deleteCard(st, "nope"))
	assert.Equal(t, st, deleteList(st, "nope"))
	title := "x"
	assert.Equal(t, st, updateCard(st, "nope", CardPatch{Title: &title}))
	assert.Equal(t, st, addComment(st, "nope", Comment{ID: "cm1"}))

	// no current board selected: card operations leave the snapshot alone
	blank := st
	blank.CurrentBoardID = ""
	assert.Equal(t, blank, moveCard(blank, "c1", "l2", 0))
}

func TestMoveCardDoesNotMutateInput(t *testing.T) {
	st := seedState()

	_ = moveCard(st, "c1", "l2", 0)

	assert.Equal(t, []string{"c1", "c2"}, cardIDs(listByID(t, st, "l1")))
	assert.Empty(t, cardIDs(listByID(t, st, "l2")))
}

func TestUpdateCardPatchAndInvert(t *testing.T) {
	st := seedState()
	pre, ok := findCard(st, "c1")
	require.True(t, ok)

	high := PriorityHigh
	title := "Renamed"
	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	patch := CardPatch{Title: &title, Priority: &high, DueDate: &due}

	next := updateCard(st, "c1", patch)
	got, ok := findCard(next, "c1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, PriorityHigh, got.Priority)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))

	rolled := updateCard(next, "c1", invertCardPatch(patch, pre))
	back, ok := findCard(rolled, "c1")
	require.True(t, ok)
	assert.Equal(t, pre.Title, back.Title)
	assert.Equal(t, pre.Priority, back.Priority)
	assert.Nil(t, back.DueDate)
}

func TestAssignMemberIdempotent(t *testing.T) {
	st := seedState()
	member := User{ID: "u2", Username: "blake"}

	next := assignMember(st, "c1", "u2", member)
	next = assignMember(next, "c1", "u2", member)

	got, ok := findCard(next, "c1")
	require.True(t, ok)
	require.Len(t, got.AssignedTo, 1)
	assert.Equal(t, "u2", got.AssignedTo[0].ID)

	next = unassignMember(next, "c1", "u2")
	got, _ = findCard(next, "c1")
	assert.Empty(t, got.AssignedTo)
}

func TestToggleCardLabel(t *testing.T) {
	st := seedState()

	next := toggleCardLabel(st, "c1", "lab1", true)
	next = toggleCardLabel(next, "c1", "lab1", true)
	got, ok := findCard(next, "c1")
	require.True(t, ok)
	assert.Equal(t, []string{"lab1"}, got.Labels)

	next = toggleCardLabel(next, "c1", "lab1", false)
	got, _ = findCard(next, "c1")
	assert.Empty(t, got.Labels)
}

func TestAddAndDeleteList(t *testing.T) {
	st := seedState()

	next := addList(st, List{ID: "l3", Title: "Blocked", BoardID: "b1", Position: 2})
	p, _ := findProject(next, "p1")
	require.Len(t, p.Boards[0].Lists, 3)
	assert.NotNil(t, p.Boards[0].Lists[2].Cards)

	next = deleteList(next, "l3")
	p, _ = findProject(next, "p1")
	assert.Len(t, p.Boards[0].Lists, 2)
}

func TestAddCommentAppends(t *testing.T) {
	st := seedState()
	cm := Comment{ID: "cm1", Content: "looks good", UserID: "u2"}

	next := addComment(st, "c1", cm)

	got, ok := findCard(next, "c1")
	require.True(t, ok)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "looks good", got.Comments[0].Content)

	// immutable input
	orig, _ := findCard(st, "c1")
	assert.Empty(t, orig.Comments)
}

func TestReconcileCardOverwritesFieldForField(t *testing.T) {
	st := seedState()
	urgent := PriorityUrgent
	st = updateCard(st, "c1", CardPatch{Priority: &urgent})

	server := Card{
		ID: "c1", Title: "Task 1", ListID: "l1", Position: 0,
		Priority:   PriorityUrgent,
		AssignedTo: []User{{ID: "u2"}},
		Labels:     []string{"lab1"},
	}
	next := reconcileCard(st, "c1", server)

	got, ok := findCard(next, "c1")
	require.True(t, ok)
	assert.Equal(t, server.Title, got.Title)
	assert.Equal(t, server.Priority, got.Priority)
	assert.Equal(t, server.Labels, got.Labels)
	require.Len(t, got.AssignedTo, 1)
	assert.Equal(t, "u2", got.AssignedTo[0].ID)
}

func TestReplaceProjectIsWholeRecordOverwrite(t *testing.T) {
	st := seedState()
	fresh := Project{ID: "p1", Title: "Demo v2", Boards: []Board{}, Members: []User{}, Labels: []Label{}}

	next := replaceProject(st, fresh)

	p, ok := findProject(next, "p1")
	require.True(t, ok)
	assert.Equal(t, "Demo v2", p.Title)
	assert.Empty(t, p.Boards)
}
