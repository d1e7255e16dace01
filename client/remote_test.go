package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoDecodesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"admin access required"}`))
	}))
	t.Cleanup(srv.Close)
	r := NewRemote(srv.URL)

	_, _, err := r.FetchProject(context.Background(), "p1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "admin access required", apiErr.Message)
}

func TestDoFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	r := NewRemote(srv.URL)

	_, err := r.Me(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestWireCardTranslation(t *testing.T) {
	w := wireCard{
		ID: "c1", Title: "Task", ListID: "l1", Priority: "HIGH",
		Labels:     []Label{{ID: "lab1", Name: "bug"}, {ID: "lab2", Name: "ux"}},
		AssignedTo: nil,
	}

	c := w.toCard()

	assert.Equal(t, PriorityHigh, c.Priority)
	assert.Equal(t, []string{"lab1", "lab2"}, c.Labels)
	assert.NotNil(t, c.AssignedTo)
	assert.NotNil(t, c.Comments)
}

func TestWireMemberFlattening(t *testing.T) {
	wrapped := wireMember{
		Role:    RoleAdmin,
		Wrapped: &User{ID: "u1", Username: "avery"},
	}
	u := wrapped.toUser()
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, RoleAdmin, u.Role)

	flat := wireMember{User: User{ID: "u2", Username: "blake", Role: RoleMember}}
	u = flat.toUser()
	assert.Equal(t, "u2", u.ID)
	assert.Equal(t, RoleMember, u.Role)
}

func TestWireProjectCollectsBoardActivities(t *testing.T) {
	w := wireProject{
		ID: "p1",
		Boards: []wireBoard{
			{ID: "b1", Activities: []Activity{{ID: "a1"}, {ID: "a2"}}},
			{ID: "b2", Activities: []Activity{{ID: "a3"}}},
		},
	}

	p, activities := w.toProject()

	assert.Len(t, p.Boards, 2)
	require.Len(t, activities, 3)
	assert.Equal(t, "a1", activities[0].ID)
	assert.Equal(t, "a3", activities[2].ID)
}

func TestUploadAttachmentRejectsOversizedFile(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	t.Cleanup(srv.Close)
	r := NewRemote(srv.URL)

	_, err := r.UploadAttachment(context.Background(), "c1", "dump.bin",
		strings.NewReader(""), MaxAttachmentSize+1)

	require.Error(t, err)
	assert.False(t, hit)
}

func TestCardPatchBodyClearsDueDate(t *testing.T) {
	body := cardPatchBody(CardPatch{ClearDueDate: true})

	v, ok := body["dueDate"]
	require.True(t, ok)
	assert.Nil(t, v)
}
