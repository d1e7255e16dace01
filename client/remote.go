package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// MaxAttachmentSize is enforced client-side before any upload request.
const MaxAttachmentSize = 10 << 20

// APIError is a failed backend response: the backend's error message when
// it sent one, otherwise the HTTP status text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Remote is the per-entity request/response layer. It issues HTTP calls,
// translates responses into the local entity shape and surfaces failures;
// it never mutates the store itself. Requests carry no client-enforced
// timeout; cancellation comes from the caller's context and transport
// failures surface as errors.
type Remote struct {
	http *resty.Client
}

type RemoteOption func(*Remote)

// WithHTTPClient swaps the underlying transport (tests point this at an
// httptest server's client).
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.http = resty.NewWithClient(c).SetBaseURL(r.http.BaseURL) }
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{http: resty.New().SetBaseURL(baseURL)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// do executes one request and decodes either the entity body into out or
// the backend's {"error": msg} shape into an *APIError.
func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	req := r.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode())
		}
		return &APIError{Status: resp.StatusCode(), Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// --- wire shapes ---
//
// The backend embeds related records (label objects on cards, membership
// wrappers on projects, uppercase priorities). These types capture the
// canonical server shape; to* methods translate into local state shape.

type wireCard struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ListID      string       `json:"listId"`
	Position    int          `json:"position"`
	Priority    string       `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	AssignedTo  []User       `json:"assignedTo"`
	Labels      []Label      `json:"labels"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
	CreatedBy   string       `json:"createdById"`
	List        *struct {
		BoardID string `json:"boardId"`
	} `json:"list"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w wireCard) toCard() Card {
	labels := make([]string, 0, len(w.Labels))
	for _, l := range w.Labels {
		labels = append(labels, l.ID)
	}
	assigned := w.AssignedTo
	if assigned == nil {
		assigned = []User{}
	}
	comments := w.Comments
	if comments == nil {
		comments = []Comment{}
	}
	return Card{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		ListID:      w.ListID,
		Position:    w.Position,
		Priority:    NormalizePriority(w.Priority),
		DueDate:     w.DueDate,
		AssignedTo:  assigned,
		Labels:      labels,
		Comments:    comments,
		Attachments: w.Attachments,
		CreatedBy:   w.CreatedBy,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

type wireList struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	BoardID  string     `json:"boardId"`
	Position int        `json:"position"`
	Cards    []wireCard `json:"cards"`
}

func (w wireList) toList() List {
	cards := make([]Card, 0, len(w.Cards))
	for _, c := range w.Cards {
		cards = append(cards, c.toCard())
	}
	return List{ID: w.ID, Title: w.Title, BoardID: w.BoardID, Position: w.Position, Cards: cards}
}

type wireBoard struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   string     `json:"projectId"`
	Lists       []wireList `json:"lists"`
	Activities  []Activity `json:"activities"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (w wireBoard) toBoard() Board {
	lists := make([]List, 0, len(w.Lists))
	for _, l := range w.Lists {
		lists = append(lists, l.toList())
	}
	return Board{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		ProjectID:   w.ProjectID,
		Lists:       lists,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// wireMember is either a membership wrapper {user, role} or an already
// flat user record.
type wireMember struct {
	User
	Role    Role  `json:"role"`
	Wrapped *User `json:"user"`
}

func (w wireMember) toUser() User {
	if w.Wrapped != nil {
		u := *w.Wrapped
		if u.Role == "" {
			u.Role = w.Role
		}
		return u
	}
	u := w.User
	if u.Role == "" {
		u.Role = w.Role
	}
	return u
}

type wireProject struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Specifications string         `json:"specifications"`
	Media          []ProjectMedia `json:"media"`
	Boards         []wireBoard    `json:"boards"`
	Members        []wireMember   `json:"members"`
	Labels         []Label        `json:"labels"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// toProject flattens membership wrappers and collects the activities
// embedded per board, in server order.
func (w wireProject) toProject() (Project, []Activity) {
	boards := make([]Board, 0, len(w.Boards))
	var activities []Activity
	for _, b := range w.Boards {
		boards = append(boards, b.toBoard())
		activities = append(activities, b.Activities...)
	}
	members := make([]User, 0, len(w.Members))
	for _, m := range w.Members {
		members = append(members, m.toUser())
	}
	labels := w.Labels
	if labels == nil {
		labels = []Label{}
	}
	return Project{
		ID:             w.ID,
		Title:          w.Title,
		Description:    w.Description,
		Specifications: w.Specifications,
		Media:          w.Media,
		Boards:         boards,
		Members:        members,
		Labels:         labels,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}, activities
}

// --- auth & profile ---

type RegisterInput struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

func (r *Remote) Register(ctx context.Context, in RegisterInput) (User, error) {
	var u User
	err := r.do(ctx, http.MethodPost, "/auth/register", in, &u)
	return u, err
}

func (r *Remote) Login(ctx context.Context, email, password string) (User, error) {
	var u User
	err := r.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &u)
	return u, err
}

func (r *Remote) Logout(ctx context.Context) error {
	return r.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (r *Remote) Me(ctx context.Context) (User, error) {
	var u User
	err := r.do(ctx, http.MethodGet, "/profile", nil, &u)
	return u, err
}

// --- projects ---

func (r *Remote) FetchProjects(ctx context.Context) ([]Project, error) {
	var wire []wireProject
	if err := r.do(ctx, http.MethodGet, "/projects", nil, &wire); err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(wire))
	for _, w := range wire {
		p, _ := w.toProject()
		projects = append(projects, p)
	}
	return projects, nil
}

// FetchProject is the full refresh used by the polling synchronizer. The
// returned activities are the board-embedded entries in server order,
// undeduplicated.
func (r *Remote) FetchProject(ctx context.Context, id string) (Project, []Activity, error) {
	var w wireProject
	if err := r.do(ctx, http.MethodGet, "/projects/"+id, nil, &w); err != nil {
		return Project{}, nil, err
	}
	p, activities := w.toProject()
	return p, activities, nil
}

func (r *Remote) CreateProject(ctx context.Context, title, description string) (Project, error) {
	var w wireProject
	err := r.do(ctx, http.MethodPost, "/projects", map[string]string{
		"title": title, "description": description,
	}, &w)
	if err != nil {
		return Project{}, err
	}
	p, _ := w.toProject()
	return p, nil
}

func (r *Remote) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, error) {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Specifications != nil {
		body["specifications"] = *patch.Specifications
	}
	var w wireProject
	if err := r.do(ctx, http.MethodPatch, "/projects/"+id, body, &w); err != nil {
		return Project{}, err
	}
	p, _ := w.toProject()
	return p, nil
}

func (r *Remote) AddProjectMember(ctx context.Context, projectID, userID string, role Role) (User, error) {
	var m wireMember
	err := r.do(ctx, http.MethodPost, "/projects/"+projectID+"/members", map[string]any{
		"userId": userID, "role": role,
	}, &m)
	return m.toUser(), err
}

func (r *Remote) CreateLabel(ctx context.Context, projectID, name, color string) (Label, error) {
	var l Label
	err := r.do(ctx, http.MethodPost, "/projects/"+projectID+"/labels", map[string]string{
		"name": name, "color": color,
	}, &l)
	return l, err
}

// --- boards & lists ---

func (r *Remote) CreateBoard(ctx context.Context, projectID, title, description string) (Board, error) {
	var w wireBoard
	err := r.do(ctx, http.MethodPost, "/boards", map[string]string{
		"projectId": projectID, "title": title, "description": description,
	}, &w)
	return w.toBoard(), err
}

func (r *Remote) CreateList(ctx context.Context, title, boardID string, position int) (List, error) {
	var w wireList
	err := r.do(ctx, http.MethodPost, "/lists", map[string]any{
		"title": title, "boardId": boardID, "position": position,
	}, &w)
	return w.toList(), err
}

// --- cards ---

// CardDraft is the minimal creation payload; the backend assigns id,
// position and timestamps.
type CardDraft struct {
	Title       string     `json:"title"`
	ListID      string     `json:"listId"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

func (r *Remote) CreateCard(ctx context.Context, draft CardDraft) (Card, error) {
	var w wireCard
	err := r.do(ctx, http.MethodPost, "/cards", draft, &w)
	return w.toCard(), err
}

func cardPatchBody(patch CardPatch) map[string]any {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Priority != nil {
		body["priority"] = *patch.Priority
	}
	if patch.DueDate != nil {
		body["dueDate"] = patch.DueDate.Format(time.RFC3339)
	} else if patch.ClearDueDate {
		body["dueDate"] = nil
	}
	if patch.Position != nil {
		body["position"] = *patch.Position
	}
	if patch.ListID != nil {
		body["listId"] = *patch.ListID
	}
	return body
}

func (r *Remote) UpdateCard(ctx context.Context, id string, patch CardPatch) (Card, error) {
	var w wireCard
	err := r.do(ctx, http.MethodPut, "/cards/"+id, cardPatchBody(patch), &w)
	return w.toCard(), err
}

func (r *Remote) MoveCard(ctx context.Context, id, listID string, position int) (Card, error) {
	var w wireCard
	err := r.do(ctx, http.MethodPatch, "/cards/"+id+"/move", map[string]any{
		"listId": listID, "position": position,
	}, &w)
	return w.toCard(), err
}

func (r *Remote) AssignCard(ctx context.Context, id, userID string, assign bool) (Card, error) {
	var w wireCard
	err := r.do(ctx, http.MethodPost, "/cards/"+id+"/assign", map[string]any{
		"userId": userID, "assign": assign,
	}, &w)
	return w.toCard(), err
}

func (r *Remote) ToggleCardLabel(ctx context.Context, id, labelID string, add bool) (Card, error) {
	var w wireCard
	err := r.do(ctx, http.MethodPost, "/cards/"+id+"/labels", map[string]any{
		"labelId": labelID, "add": add,
	}, &w)
	return w.toCard(), err
}

func (r *Remote) CreateComment(ctx context.Context, cardID, content string) (Comment, error) {
	var cm Comment
	err := r.do(ctx, http.MethodPost, "/comments", map[string]string{
		"content": content, "cardId": cardID,
	}, &cm)
	return cm, err
}

// UploadAttachment streams one file to the card's attachment endpoint.
// Size is checked client-side against the 10MB cap before any bytes move.
func (r *Remote) UploadAttachment(ctx context.Context, cardID, filename string, src io.Reader, size int64) (Attachment, error) {
	if size > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("attachment %q exceeds %d bytes", filename, MaxAttachmentSize)
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, src).
		Post("/cards/" + cardID + "/attachments")
	if err != nil {
		return Attachment{}, fmt.Errorf("POST /cards/%s/attachments: %w", cardID, err)
	}
	if resp.IsError() {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode())
		}
		return Attachment{}, &APIError{Status: resp.StatusCode(), Message: e.Error}
	}
	var a Attachment
	if err := json.Unmarshal(resp.Body(), &a); err != nil {
		return Attachment{}, fmt.Errorf("decode attachment: %w", err)
	}
	return a, nil
}

// --- admin surface ---
//
// All admin calls are additionally gated server-side on the caller's
// global ADMIN/OWNER role.

type AdminUserInput struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

func (r *Remote) AdminListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := r.do(ctx, http.MethodGet, "/admin/users", nil, &users)
	return users, err
}

func (r *Remote) AdminCreateUser(ctx context.Context, in AdminUserInput) (User, error) {
	var u User
	err := r.do(ctx, http.MethodPost, "/admin/users", in, &u)
	return u, err
}

func (r *Remote) AdminUpdateUser(ctx context.Context, userID string, in AdminUserInput) (User, error) {
	var u User
	err := r.do(ctx, http.MethodPatch, "/admin/users/"+userID, in, &u)
	return u, err
}

func (r *Remote) AdminDeleteUser(ctx context.Context, userID string) error {
	return r.do(ctx, http.MethodDelete, "/admin/users/"+userID, nil, nil)
}

func (r *Remote) AdminListProjects(ctx context.Context) ([]Project, error) {
	var wire []wireProject
	if err := r.do(ctx, http.MethodGet, "/admin/projects", nil, &wire); err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(wire))
	for _, w := range wire {
		p, _ := w.toProject()
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *Remote) AdminCreateProject(ctx context.Context, title, description, ownerID string) (Project, error) {
	var w wireProject
	err := r.do(ctx, http.MethodPost, "/admin/projects", map[string]string{
		"title": title, "description": description, "ownerId": ownerID,
	}, &w)
	if err != nil {
		return Project{}, err
	}
	p, _ := w.toProject()
	return p, nil
}

func (r *Remote) AdminDeleteProject(ctx context.Context, projectID string) error {
	return r.do(ctx, http.MethodDelete, "/admin/projects/"+projectID, nil, nil)
}

func (r *Remote) AdminCreateBoard(ctx context.Context, projectID, title string) (Board, error) {
	var w wireBoard
	err := r.do(ctx, http.MethodPost, "/admin/projects/boards", map[string]string{
		"projectId": projectID, "title": title,
	}, &w)
	return w.toBoard(), err
}

func (r *Remote) AdminCreateLabel(ctx context.Context, projectID, name, color string) (Label, error) {
	var l Label
	err := r.do(ctx, http.MethodPost, "/admin/labels", map[string]string{
		"projectId": projectID, "name": name, "color": color,
	}, &l)
	return l, err
}

func (r *Remote) AdminDeleteLabel(ctx context.Context, labelID string) error {
	return r.do(ctx, http.MethodDelete, "/admin/labels/"+labelID, nil, nil)
}
