package main

import "time"

// Roles are shared between the platform-wide user role and the
// project-scoped membership role.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
	RoleViewer = "VIEWER"
)

// Priorities are stored uppercase; clients normalize for display.
var validPriorities = map[string]bool{
	"LOW": true, "MEDIUM": true, "HIGH": true, "URGENT": true,
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Project struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Specifications string         `json:"specifications,omitempty"`
	CreatedBy      string         `json:"createdById,omitempty"`
	Media          []MediaFile    `json:"media"`
	Boards         []Board        `json:"boards,omitempty"`
	Members        []Member       `json:"members,omitempty"`
	Labels         []Label        `json:"labels,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Member is the membership wrapper shape: the joined user plus the
// project-scoped role.
type Member struct {
	User User   `json:"user"`
	Role string `json:"role"`
}

type Label struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

type Board struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Lists       []List     `json:"lists"`
	Activities  []Activity `json:"activities"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type List struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int64  `json:"position"`
	Cards    []Card `json:"cards"`
}

type Card struct {
	ID          string       `json:"id"`
	ListID      string       `json:"listId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Position    int64        `json:"position"`
	Priority    string       `json:"priority,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	AssignedTo  []User       `json:"assignedTo"`
	Labels      []Label      `json:"labels"`
	Comments    []Comment    `json:"comments"`
	Attachments []MediaFile  `json:"attachments"`
	CreatedBy   string       `json:"createdById,omitempty"`
	List        *ListRef     `json:"list,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ListRef carries the resolved parent board on card responses so clients
// can place the card without another lookup.
type ListRef struct {
	BoardID string `json:"boardId"`
}

type Comment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"cardId"`
	UserID    string    `json:"userId"`
	User      *User     `json:"user,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MediaFile is the descriptor stored in the attachments/media JSON
// columns; the bytes live under UPLOAD_DIR.
type MediaFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Activity rows are append-only.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	CardID      string    `json:"cardId,omitempty"`
	ListID      string    `json:"listId,omitempty"`
	BoardID     string    `json:"boardId,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	ActivityCardCreated  = "CARD_CREATED"
	ActivityCardMoved    = "CARD_MOVED"
	ActivityCardUpdated  = "CARD_UPDATED"
	ActivityCommentAdded = "COMMENT_ADDED"
	ActivityMemberAdded  = "MEMBER_ADDED"
)
