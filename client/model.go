package client

import (
	"strings"
	"time"
)

// Priority of a card. The backend stores priorities uppercase; local state
// always keeps the lowercase form.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NormalizePriority maps any server casing onto the local lowercase form.
// Unknown values normalize to the empty priority.
func NormalizePriority(s string) Priority {
	switch Priority(strings.ToLower(s)) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(strings.ToLower(s))
	}
	return ""
}

// Role is used both for the platform-wide user role and for the
// project-scoped membership role.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

type ActivityType string

const (
	ActivityCardCreated  ActivityType = "CARD_CREATED"
	ActivityCardMoved    ActivityType = "CARD_MOVED"
	ActivityCardUpdated  ActivityType = "CARD_UPDATED"
	ActivityCommentAdded ActivityType = "COMMENT_ADDED"
	ActivityMemberAdded  ActivityType = "MEMBER_ADDED"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// DisplayName derives a human-readable name: first+last when present,
// else username, else email.
func (u User) DisplayName() string {
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Comment is immutable once created; there is no edit operation.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CardID    string    `json:"cardId,omitempty"`
	UserID    string    `json:"userId"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment is a descriptor kept as a small JSON blob on the card record,
// not a normalized row.
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ProjectMedia shares the attachment descriptor shape.
type ProjectMedia struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Card belongs to exactly one list; moving it changes ListID and Position
// together. Labels holds label ids, not embedded records.
type Card struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	ListID      string       `json:"listId"`
	Position    int          `json:"position"`
	Priority    Priority     `json:"priority,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	AssignedTo  []User       `json:"assignedTo"`
	Labels      []string     `json:"labels"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedBy   string       `json:"createdBy,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type List struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	BoardID  string `json:"boardId"`
	Position int    `json:"position"`
	Cards    []Card `json:"cards"`
}

type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ProjectID   string    `json:"projectId"`
	Lists       []List    `json:"lists"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Project struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Specifications string         `json:"specifications,omitempty"`
	Media          []ProjectMedia `json:"media,omitempty"`
	Boards         []Board        `json:"boards"`
	Members        []User         `json:"members"`
	Labels         []Label        `json:"labels"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Membership is the project-scoped role of a user, independent of the
// user's platform role.
type Membership struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Role      Role   `json:"role"`
}

// Activity is append-only; entries are never edited after creation.
// Client-generated board-scoped entries carry the current board id and are
// superseded by the server's own row on the next poll; only board-less
// entries (member adds) persist across merges.
type Activity struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	UserID      string       `json:"userId"`
	CardID      string       `json:"cardId,omitempty"`
	ListID      string       `json:"listId,omitempty"`
	BoardID     string       `json:"boardId,omitempty"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// State is the complete client-side snapshot: the entity tree, current
// selections and filter state. It is the only persisted client structure.
type State struct {
	Projects         []Project  `json:"projects"`
	CurrentProjectID string     `json:"currentProjectId,omitempty"`
	CurrentBoardID   string     `json:"currentBoardId,omitempty"`
	CurrentUser      User       `json:"currentUser"`
	Activities       []Activity `json:"activities"`
	SearchQuery      string     `json:"searchQuery,omitempty"`
	FilterPriority   Priority   `json:"filterPriority,omitempty"`
	FilterAssignee   string     `json:"filterAssignee,omitempty"`
	FilterLabel      string     `json:"filterLabel,omitempty"`
	SelectedCardID   string     `json:"selectedCardId,omitempty"`
}
