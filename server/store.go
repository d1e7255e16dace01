package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// --- users & sessions ---

func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash, firstName, lastName, role string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`insert into users(id, email, username, password_hash, first_name, last_name, role)
		 values($1,$2,$3,$4,$5,$6,$7)
		 returning id, email, username, first_name, last_name, coalesce(avatar,''), role, created_at`,
		uuid.NewString(), email, username, passwordHash, firstName, lastName, role).
		Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt)
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`select id, email, username, first_name, last_name, coalesce(avatar,''), role, created_at
		 from users where id=$1`, id).
		Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) userCredsByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`select id, email, username, first_name, last_name, coalesce(avatar,''), role, created_at, password_hash
		 from users where lower(email)=lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	return u, hash, err
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, hash, err := s.userCredsByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, firstName, lastName, avatar *string) (User, error) {
	set := []string{}
	args := []any{}
	idx := 1
	if firstName != nil {
		set = append(set, fmt.Sprintf("first_name=$%d", idx))
		args = append(args, *firstName)
		idx++
	}
	if lastName != nil {
		set = append(set, fmt.Sprintf("last_name=$%d", idx))
		args = append(args, *lastName)
		idx++
	}
	if avatar != nil {
		set = append(set, fmt.Sprintf("avatar=$%d", idx))
		args = append(args, *avatar)
		idx++
	}
	if len(set) > 0 {
		args = append(args, id)
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf("update users set %s where id=$%d", joinComma(set), idx), args...); err != nil {
			return User{}, err
		}
	}
	return s.UserByID(ctx, id)
}

func (s *Store) UpdatePassword(ctx context.Context, id, current, next string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, `select password_hash from users where id=$1`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return errors.New("wrong password")
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `update users set password_hash=$1 where id=$2`, string(newHash), id)
	return err
}

func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	expires := time.Now().Add(ttl)
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, token, expires_at) values($1,$2,$3,$4)`,
		uuid.NewString(), userID, token, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Store) UserBySession(ctx context.Context, token string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`select u.id, u.email, u.username, u.first_name, u.last_name, coalesce(u.avatar,''), u.role, u.created_at
		 from sessions s join users u on u.id=s.user_id
		 where s.token=$1 and s.expires_at > now()`, token).
		Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, email, username, first_name, last_name, coalesce(avatar,''), role, created_at
		 from users order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) AdminUpdateUser(ctx context.Context, id string, email, username, passwordHash, firstName, lastName, role *string) (User, error) {
	set := []string{}
	args := []any{}
	idx := 1
	add := func(col string, v *string) {
		if v != nil {
			set = append(set, fmt.Sprintf("%s=$%d", col, idx))
			args = append(args, *v)
			idx++
		}
	}
	add("email", email)
	add("username", username)
	add("password_hash", passwordHash)
	add("first_name", firstName)
	add("last_name", lastName)
	add("role", role)
	if len(set) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("update users set %s where id=$%d", joinComma(set), idx), args...)
		if err != nil {
			return User{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return User{}, ErrNotFound
		}
	}
	return s.UserByID(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- projects & membership ---

func (s *Store) CreateProject(ctx context.Context, creatorID, title, description string) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, err
	}
	defer func() { _ = tx.Rollback() }()
	var p Project
	err = tx.QueryRowContext(ctx,
		`insert into projects(id, title, description, created_by) values($1,$2,$3,$4)
		 returning id, title, description, specifications, coalesce(created_by,''), media, created_at, updated_at`,
		uuid.NewString(), title, description, creatorID).
		Scan(&p.ID, &p.Title, &p.Description, &p.Specifications, &p.CreatedBy, jsonDest(&p.Media), &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`insert into project_members(project_id, user_id, role) values($1,$2,$3)`,
		p.ID, creatorID, RoleOwner); err != nil {
		return Project{}, err
	}
	if err = tx.Commit(); err != nil {
		return Project{}, err
	}
	if p.Media == nil {
		p.Media = []MediaFile{}
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, title, description, specifications *string) error {
	set := []string{"updated_at=now()"}
	args := []any{}
	idx := 1
	add := func(col string, v *string) {
		if v != nil {
			set = append(set, fmt.Sprintf("%s=$%d", col, idx))
			args = append(args, *v)
			idx++
		}
	}
	add("title", title)
	add("description", description)
	add("specifications", specifications)
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("update projects set %s where id=$%d", joinComma(set), idx), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberRole returns the user's project-scoped role, or ErrNotFound when
// the user is not a member.
func (s *Store) MemberRole(ctx context.Context, projectID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`select role from project_members where project_id=$1 and user_id=$2`, projectID, userID).
		Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into project_members(project_id, user_id, role) values($1,$2,$3)
		 on conflict (project_id, user_id) do update set role=excluded.role`,
		projectID, userID, role)
	return err
}

func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from project_members where project_id=$1 and user_id=$2`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) projectMembers(ctx context.Context, projectID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`select u.id, u.email, u.username, u.first_name, u.last_name, coalesce(u.avatar,''), u.role, u.created_at, m.role
		 from project_members m join users u on u.id=m.user_id
		 where m.project_id=$1 order by u.username`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.User.ID, &m.User.Email, &m.User.Username, &m.User.FirstName,
			&m.User.LastName, &m.User.Avatar, &m.User.Role, &m.User.CreatedAt, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) projectLabels(ctx context.Context, projectID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, project_id, name, color from labels where project_id=$1 order by name, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Label{}
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ProjectsForUser returns every project the user is a member of, fully
// nested. This is the initial-load payload.
func (s *Store) ProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.title, p.description, p.specifications, coalesce(p.created_by,''), p.media, p.created_at, p.updated_at
		 from projects p join project_members m on m.project_id=p.id
		 where m.user_id=$1 order by p.created_at, p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Specifications, &p.CreatedBy,
			jsonDest(&p.Media), &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.fillProject(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AllProjectsFull is the admin view: every project, fully nested.
func (s *Store) AllProjectsFull(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, title, description, specifications, coalesce(created_by,''), media, created_at, updated_at
		 from projects order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Specifications, &p.CreatedBy,
			jsonDest(&p.Media), &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.fillProject(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetProjectFull loads one project with boards, lists, cards, members,
// labels and board-embedded activities. This is the poll payload.
func (s *Store) GetProjectFull(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`select id, title, description, specifications, coalesce(created_by,''), media, created_at, updated_at
		 from projects where id=$1`, id).
		Scan(&p.ID, &p.Title, &p.Description, &p.Specifications, &p.CreatedBy,
			jsonDest(&p.Media), &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	if err := s.fillProject(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Store) fillProject(ctx context.Context, p *Project) error {
	if p.Media == nil {
		p.Media = []MediaFile{}
	}
	members, err := s.projectMembers(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Members = members
	labels, err := s.projectLabels(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Labels = labels

	rows, err := s.db.QueryContext(ctx,
		`select id, project_id, title, description, created_at, updated_at
		 from boards where project_id=$1 order by created_at, id`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	boards := []Board{}
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return err
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range boards {
		lists, err := s.listsByBoard(ctx, boards[i].ID)
		if err != nil {
			return err
		}
		boards[i].Lists = lists
		activities, err := s.boardActivities(ctx, boards[i].ID, 100)
		if err != nil {
			return err
		}
		boards[i].Activities = activities
	}
	p.Boards = boards
	return nil
}

// --- labels ---

func (s *Store) CreateLabel(ctx context.Context, projectID, name, color string) (Label, error) {
	var l Label
	err := s.db.QueryRowContext(ctx,
		`insert into labels(id, project_id, name, color) values($1,$2,$3,$4)
		 returning id, project_id, name, color`,
		uuid.NewString(), projectID, name, color).
		Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color)
	return l, err
}

func (s *Store) UpdateLabel(ctx context.Context, id string, name, color *string) (Label, error) {
	set := []string{}
	args := []any{}
	idx := 1
	if name != nil {
		set = append(set, fmt.Sprintf("name=$%d", idx))
		args = append(args, *name)
		idx++
	}
	if color != nil {
		set = append(set, fmt.Sprintf("color=$%d", idx))
		args = append(args, *color)
		idx++
	}
	if len(set) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("update labels set %s where id=$%d", joinComma(set), idx), args...)
		if err != nil {
			return Label{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Label{}, ErrNotFound
		}
	}
	var l Label
	err := s.db.QueryRowContext(ctx,
		`select id, project_id, name, color from labels where id=$1`, id).
		Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return Label{}, ErrNotFound
	}
	return l, err
}

func (s *Store) DeleteLabel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from labels where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ProjectIDByLabel(ctx context.Context, labelID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select project_id from labels where id=$1`, labelID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// --- media ---

func (s *Store) AppendProjectMedia(ctx context.Context, projectID string, m MediaFile) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update projects set media = media || $1::jsonb, updated_at=now() where id=$2`, blob, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendCardAttachment(ctx context.Context, cardID string, m MediaFile) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update cards set attachments = attachments || $1::jsonb, updated_at=now() where id=$2`, blob, cardID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- boards & lists ---

func (s *Store) CreateBoard(ctx context.Context, projectID, title, description string) (Board, error) {
	var b Board
	err := s.db.QueryRowContext(ctx,
		`insert into boards(id, project_id, title, description) values($1,$2,$3,$4)
		 returning id, project_id, title, description, created_at, updated_at`,
		uuid.NewString(), projectID, title, description).
		Scan(&b.ID, &b.ProjectID, &b.Title, &b.Description, &b.CreatedAt, &b.UpdatedAt)
	b.Lists = []List{}
	b.Activities = []Activity{}
	return b, err
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from boards where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ProjectIDByBoard(ctx context.Context, boardID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select project_id from boards where id=$1`, boardID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *Store) listsByBoard(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, board_id, title, pos from lists where board_id=$1 order by pos, id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lists := []List{}
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range lists {
		cards, err := s.cardsByList(ctx, lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Cards = cards
	}
	return lists, nil
}

func (s *Store) CreateList(ctx context.Context, boardID, title string, position *int64) (List, error) {
	var next int64 = 1000
	_ = s.db.QueryRowContext(ctx,
		`select coalesce(max(pos),0)+1000 from lists where board_id=$1`, boardID).Scan(&next)
	if position != nil {
		next = *position
	}
	var l List
	err := s.db.QueryRowContext(ctx,
		`insert into lists(id, board_id, title, pos) values($1,$2,$3,$4)
		 returning id, board_id, title, pos`,
		uuid.NewString(), boardID, title, next).
		Scan(&l.ID, &l.BoardID, &l.Title, &l.Position)
	l.Cards = []Card{}
	return l, err
}

func (s *Store) UpdateList(ctx context.Context, id string, title *string, pos *int64) (List, error) {
	set := []string{}
	args := []any{}
	idx := 1
	if title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *title)
		idx++
	}
	if pos != nil {
		set = append(set, fmt.Sprintf("pos=$%d", idx))
		args = append(args, *pos)
		idx++
	}
	if len(set) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("update lists set %s where id=$%d", joinComma(set), idx), args...)
		if err != nil {
			return List{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return List{}, ErrNotFound
		}
	}
	var l List
	err := s.db.QueryRowContext(ctx,
		`select id, board_id, title, pos from lists where id=$1`, id).
		Scan(&l.ID, &l.BoardID, &l.Title, &l.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return List{}, ErrNotFound
	}
	if err != nil {
		return List{}, err
	}
	cards, err := s.cardsByList(ctx, l.ID)
	if err != nil {
		return List{}, err
	}
	l.Cards = cards
	return l, nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from lists where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) BoardIDByList(ctx context.Context, listID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select board_id from lists where id=$1`, listID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// --- cards ---

func (s *Store) cardsByList(ctx context.Context, listID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, list_id, title, description, pos, coalesce(priority,''), due_date,
		        attachments, coalesce(created_by,''), created_at, updated_at
		 from cards where list_id=$1 order by pos, id`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []Card{}
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.Priority,
			&c.DueDate, jsonDest(&c.Attachments), &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range cards {
		if err := s.fillCard(ctx, &cards[i]); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func (s *Store) fillCard(ctx context.Context, c *Card) error {
	if c.Attachments == nil {
		c.Attachments = []MediaFile{}
	}
	assignees, err := s.cardAssignees(ctx, c.ID)
	if err != nil {
		return err
	}
	c.AssignedTo = assignees
	labels, err := s.cardLabels(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Labels = labels
	comments, err := s.commentsByCard(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Comments = comments
	return nil
}

func (s *Store) cardAssignees(ctx context.Context, cardID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select u.id, u.email, u.username, u.first_name, u.last_name, coalesce(u.avatar,''), u.role, u.created_at
		 from card_assignees a join users u on u.id=a.user_id
		 where a.card_id=$1 order by u.username`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) cardLabels(ctx context.Context, cardID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`select l.id, l.project_id, l.name, l.color
		 from card_labels cl join labels l on l.id=cl.label_id
		 where cl.card_id=$1 order by l.name, l.id`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Label{}
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) commentsByCard(ctx context.Context, cardID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select c.id, c.card_id, c.user_id, c.content, c.created_at, c.updated_at,
		        u.id, u.email, u.username, u.first_name, u.last_name, coalesce(u.avatar,''), u.role, u.created_at
		 from comments c join users u on u.id=c.user_id
		 where c.card_id=$1 order by c.created_at, c.id`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		var c Comment
		var u User
		if err := rows.Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt,
			&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		c.User = &u
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCard(ctx context.Context, listID, title, description, priority string, dueDate *time.Time, createdBy string) (Card, error) {
	var next int64 = 1000
	_ = s.db.QueryRowContext(ctx,
		`select coalesce(max(pos),0)+1000 from cards where list_id=$1`, listID).Scan(&next)
	var c Card
	err := s.db.QueryRowContext(ctx,
		`insert into cards(id, list_id, title, description, pos, priority, due_date, created_by)
		 values($1,$2,$3,$4,$5,nullif($6,''),$7,$8)
		 returning id, list_id, title, description, pos, coalesce(priority,''), due_date,
		           attachments, coalesce(created_by,''), created_at, updated_at`,
		uuid.NewString(), listID, title, description, next, priority, dueDate, createdBy).
		Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.Priority,
			&c.DueDate, jsonDest(&c.Attachments), &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	if err := s.fillCard(ctx, &c); err != nil {
		return Card{}, err
	}
	return c, nil
}

// GetCardFull returns the card with assignees, labels, comments and the
// resolved parent board id.
func (s *Store) GetCardFull(ctx context.Context, id string) (Card, error) {
	var c Card
	var boardID string
	err := s.db.QueryRowContext(ctx,
		`select c.id, c.list_id, c.title, c.description, c.pos, coalesce(c.priority,''), c.due_date,
		        c.attachments, coalesce(c.created_by,''), c.created_at, c.updated_at, l.board_id
		 from cards c join lists l on l.id=c.list_id where c.id=$1`, id).
		Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.Priority,
			&c.DueDate, jsonDest(&c.Attachments), &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	if err != nil {
		return Card{}, err
	}
	c.List = &ListRef{BoardID: boardID}
	if err := s.fillCard(ctx, &c); err != nil {
		return Card{}, err
	}
	return c, nil
}

type CardUpdate struct {
	Title        *string
	Description  *string
	Priority     *string
	DueDate      *time.Time
	ClearDueDate bool
	Position     *int64
	ListID       *string
	AssigneeIDs  []string
	LabelIDs     []string
}

func (s *Store) UpdateCard(ctx context.Context, id string, up CardUpdate) error {
	set := []string{"updated_at=now()"}
	args := []any{}
	idx := 1
	if up.Title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *up.Title)
		idx++
	}
	if up.Description != nil {
		set = append(set, fmt.Sprintf("description=$%d", idx))
		args = append(args, *up.Description)
		idx++
	}
	if up.Priority != nil {
		set = append(set, fmt.Sprintf("priority=nullif($%d,'')", idx))
		args = append(args, *up.Priority)
		idx++
	}
	if up.DueDate != nil {
		set = append(set, fmt.Sprintf("due_date=$%d", idx))
		args = append(args, *up.DueDate)
		idx++
	} else if up.ClearDueDate {
		set = append(set, "due_date=null")
	}
	if up.Position != nil {
		set = append(set, fmt.Sprintf("pos=$%d", idx))
		args = append(args, *up.Position)
		idx++
	}
	if up.ListID != nil {
		set = append(set, fmt.Sprintf("list_id=$%d", idx))
		args = append(args, *up.ListID)
		idx++
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("update cards set %s where id=$%d", joinComma(set), idx), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if up.AssigneeIDs != nil {
		if err := s.setCardAssignees(ctx, id, up.AssigneeIDs); err != nil {
			return err
		}
	}
	if up.LabelIDs != nil {
		if err := s.setCardLabels(ctx, id, up.LabelIDs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) setCardAssignees(ctx context.Context, cardID string, userIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from card_assignees where card_id=$1`, cardID); err != nil {
		return err
	}
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into card_assignees(card_id, user_id) values($1,$2) on conflict do nothing`,
			cardID, uid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) setCardLabels(ctx context.Context, cardID string, labelIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from card_labels where card_id=$1`, cardID); err != nil {
		return err
	}
	for _, lid := range labelIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into card_labels(card_id, label_id) values($1,$2) on conflict do nothing`,
			cardID, lid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AssignCard(ctx context.Context, cardID, userID string, assign bool) error {
	if assign {
		_, err := s.db.ExecContext(ctx,
			`insert into card_assignees(card_id, user_id) values($1,$2) on conflict do nothing`,
			cardID, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`delete from card_assignees where card_id=$1 and user_id=$2`, cardID, userID)
	return err
}

func (s *Store) ToggleCardLabel(ctx context.Context, cardID, labelID string, add bool) error {
	if add {
		_, err := s.db.ExecContext(ctx,
			`insert into card_labels(card_id, label_id) values($1,$2) on conflict do nothing`,
			cardID, labelID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`delete from card_labels where card_id=$1 and label_id=$2`, cardID, labelID)
	return err
}

func (s *Store) DeleteCard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from cards where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) BoardAndListByCard(ctx context.Context, cardID string) (string, string, error) {
	var boardID, listID string
	err := s.db.QueryRowContext(ctx,
		`select l.board_id, c.list_id from cards c join lists l on l.id=c.list_id where c.id=$1`, cardID).
		Scan(&boardID, &listID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return boardID, listID, err
}

func (s *Store) ProjectIDByCard(ctx context.Context, cardID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`select b.project_id from cards c
		 join lists l on l.id=c.list_id join boards b on b.id=l.board_id
		 where c.id=$1`, cardID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *Store) ProjectIDByList(ctx context.Context, listID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`select b.project_id from lists l join boards b on b.id=l.board_id where l.id=$1`, listID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// MoveCard assigns a gap-based position between the card's new neighbors
// in the target list; when the gap is exhausted the list is renumbered and
// the move retried once.
func (s *Store) MoveCard(ctx context.Context, cardID, targetList string, newIndex int) error {
	attempts := 0
retry:
	var listID string
	if err := s.db.QueryRowContext(ctx, `select list_id from cards where id=$1`, cardID).Scan(&listID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if targetList != listID {
		if _, err = tx.ExecContext(ctx, `update cards set list_id=$1 where id=$2`, targetList, cardID); err != nil {
			_ = tx.Rollback()
			return err
		}
		listID = targetList
	}

	rows, err := tx.QueryContext(ctx,
		`select pos from cards where list_id=$1 and id<>$2 order by pos, id`, listID, cardID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer rows.Close()
	var positions []int64
	for rows.Next() {
		var p int64
		if err = rows.Scan(&p); err != nil {
			_ = tx.Rollback()
			return err
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		_ = tx.Rollback()
		return err
	}

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(positions) {
		newIndex = len(positions)
	}

	var beforePos, afterPos *int64
	if newIndex > 0 {
		v := positions[newIndex-1]
		beforePos = &v
	}
	if newIndex < len(positions) {
		v := positions[newIndex]
		afterPos = &v
	}

	var newPos int64
	switch {
	case beforePos == nil && afterPos == nil:
		newPos = 1000
	case beforePos != nil && afterPos == nil:
		newPos = *beforePos + 1000
	case beforePos == nil && afterPos != nil:
		newPos = *afterPos - 500
		if newPos <= 0 {
			newPos = 1
		}
	default:
		gap := (*afterPos - *beforePos)
		if gap <= 1 {
			if err = renumberPositions(ctx, tx, listID); err != nil {
				_ = tx.Rollback()
				return err
			}
			if err = tx.Commit(); err != nil {
				return err
			}
			attempts++
			if attempts < 2 {
				goto retry
			}
			return errors.New("move failed after renumber")
		}
		newPos = *beforePos + gap/2
	}

	if _, err = tx.ExecContext(ctx, `update cards set pos=$1, updated_at=now() where id=$2`, newPos, cardID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func renumberPositions(ctx context.Context, tx *sql.Tx, listID string) error {
	rows, err := tx.QueryContext(ctx, `select id from cards where list_id=$1 order by pos, id`, listID)
	if err != nil {
		return err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	pos := int64(1000)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `update cards set pos=$1 where id=$2`, pos, id); err != nil {
			return err
		}
		pos += 1000
	}
	return nil
}

// --- comments ---

func (s *Store) CreateComment(ctx context.Context, cardID, userID, content string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx,
		`insert into comments(id, card_id, user_id, content) values($1,$2,$3,$4)
		 returning id, card_id, user_id, content, created_at, updated_at`,
		uuid.NewString(), cardID, userID, content).
		Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return Comment{}, err
	}
	c.User = &u
	return c, nil
}

// --- activities ---

func (s *Store) LogActivity(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into activities(id, type, user_id, card_id, list_id, board_id, description)
		 values($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),$7)`,
		a.ID, a.Type, a.UserID, a.CardID, a.ListID, a.BoardID, a.Description)
	return err
}

func (s *Store) boardActivities(ctx context.Context, boardID string, limit int) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, type, user_id, coalesce(card_id,''), coalesce(list_id,''), coalesce(board_id,''), description, created_at
		 from activities where board_id=$1 order by created_at desc, id limit $2`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Type, &a.UserID, &a.CardID, &a.ListID, &a.BoardID, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- helpers ---

func joinComma(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += ", " + parts[i]
	}
	return out
}

// jsonDest scans a jsonb column into v.
type jsonScanner struct{ v any }

func jsonDest(v any) *jsonScanner { return &jsonScanner{v: v} }

func (j *jsonScanner) Scan(src any) error {
	switch b := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(b, j.v)
	case string:
		return json.Unmarshal([]byte(b), j.v)
	}
	return fmt.Errorf("unsupported jsonb source %T", src)
}

const schema = `
create table if not exists users(
    id text primary key,
    email text unique not null,
    username text unique not null,
    password_hash text not null default '',
    first_name text not null default '',
    last_name text not null default '',
    avatar text,
    role text not null default 'MEMBER',
    created_at timestamptz not null default now()
);

create table if not exists sessions(
    id text primary key,
    user_id text not null references users(id) on delete cascade,
    token text unique not null,
    created_at timestamptz not null default now(),
    expires_at timestamptz not null
);

create table if not exists projects(
    id text primary key,
    title text not null check (length(title) > 0),
    description text not null default '',
    specifications text not null default '',
    created_by text references users(id) on delete set null,
    media jsonb not null default '[]',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists project_members(
    project_id text not null references projects(id) on delete cascade,
    user_id text not null references users(id) on delete cascade,
    role text not null default 'MEMBER',
    primary key(project_id, user_id)
);

create table if not exists labels(
    id text primary key,
    project_id text not null references projects(id) on delete cascade,
    name text not null check (length(name) > 0),
    color text not null default ''
);
create index if not exists labels_project_idx on labels(project_id);

create table if not exists boards(
    id text primary key,
    project_id text not null references projects(id) on delete cascade,
    title text not null check (length(title) > 0),
    description text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists boards_project_idx on boards(project_id);

create table if not exists lists(
    id text primary key,
    board_id text not null references boards(id) on delete cascade,
    title text not null check (length(title) > 0),
    pos bigint not null default 1000
);
create index if not exists lists_board_idx on lists(board_id);

create table if not exists cards(
    id text primary key,
    list_id text not null references lists(id) on delete cascade,
    title text not null check (length(title) > 0),
    description text not null default '',
    pos bigint not null default 1000,
    priority text check (priority in ('LOW','MEDIUM','HIGH','URGENT')),
    due_date timestamptz,
    attachments jsonb not null default '[]',
    created_by text references users(id) on delete set null,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists cards_list_idx on cards(list_id);

create table if not exists card_assignees(
    card_id text not null references cards(id) on delete cascade,
    user_id text not null references users(id) on delete cascade,
    primary key(card_id, user_id)
);

create table if not exists card_labels(
    card_id text not null references cards(id) on delete cascade,
    label_id text not null references labels(id) on delete cascade,
    primary key(card_id, label_id)
);

create table if not exists comments(
    id text primary key,
    card_id text not null references cards(id) on delete cascade,
    user_id text not null references users(id) on delete cascade,
    content text not null check (length(content) > 0),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists comments_card_idx on comments(card_id);

create table if not exists activities(
    id text primary key,
    type text not null,
    user_id text not null,
    card_id text,
    list_id text,
    board_id text references boards(id) on delete cascade,
    description text not null default '',
    created_at timestamptz not null default now()
);
create index if not exists activities_board_idx on activities(board_id, created_at desc);
`
