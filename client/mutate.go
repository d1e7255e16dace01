package client

import "time"

// Local mutation engine: every function takes the current snapshot and
// returns a new one with the targeted node and its ancestors replaced.
// All functions are total: when the targeted project/board/list/card is
// absent the snapshot is returned unchanged, since stale targets are
// expected between polls.

func mapCurrentProject(st State, fn func(Project) Project) State {
	if st.CurrentProjectID == "" {
		return st
	}
	projects := make([]Project, len(st.Projects))
	copy(projects, st.Projects)
	for i, p := range projects {
		if p.ID == st.CurrentProjectID {
			projects[i] = fn(p)
		}
	}
	st.Projects = projects
	return st
}

func mapCurrentBoard(st State, fn func(Board) Board) State {
	return mapCurrentProject(st, func(p Project) Project {
		boards := make([]Board, len(p.Boards))
		copy(boards, p.Boards)
		for i, b := range boards {
			if b.ID == st.CurrentBoardID {
				boards[i] = fn(b)
			}
		}
		p.Boards = boards
		return p
	})
}

// mapCard rewrites the card with the given id wherever it sits on the
// current board.
func mapCard(st State, cardID string, fn func(Card) Card) State {
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, len(b.Lists))
		copy(lists, b.Lists)
		for i, l := range lists {
			cards := make([]Card, len(l.Cards))
			copy(cards, l.Cards)
			for j, c := range cards {
				if c.ID == cardID {
					cards[j] = fn(c)
				}
			}
			lists[i].Cards = cards
		}
		b.Lists = lists
		return b
	})
}

func findProject(st State, projectID string) (Project, bool) {
	for _, p := range st.Projects {
		if p.ID == projectID {
			return p, true
		}
	}
	return Project{}, false
}

func findCard(st State, cardID string) (Card, bool) {
	p, ok := findProject(st, st.CurrentProjectID)
	if !ok {
		return Card{}, false
	}
	for _, b := range p.Boards {
		if b.ID != st.CurrentBoardID {
			continue
		}
		for _, l := range b.Lists {
			for _, c := range l.Cards {
				if c.ID == cardID {
					return c, true
				}
			}
		}
	}
	return Card{}, false
}

func addProject(st State, p Project) State {
	projects := make([]Project, len(st.Projects), len(st.Projects)+1)
	copy(projects, st.Projects)
	st.Projects = append(projects, p)
	st.CurrentProjectID = p.ID
	return st
}

// replaceProject overwrites the whole project subtree with the server's
// version; this is a record-level overwrite, never a field merge.
func replaceProject(st State, p Project) State {
	projects := make([]Project, len(st.Projects))
	copy(projects, st.Projects)
	for i, old := range projects {
		if old.ID == p.ID {
			projects[i] = p
		}
	}
	st.Projects = projects
	return st
}

func addBoard(st State, b Board) State {
	st = mapCurrentProject(st, func(p Project) Project {
		boards := make([]Board, len(p.Boards), len(p.Boards)+1)
		copy(boards, p.Boards)
		p.Boards = append(boards, b)
		return p
	})
	st.CurrentBoardID = b.ID
	return st
}

func addList(st State, l List) State {
	if l.Cards == nil {
		l.Cards = []Card{}
	}
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, len(b.Lists), len(b.Lists)+1)
		copy(lists, b.Lists)
		b.Lists = append(lists, l)
		return b
	})
}

type ListPatch struct {
	Title    *string
	Position *int
}

func updateList(st State, listID string, patch ListPatch) State {
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, len(b.Lists))
		copy(lists, b.Lists)
		for i, l := range lists {
			if l.ID != listID {
				continue
			}
			if patch.Title != nil {
				l.Title = *patch.Title
			}
			if patch.Position != nil {
				l.Position = *patch.Position
			}
			lists[i] = l
		}
		b.Lists = lists
		return b
	})
}

func deleteList(st State, listID string) State {
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, 0, len(b.Lists))
		for _, l := range b.Lists {
			if l.ID != listID {
				lists = append(lists, l)
			}
		}
		b.Lists = lists
		return b
	})
}

// addCard appends the card to its list (c.ListID) on the current board.
func addCard(st State, c Card) State {
	if c.Comments == nil {
		c.Comments = []Comment{}
	}
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, len(b.Lists))
		copy(lists, b.Lists)
		for i, l := range lists {
			if l.ID != c.ListID {
				continue
			}
			cards := make([]Card, len(l.Cards), len(l.Cards)+1)
			copy(cards, l.Cards)
			lists[i].Cards = append(cards, c)
		}
		b.Lists = lists
		return b
	})
}

// CardPatch carries the card fields a mutation touches; nil fields are
// left alone. ClearDueDate removes the due date explicitly.
type CardPatch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
	Position     *int
	ListID       *string
}

func applyCardPatch(c Card, patch CardPatch) Card {
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		due := *patch.DueDate
		c.DueDate = &due
	} else if patch.ClearDueDate {
		c.DueDate = nil
	}
	if patch.Position != nil {
		c.Position = *patch.Position
	}
	if patch.ListID != nil {
		c.ListID = *patch.ListID
	}
	c.UpdatedAt = time.Now()
	return c
}

// invertCardPatch builds the patch that restores exactly the fields the
// forward patch touched, from the captured pre-image.
func invertCardPatch(patch CardPatch, pre Card) CardPatch {
	inv := CardPatch{}
	if patch.Title != nil {
		t := pre.Title
		inv.Title = &t
	}
	if patch.Description != nil {
		d := pre.Description
		inv.Description = &d
	}
	if patch.Priority != nil {
		p := pre.Priority
		inv.Priority = &p
	}
	if patch.DueDate != nil || patch.ClearDueDate {
		if pre.DueDate != nil {
			due := *pre.DueDate
			inv.DueDate = &due
		} else {
			inv.ClearDueDate = true
		}
	}
	if patch.Position != nil {
		pos := pre.Position
		inv.Position = &pos
	}
	if patch.ListID != nil {
		id := pre.ListID
		inv.ListID = &id
	}
	return inv
}

func updateCard(st State, cardID string, patch CardPatch) State {
	return mapCard(st, cardID, func(c Card) Card {
		return applyCardPatch(c, patch)
	})
}

// reconcileCard overwrites the locally-optimistic fields with the
// authoritative values from the server response, field-for-field.
func reconcileCard(st State, cardID string, server Card) State {
	return mapCard(st, cardID, func(c Card) Card {
		c.Title = server.Title
		c.Description = server.Description
		c.Priority = server.Priority
		c.DueDate = server.DueDate
		c.Position = server.Position
		if server.AssignedTo != nil {
			c.AssignedTo = server.AssignedTo
		} else {
			c.AssignedTo = []User{}
		}
		if server.Labels != nil {
			c.Labels = server.Labels
		} else {
			c.Labels = []string{}
		}
		c.UpdatedAt = server.UpdatedAt
		return c
	})
}

// replaceCard swaps the whole card record in place for the server's copy
// (used after a move, where the response is the authoritative card).
func replaceCard(st State, cardID string, server Card) State {
	return mapCard(st, cardID, func(Card) Card {
		return server
	})
}

func deleteCard(st State, cardID string) State {
	return mapCurrentBoard(st, func(b Board) Board {
		lists := make([]List, len(b.Lists))
		copy(lists, b.Lists)
		for i, l := range lists {
			cards := make([]Card, 0, len(l.Cards))
			for _, c := range l.Cards {
				if c.ID != cardID {
					cards = append(cards, c)
				}
			}
			lists[i].Cards = cards
		}
		b.Lists = lists
		return b
	})
}

// moveCard removes the card from its source list and inserts it into the
// target list at the given index (clamped), setting ListID immediately.
// Source and target may be the same list. Sibling positions are not
// renumbered locally; the next poll refreshes authoritative positions.
func moveCard(st State, cardID, targetListID string, newIndex int) State {
	return mapCurrentBoard(st, func(b Board) Board {
		targetExists := false
		for _, l := range b.Lists {
			if l.ID == targetListID {
				targetExists = true
			}
		}
		if !targetExists {
			return b
		}
		var moved *Card
		lists := make([]List, len(b.Lists))
		copy(lists, b.Lists)
		for i, l := range lists {
			for j, c := range l.Cards {
				if c.ID == cardID {
					cc := c
					moved = &cc
					cards := make([]Card, 0, len(l.Cards)-1)
					cards = append(cards, l.Cards[:j]...)
					cards = append(cards, l.Cards[j+1:]...)
					lists[i].Cards = cards
				}
			}
		}
		if moved == nil {
			return b
		}
		moved.ListID = targetListID
		for i, l := range lists {
			if l.ID != targetListID {
				continue
			}
			idx := newIndex
			if idx < 0 {
				idx = 0
			}
			if idx > len(l.Cards) {
				idx = len(l.Cards)
			}
			cards := make([]Card, 0, len(l.Cards)+1)
			cards = append(cards, l.Cards[:idx]...)
			cards = append(cards, *moved)
			cards = append(cards, l.Cards[idx:]...)
			lists[i].Cards = cards
		}
		b.Lists = lists
		return b
	})
}

func addComment(st State, cardID string, cm Comment) State {
	return mapCard(st, cardID, func(c Card) Card {
		comments := make([]Comment, len(c.Comments), len(c.Comments)+1)
		copy(comments, c.Comments)
		c.Comments = append(comments, cm)
		return c
	})
}

func addLabel(st State, l Label) State {
	return mapCurrentProject(st, func(p Project) Project {
		labels := make([]Label, len(p.Labels), len(p.Labels)+1)
		copy(labels, p.Labels)
		p.Labels = append(labels, l)
		return p
	})
}

func addMember(st State, u User) State {
	return mapCurrentProject(st, func(p Project) Project {
		members := make([]User, len(p.Members), len(p.Members)+1)
		copy(members, p.Members)
		p.Members = append(members, u)
		return p
	})
}

// assignMember is an idempotent set-add on the card's assignee list.
func assignMember(st State, cardID, userID string, member User) State {
	return mapCard(st, cardID, func(c Card) Card {
		for _, u := range c.AssignedTo {
			if u.ID == userID {
				return c
			}
		}
		assigned := make([]User, len(c.AssignedTo), len(c.AssignedTo)+1)
		copy(assigned, c.AssignedTo)
		c.AssignedTo = append(assigned, member)
		return c
	})
}

func unassignMember(st State, cardID, userID string) State {
	return mapCard(st, cardID, func(c Card) Card {
		assigned := make([]User, 0, len(c.AssignedTo))
		for _, u := range c.AssignedTo {
			if u.ID != userID {
				assigned = append(assigned, u)
			}
		}
		c.AssignedTo = assigned
		return c
	})
}

func setAssignees(st State, cardID string, users []User) State {
	if users == nil {
		users = []User{}
	}
	return mapCard(st, cardID, func(c Card) Card {
		c.AssignedTo = users
		return c
	})
}

func setCardLabels(st State, cardID string, labelIDs []string) State {
	if labelIDs == nil {
		labelIDs = []string{}
	}
	return mapCard(st, cardID, func(c Card) Card {
		c.Labels = labelIDs
		return c
	})
}

func toggleCardLabel(st State, cardID, labelID string, add bool) State {
	return mapCard(st, cardID, func(c Card) Card {
		if add {
			for _, id := range c.Labels {
				if id == labelID {
					return c
				}
			}
			labels := make([]string, len(c.Labels), len(c.Labels)+1)
			copy(labels, c.Labels)
			c.Labels = append(labels, labelID)
			return c
		}
		labels := make([]string, 0, len(c.Labels))
		for _, id := range c.Labels {
			if id != labelID {
				labels = append(labels, id)
			}
		}
		c.Labels = labels
		return c
	})
}

// ProjectPatch mirrors the PATCH /projects/{id} surface.
type ProjectPatch struct {
	Title          *string
	Description    *string
	Specifications *string
}

func updateProject(st State, projectID string, patch ProjectPatch) State {
	projects := make([]Project, len(st.Projects))
	copy(projects, st.Projects)
	for i, p := range projects {
		if p.ID != projectID {
			continue
		}
		if patch.Title != nil {
			p.Title = *patch.Title
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Specifications != nil {
			p.Specifications = *patch.Specifications
		}
		projects[i] = p
	}
	st.Projects = projects
	return st
}

func invertProjectPatch(patch ProjectPatch, pre Project) ProjectPatch {
	inv := ProjectPatch{}
	if patch.Title != nil {
		t := pre.Title
		inv.Title = &t
	}
	if patch.Description != nil {
		d := pre.Description
		inv.Description = &d
	}
	if patch.Specifications != nil {
		sp := pre.Specifications
		inv.Specifications = &sp
	}
	return inv
}
