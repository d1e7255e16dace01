package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Coordinator: each action wraps one remote operation. The local transform
// is applied synchronously before the network call; on success the
// authoritative response overwrites the optimistic values and one activity
// entry is appended; on failure the captured pre-image is re-applied.
// Rollback restores exactly the pre-attempt value of the mutated fields,
// so retrying a failed action never leaves state worse than before either
// attempt and a success never yields two activity entries.

// ErrValidation marks failures rejected client-side before any network
// call is made.
var ErrValidation = errors.New("validation failed")

// command pairs a forward transform with an inverse that is a pure
// function of the captured pre-image snapshot (no hidden closure state),
// so rollback is unit-testable in isolation.
type command struct {
	apply  func(State) State
	invert func(st State, pre State) State
}

// run executes the optimistic cycle around one remote call. The remote
// func returns the reconciliation transform to apply on success.
func (s *Store) run(ctx context.Context, cmd command, remote func(ctx context.Context) (func(State) State, error)) error {
	pre := s.State()
	s.apply(cmd.apply)
	reconcile, err := remote(ctx)
	if err != nil {
		s.apply(func(st State) State { return cmd.invert(st, pre) })
		return err
	}
	s.apply(reconcile)
	return nil
}

// CreateList persists a new list on the current board, then installs the
// server's copy. Creation is apply-on-success: the backend owns the id, so
// there is nothing to roll back.
func (s *Store) CreateList(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: list title is required", ErrValidation)
	}
	st := s.State()
	boardID := st.CurrentBoardID
	if boardID == "" {
		return fmt.Errorf("%w: no board selected", ErrValidation)
	}
	position := 0
	if p, ok := findProject(st, st.CurrentProjectID); ok {
		for _, b := range p.Boards {
			if b.ID == boardID {
				position = len(b.Lists)
			}
		}
	}
	list, err := s.remote.CreateList(ctx, title, boardID, position)
	if err != nil {
		return err
	}
	s.apply(func(st State) State {
		st = addList(st, list)
		return pushActivity(st, newActivity(ActivityCardCreated, st.CurrentUser.ID, "", list.ID,
			st.CurrentBoardID, fmt.Sprintf("created list %q", list.Title)))
	})
	return nil
}

// CreateCard persists a new card, installs the server's copy and records a
// CARD_CREATED entry.
func (s *Store) CreateCard(ctx context.Context, draft CardDraft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return fmt.Errorf("%w: card title is required", ErrValidation)
	}
	if draft.ListID == "" {
		return fmt.Errorf("%w: card list is required", ErrValidation)
	}
	card, err := s.remote.CreateCard(ctx, draft)
	if err != nil {
		return err
	}
	s.apply(func(st State) State {
		st = addCard(st, card)
		return pushActivity(st, newActivity(ActivityCardCreated, st.CurrentUser.ID, card.ID, card.ListID,
			st.CurrentBoardID, fmt.Sprintf("created card %q", card.Title)))
	})
	return nil
}

// UpdateCardAsync optimistically applies the patch, persists it, and
// reconciles the card field-for-field from the response (the server
// normalizes priority casing and returns canonical assignee/label lists).
func (s *Store) UpdateCardAsync(ctx context.Context, cardID string, patch CardPatch) error {
	cmd := command{
		apply: func(st State) State { return updateCard(st, cardID, patch) },
		invert: func(st State, pre State) State {
			preCard, ok := findCard(pre, cardID)
			if !ok {
				return st
			}
			return updateCard(st, cardID, invertCardPatch(patch, preCard))
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		card, err := s.remote.UpdateCard(ctx, cardID, patch)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			st = reconcileCard(st, cardID, card)
			return pushActivity(st, newActivity(ActivityCardUpdated, st.CurrentUser.ID, cardID, "",
				st.CurrentBoardID, fmt.Sprintf("updated card %q", card.Title)))
		}, nil
	})
}

// MoveCardAsync moves the card locally (instant drag feedback), persists
// the move, and swaps in the server's card. On failure the card returns to
// its pre-attempt list and index.
func (s *Store) MoveCardAsync(ctx context.Context, cardID, targetListID string, newIndex int) error {
	cmd := command{
		apply: func(st State) State { return moveCard(st, cardID, targetListID, newIndex) },
		invert: func(st State, pre State) State {
			preCard, ok := findCard(pre, cardID)
			if !ok {
				return st
			}
			return moveCard(st, cardID, preCard.ListID, cardIndexIn(pre, preCard.ListID, cardID))
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		card, err := s.remote.MoveCard(ctx, cardID, targetListID, newIndex)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			st = replaceCard(st, cardID, card)
			return pushActivity(st, newActivity(ActivityCardMoved, st.CurrentUser.ID, cardID, targetListID,
				st.CurrentBoardID, fmt.Sprintf("moved card %q", card.Title)))
		}, nil
	})
}

// cardIndexIn finds the card's index within the given list on the current
// board of the snapshot.
func cardIndexIn(st State, listID, cardID string) int {
	p, ok := findProject(st, st.CurrentProjectID)
	if !ok {
		return 0
	}
	for _, b := range p.Boards {
		if b.ID != st.CurrentBoardID {
			continue
		}
		for _, l := range b.Lists {
			if l.ID != listID {
				continue
			}
			for i, c := range l.Cards {
				if c.ID == cardID {
					return i
				}
			}
		}
	}
	return 0
}

// AddCommentAsync persists the comment and appends the server's copy.
// Comments are immutable, so there is no optimistic placeholder to
// reconcile or roll back.
func (s *Store) AddCommentAsync(ctx context.Context, cardID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: comment content is required", ErrValidation)
	}
	cm, err := s.remote.CreateComment(ctx, cardID, content)
	if err != nil {
		return err
	}
	s.apply(func(st State) State {
		st = addComment(st, cardID, cm)
		return pushActivity(st, newActivity(ActivityCommentAdded, st.CurrentUser.ID, cardID, "",
			st.CurrentBoardID, "added a comment"))
	})
	return nil
}

// AssignMemberAsync optimistically adds the member to the card, then
// installs the server's canonical assignee list.
func (s *Store) AssignMemberAsync(ctx context.Context, cardID, userID string) error {
	member := s.memberByID(userID)
	cmd := command{
		apply: func(st State) State { return assignMember(st, cardID, userID, member) },
		invert: func(st State, pre State) State {
			preCard, ok := findCard(pre, cardID)
			if !ok {
				return st
			}
			return setAssignees(st, cardID, preCard.AssignedTo)
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		card, err := s.remote.AssignCard(ctx, cardID, userID, true)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			st = setAssignees(st, cardID, card.AssignedTo)
			return pushActivity(st, newActivity(ActivityCardUpdated, st.CurrentUser.ID, cardID, "",
				st.CurrentBoardID, "assigned member to card"))
		}, nil
	})
}

// UnassignMemberAsync mirrors AssignMemberAsync with the inverse edge.
func (s *Store) UnassignMemberAsync(ctx context.Context, cardID, userID string) error {
	cmd := command{
		apply: func(st State) State { return unassignMember(st, cardID, userID) },
		invert: func(st State, pre State) State {
			preCard, ok := findCard(pre, cardID)
			if !ok {
				return st
			}
			return setAssignees(st, cardID, preCard.AssignedTo)
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		card, err := s.remote.AssignCard(ctx, cardID, userID, false)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			st = setAssignees(st, cardID, card.AssignedTo)
			return pushActivity(st, newActivity(ActivityCardUpdated, st.CurrentUser.ID, cardID, "",
				st.CurrentBoardID, "unassigned member from card"))
		}, nil
	})
}

func (s *Store) memberByID(userID string) User {
	st := s.State()
	if p, ok := findProject(st, st.CurrentProjectID); ok {
		for _, m := range p.Members {
			if m.ID == userID {
				return m
			}
		}
	}
	return User{ID: userID}
}

// ToggleLabelAsync adds or removes one label reference on the card, with
// the server's canonical label id list as the reconciled value.
func (s *Store) ToggleLabelAsync(ctx context.Context, cardID, labelID string, add bool) error {
	cmd := command{
		apply: func(st State) State { return toggleCardLabel(st, cardID, labelID, add) },
		invert: func(st State, pre State) State {
			preCard, ok := findCard(pre, cardID)
			if !ok {
				return st
			}
			return setCardLabels(st, cardID, preCard.Labels)
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		card, err := s.remote.ToggleCardLabel(ctx, cardID, labelID, add)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			st = setCardLabels(st, cardID, card.Labels)
			return pushActivity(st, newActivity(ActivityCardUpdated, st.CurrentUser.ID, cardID, "",
				st.CurrentBoardID, "updated card labels"))
		}, nil
	})
}

// UpdateProjectAsync optimistically edits project metadata and reconciles
// from the response. Requires OWNER/ADMIN server-side; a 403 rolls back
// like any other failure.
func (s *Store) UpdateProjectAsync(ctx context.Context, projectID string, patch ProjectPatch) error {
	cmd := command{
		apply: func(st State) State { return updateProject(st, projectID, patch) },
		invert: func(st State, pre State) State {
			preProject, ok := findProject(pre, projectID)
			if !ok {
				return st
			}
			return updateProject(st, projectID, invertProjectPatch(patch, preProject))
		},
	}
	return s.run(ctx, cmd, func(ctx context.Context) (func(State) State, error) {
		p, err := s.remote.UpdateProject(ctx, projectID, patch)
		if err != nil {
			return nil, err
		}
		return func(st State) State {
			return updateProject(st, projectID, ProjectPatch{
				Title:          &p.Title,
				Description:    &p.Description,
				Specifications: &p.Specifications,
			})
		}, nil
	})
}

// RefreshProjects replaces the project collection from the backend (login
// and initial load path).
func (s *Store) RefreshProjects(ctx context.Context) error {
	projects, err := s.remote.FetchProjects(ctx)
	if err != nil {
		return err
	}
	s.SetProjects(projects)
	return nil
}
