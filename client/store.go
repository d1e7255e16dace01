package client

import (
	"io"
	"log/slog"
	"sync"
)

// Store is the single shared state container. It is constructed once at
// application start and passed by reference; there are no package-level
// instances. Every mutation is one atomic state-replacement step: no
// half-applied snapshot is ever observable.
type Store struct {
	remote *Remote
	log    *slog.Logger

	mu      sync.Mutex
	state   State
	persist Persister
	name    string

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

type StoreOption func(*Store)

// WithLogger sets the store logger; the default discards everything.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithPersister installs the snapshot persistence adapter, called on every
// state transition.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persist = p }
}

// WithStoreName overrides the key the snapshot is persisted under.
func WithStoreName(name string) StoreOption {
	return func(s *Store) { s.name = name }
}

// New builds a store around the given remote. A persisted snapshot, when
// present and loadable, seeds the initial state; it is read-replayed here,
// never live-synchronized across processes.
func New(remote *Remote, opts ...StoreOption) *Store {
	s := &Store{
		remote:  remote,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		persist: NopPersister{},
		name:    DefaultStoreName,
		subs:    map[int]func(State){},
		state: State{
			Projects:   []Project{},
			Activities: []Activity{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if st, ok, err := s.persist.Load(s.name); err != nil {
		s.log.Warn("load snapshot", "err", err)
	} else if ok {
		s.state = *st
	}
	return s
}

// State returns the current snapshot. Mutations are copy-on-write, so the
// returned value and everything reachable from it stays stable.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers an observer invoked after every state transition.
// The returned cancel func must be called when the observer goes away.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// apply runs one state transition, persists the result and notifies
// subscribers. The snapshot is saved under the state lock so racing
// transitions can never persist out of order. Subscribers run outside the
// lock so they may call back into the store.
func (s *Store) apply(fn func(State) State) {
	s.mu.Lock()
	next := fn(s.state)
	s.state = next
	if err := s.persist.Save(s.name, &next); err != nil {
		s.log.Warn("persist snapshot", "err", err)
	}
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
}

// Remote exposes the remote operation layer the store was built with.
func (s *Store) Remote() *Remote { return s.remote }

// Selection and filter transitions.

func (s *Store) SetProjects(projects []Project) {
	if projects == nil {
		projects = []Project{}
	}
	s.apply(func(st State) State {
		st.Projects = projects
		return st
	})
}

func (s *Store) SetCurrentProject(projectID string) {
	s.apply(func(st State) State {
		st.CurrentProjectID = projectID
		return st
	})
}

func (s *Store) SetCurrentBoard(boardID string) {
	s.apply(func(st State) State {
		st.CurrentBoardID = boardID
		return st
	})
}

func (s *Store) SetCurrentUser(u User) {
	s.apply(func(st State) State {
		st.CurrentUser = u
		return st
	})
}

func (s *Store) SetSelectedCard(cardID string) {
	s.apply(func(st State) State {
		st.SelectedCardID = cardID
		return st
	})
}

func (s *Store) SetSearchQuery(q string) {
	s.apply(func(st State) State {
		st.SearchQuery = q
		return st
	})
}

func (s *Store) SetFilterPriority(p Priority) {
	s.apply(func(st State) State {
		st.FilterPriority = p
		return st
	})
}

func (s *Store) SetFilterAssignee(userID string) {
	s.apply(func(st State) State {
		st.FilterAssignee = userID
		return st
	})
}

func (s *Store) SetFilterLabel(labelID string) {
	s.apply(func(st State) State {
		st.FilterLabel = labelID
		return st
	})
}

func (s *Store) ClearFilters() {
	s.apply(func(st State) State {
		st.SearchQuery = ""
		st.FilterPriority = ""
		st.FilterAssignee = ""
		st.FilterLabel = ""
		return st
	})
}

// Synchronous local mutations, for state the caller already holds
// authoritative copies of (e.g. seeding after login).

func (s *Store) AddProject(p Project) {
	s.apply(func(st State) State { return addProject(st, p) })
}

func (s *Store) AddBoard(b Board) {
	s.apply(func(st State) State { return addBoard(st, b) })
}

func (s *Store) AddLabel(l Label) {
	s.apply(func(st State) State { return addLabel(st, l) })
}

func (s *Store) AddMember(u User) {
	s.apply(func(st State) State {
		st = addMember(st, u)
		// membership is project scoped; no board id, so the entry outlives
		// merges instead of being superseded by a board feed row
		return pushActivity(st, newActivity(ActivityMemberAdded, st.CurrentUser.ID, "", "", "",
			"added "+u.DisplayName()+" to the project"))
	})
}

func (s *Store) DeleteList(listID string) {
	s.apply(func(st State) State { return deleteList(st, listID) })
}

func (s *Store) DeleteCard(cardID string) {
	s.apply(func(st State) State { return deleteCard(st, cardID) })
}

// MoveCard applies the local move only; drag interactions that need
// persistence go through MoveCardAsync.
func (s *Store) MoveCard(cardID, targetListID string, newIndex int) {
	s.apply(func(st State) State { return moveCard(st, cardID, targetListID, newIndex) })
}

// mergeRefreshedProject installs a polled project subtree and rebuilds the
// activity log: server entries deduplicated by id, merged with local
// entries the server has not corroborated yet, capped newest-first.
func (s *Store) mergeRefreshedProject(p Project, serverActivities []Activity) {
	s.apply(func(st State) State {
		st = replaceProject(st, p)
		st.Activities = mergeActivities(serverActivities, st.Activities, mergedActivityCap)
		return st
	})
}
