package client

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval matches the product's refresh cadence.
const DefaultPollInterval = 2 * time.Second

// Syncer keeps the current project fresh by polling the backend. Its
// lifetime is structured: Start opens a watch scope, each current project
// gets a child scope that is cancelled when the selection changes, and
// Stop tears everything down deterministically. A ticker that outlives its
// project is a defect, so every exit path cancels the child scope.
type Syncer struct {
	store    *Store
	remote   *Remote
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	project  string
	cancelFn context.CancelFunc
	unsub    func()
	watch    chan struct{}
	wg       sync.WaitGroup
}

type SyncerOption func(*Syncer)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSyncLogger sets the syncer logger; the default discards everything.
func WithSyncLogger(log *slog.Logger) SyncerOption {
	return func(s *Syncer) { s.log = log }
}

func NewSyncer(store *Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:    store,
		remote:   store.Remote(),
		interval: DefaultPollInterval,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		inflight: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins watching the store: whenever a project becomes current a
// polling scope is opened for it, and closed when the selection moves away
// or ctx ends.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.unsub != nil {
		s.mu.Unlock()
		return
	}
	s.watch = make(chan struct{})
	watch := s.watch
	s.unsub = s.store.Subscribe(func(st State) {
		s.track(ctx, st.CurrentProjectID)
	})
	s.mu.Unlock()

	s.track(ctx, s.store.State().CurrentProjectID)

	// the watcher exits on Stop too, so a never-cancelled ctx does not
	// strand it
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-watch:
		}
	}()
}

// Stop cancels the active polling scope, stops watching the store and
// waits for in-flight fetches to drain.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	s.project = ""
	unsub := s.unsub
	s.unsub = nil
	if s.watch != nil {
		close(s.watch)
		s.watch = nil
	}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.wg.Wait()
}

// track switches the polling scope to the given project id; the empty id
// means no project is current and polling stops.
func (s *Syncer) track(ctx context.Context, projectID string) {
	s.mu.Lock()
	if projectID == s.project {
		s.mu.Unlock()
		return
	}
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	s.project = projectID
	if projectID == "" {
		s.mu.Unlock()
		return
	}
	scope, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.poll(scope, projectID)
}

// poll fires one refresh immediately, then on every tick. The per-project
// in-flight guard serializes fetches: a tick that would overlap an
// unresolved fetch is skipped, so a later-initiated response can never be
// overwritten by an earlier one.
func (s *Syncer) poll(ctx context.Context, projectID string) {
	defer s.wg.Done()

	s.refresh(ctx, projectID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, projectID)
		}
	}
}

func (s *Syncer) begin(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[projectID] {
		return false
	}
	s.inflight[projectID] = true
	return true
}

func (s *Syncer) end(projectID string) {
	s.mu.Lock()
	delete(s.inflight, projectID)
	s.mu.Unlock()
}

// refresh fetches the full project and merges it: the project subtree is
// replaced verbatim with the server's version (membership wrappers already
// flattened by the remote layer) and the activity log is rebuilt from the
// board-embedded entries plus local entries the server has not seen yet.
// Poll failures are logged and absorbed; the next tick retries.
func (s *Syncer) refresh(ctx context.Context, projectID string) {
	if !s.begin(projectID) {
		return
	}
	defer s.end(projectID)

	project, activities, err := s.remote.FetchProject(ctx, projectID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("refresh project", "project", projectID, "err", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.store.mergeRefreshedProject(project, activities)
}
