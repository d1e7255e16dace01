package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollBackend serves GET /projects/{id} with a mutable activity feed.
type pollBackend struct {
	mu         sync.Mutex
	activities []Activity
	polls      atomic.Int64
	lastID     atomic.Value
}

func (b *pollBackend) push(a Activity) {
	b.mu.Lock()
	b.activities = append([]Activity{a}, b.activities...)
	b.mu.Unlock()
}

func (b *pollBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.polls.Add(1)
	id := r.PathValue("id")
	b.lastID.Store(id)
	b.mu.Lock()
	activities := append([]Activity(nil), b.activities...)
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": id, "title": "Demo",
		"boards": []map[string]any{{
			"id": "b1", "title": "Sprint", "projectId": id,
			"lists":      []map[string]any{{"id": "l1", "title": "Todo", "boardId": "b1", "cards": []any{}}},
			"activities": activities,
		}},
		"members": []map[string]any{
			{"user": map[string]string{"id": "u1", "username": "avery"}, "role": "OWNER"},
		},
		"labels": []any{},
	})
}

func newPollingStore(t *testing.T, backend http.Handler) *Store {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /projects/{id}", backend)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s := New(NewRemote(srv.URL))
	s.apply(func(State) State { return seedState() })
	return s
}

func TestSyncerFirstPollIsImmediate(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(time.Hour))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		return backend.polls.Load() >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "p1", backend.lastID.Load())
}

func TestSyncerMergesIncrementalActivity(t *testing.T) {
	backend := &pollBackend{}
	backend.push(Activity{ID: "srv-1", Type: ActivityCardCreated, BoardID: "b1", Description: "created card"})
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(20*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		return len(s.State().Activities) == 1
	}, time.Second, 5*time.Millisecond)

	backend.push(Activity{ID: "srv-2", Type: ActivityCardMoved, BoardID: "b1", Description: "moved card"})

	require.Eventually(t, func() bool {
		return len(s.State().Activities) == 2
	}, time.Second, 5*time.Millisecond)

	st := s.State()
	assert.Equal(t, "srv-2", st.Activities[0].ID)
	assert.Equal(t, "srv-1", st.Activities[1].ID)

	// a further unchanged poll must not duplicate entries
	polls := backend.polls.Load()
	require.Eventually(t, func() bool {
		return backend.polls.Load() > polls+1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.State().Activities, 2)
}

func TestSyncerKeepsLocalPendingEntries(t *testing.T) {
	backend := &pollBackend{}
	backend.push(Activity{ID: "srv-1", Type: ActivityCardCreated, BoardID: "b1"})
	s := newPollingStore(t, backend)
	// board-less entry (member add): the board feed never carries it, so it
	// must survive every merge
	s.apply(func(st State) State {
		return pushActivity(st, newActivity(ActivityMemberAdded, "u1", "", "", "", "added blake to the project"))
	})

	syn := NewSyncer(s, WithInterval(20*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		return len(s.State().Activities) == 2
	}, time.Second, 5*time.Millisecond)

	st := s.State()
	assert.Equal(t, "srv-1", st.Activities[0].ID)
	assert.Equal(t, "added blake to the project", st.Activities[1].Description)
}

func TestSyncerDropsSupersededOptimisticEntries(t *testing.T) {
	backend := &pollBackend{}
	backend.push(Activity{ID: "srv-1", Type: ActivityCardMoved, BoardID: "b1", Description: "moved card"})
	s := newPollingStore(t, backend)
	// board-scoped optimistic entry for the same move the server already logged
	s.apply(func(st State) State {
		return pushActivity(st, newActivity(ActivityCardMoved, "u1", "c1", "l2", "b1", "moved card"))
	})

	syn := NewSyncer(s, WithInterval(20*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		st := s.State()
		return len(st.Activities) == 1 && st.Activities[0].ID == "srv-1"
	}, time.Second, 5*time.Millisecond)

	// further polls must not resurrect or duplicate it
	polls := backend.polls.Load()
	require.Eventually(t, func() bool {
		return backend.polls.Load() > polls+1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.State().Activities, 1)
}

func TestSyncerPollReplacesProjectSubtree(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(20*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	// the backend serves one list and a flattened membership wrapper
	require.Eventually(t, func() bool {
		p, ok := findProject(s.State(), "p1")
		return ok && len(p.Boards) == 1 && len(p.Boards[0].Lists) == 1
	}, time.Second, 5*time.Millisecond)

	p, _ := findProject(s.State(), "p1")
	require.Len(t, p.Members, 1)
	assert.Equal(t, "avery", p.Members[0].Username)
	assert.Equal(t, RoleOwner, p.Members[0].Role)
}

func TestSyncerStopHaltsPolling(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(10*time.Millisecond))
	syn.Start(context.Background())

	require.Eventually(t, func() bool {
		return backend.polls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	syn.Stop()
	after := backend.polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, backend.polls.Load())
}

func TestSyncerStopReleasesContextWatcher(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	// warm up transport goroutines so the baseline below is stable
	warm := NewSyncer(s, WithInterval(time.Hour))
	warm.Start(context.Background())
	require.Eventually(t, func() bool {
		return backend.polls.Load() >= 1
	}, time.Second, 5*time.Millisecond)
	warm.Stop()

	before := runtime.NumGoroutine()

	syn := NewSyncer(s, WithInterval(time.Hour))
	syn.Start(context.Background())
	require.Eventually(t, func() bool {
		return backend.polls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	syn.Stop()

	// Stop must release the poll loop and the ctx watcher even though the
	// context is never cancelled
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}

func TestSyncerSwitchesWithCurrentProject(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(10*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		return backend.lastID.Load() == "p1"
	}, time.Second, 5*time.Millisecond)

	s.apply(func(st State) State {
		st.Projects = append(st.Projects, Project{ID: "p2", Title: "Other"})
		return st
	})
	s.SetCurrentProject("p2")

	require.Eventually(t, func() bool {
		return backend.lastID.Load() == "p2"
	}, time.Second, 5*time.Millisecond)
}

func TestSyncerClearingSelectionStopsPolling(t *testing.T) {
	backend := &pollBackend{}
	s := newPollingStore(t, backend)

	syn := NewSyncer(s, WithInterval(10*time.Millisecond))
	syn.Start(context.Background())
	defer syn.Stop()

	require.Eventually(t, func() bool {
		return backend.polls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	s.SetCurrentProject("")
	time.Sleep(30 * time.Millisecond)
	after := backend.polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, backend.polls.Load())
}

func TestSyncerSkipsOverlappingFetches(t *testing.T) {
	release := make(chan struct{})
	var concurrent, peak atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		cur := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "title": "Demo"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New(NewRemote(srv.URL))
	s.apply(func(State) State { return seedState() })

	syn := NewSyncer(s, WithInterval(5*time.Millisecond))
	syn.Start(context.Background())

	// several ticks elapse while the first fetch is still blocked
	time.Sleep(60 * time.Millisecond)
	close(release)
	syn.Stop()

	assert.Equal(t, int64(1), peak.Load())
}
