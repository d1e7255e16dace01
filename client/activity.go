package client

import (
	"time"

	"github.com/google/uuid"
)

const (
	// localActivityCap bounds the purely-local feed between polls.
	localActivityCap = 50
	// mergedActivityCap bounds the feed after merging server activity.
	mergedActivityCap = 100
)

// newActivity builds a client-generated entry. Board-scoped entries carry
// the current board id, so the first poll drops them in favor of the
// server's own row. boardID stays empty only for entries with no board
// (member adds); those survive merges until the server reports them.
func newActivity(typ ActivityType, userID, cardID, listID, boardID, description string) Activity {
	return Activity{
		ID:          uuid.NewString(),
		Type:        typ,
		UserID:      userID,
		CardID:      cardID,
		ListID:      listID,
		BoardID:     boardID,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

// pushActivity prepends the entry and trims to the local cap, newest first.
func pushActivity(st State, a Activity) State {
	activities := make([]Activity, 0, len(st.Activities)+1)
	activities = append(activities, a)
	activities = append(activities, st.Activities...)
	if len(activities) > localActivityCap {
		activities = activities[:localActivityCap]
	}
	st.Activities = activities
	return st
}

// mergeActivities combines server-reported entries with pending local ones,
// deduplicating by id and keeping at most limit entries. A local entry with
// a BoardID is an optimistic copy of an action the server has already
// logged, so the server feed supersedes it; only board-less local entries
// are kept. Server order is preserved so an unchanged server feed keeps a
// stable log across polls.
func mergeActivities(server, local []Activity, limit int) []Activity {
	seen := make(map[string]struct{}, len(server))
	merged := make([]Activity, 0, len(server)+len(local))
	for _, a := range server {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range local {
		if a.BoardID != "" {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		merged = append(merged, a)
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
