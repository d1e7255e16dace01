package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushActivityNewestFirstAndCapped(t *testing.T) {
	st := seedState()

	for i := 0; i < localActivityCap+10; i++ {
		st = pushActivity(st, newActivity(ActivityCardUpdated, "u1", "c1", "", "b1",
			fmt.Sprintf("edit %d", i)))
	}

	require.Len(t, st.Activities, localActivityCap)
	assert.Equal(t, fmt.Sprintf("edit %d", localActivityCap+9), st.Activities[0].Description)
	assert.Equal(t, "edit 10", st.Activities[localActivityCap-1].Description)
}

func TestNewActivityBoardScope(t *testing.T) {
	a := newActivity(ActivityCardMoved, "u1", "c1", "l2", "b1", "moved card")

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "b1", a.BoardID)
	assert.False(t, a.CreatedAt.IsZero())

	m := newActivity(ActivityMemberAdded, "u1", "", "", "", "added blake to the project")
	assert.Empty(t, m.BoardID)
}

func TestMergeActivitiesDeduplicatesByID(t *testing.T) {
	server := []Activity{
		{ID: "a1", Description: "server one"},
		{ID: "a2", Description: "server two"},
	}
	local := []Activity{
		{ID: "a1", Description: "local copy of one"},
		{ID: "a3", Description: "local pending"},
	}

	merged := mergeActivities(server, local, mergedActivityCap)

	require.Len(t, merged, 3)
	assert.Equal(t, "a1", merged[0].ID)
	assert.Equal(t, "server one", merged[0].Description)
	assert.Equal(t, "a2", merged[1].ID)
	assert.Equal(t, "a3", merged[2].ID)
}

func TestMergeActivitiesStableAcrossRepeatedPolls(t *testing.T) {
	server := []Activity{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}

	first := mergeActivities(server, nil, mergedActivityCap)
	second := mergeActivities(server, first, mergedActivityCap)

	assert.Equal(t, first, second)
}

func TestMergeActivitiesSkipsCorroboratedLocalEntries(t *testing.T) {
	local := []Activity{
		{ID: "a1", BoardID: "b1", Description: "already server-owned"},
		{ID: "a2", Description: "still pending"},
	}

	merged := mergeActivities(nil, local, mergedActivityCap)

	require.Len(t, merged, 1)
	assert.Equal(t, "a2", merged[0].ID)
}

func TestMergeActivitiesSupersedesOptimisticEntry(t *testing.T) {
	// one move: the optimistic entry and the server's own row have
	// different ids but describe the same action
	local := []Activity{newActivity(ActivityCardMoved, "u1", "c1", "l2", "b1", `moved card "Task 1"`)}
	server := []Activity{{ID: "srv-9", Type: ActivityCardMoved, BoardID: "b1", Description: `moved card "Task 1"`}}

	merged := mergeActivities(server, local, mergedActivityCap)
	merged = mergeActivities(server, merged, mergedActivityCap)
	merged = mergeActivities(server, merged, mergedActivityCap)

	require.Len(t, merged, 1)
	assert.Equal(t, "srv-9", merged[0].ID)
}

func TestMergeActivitiesCap(t *testing.T) {
	server := make([]Activity, 0, mergedActivityCap+20)
	for i := 0; i < mergedActivityCap+20; i++ {
		server = append(server, Activity{ID: fmt.Sprintf("a%d", i)})
	}

	merged := mergeActivities(server, []Activity{{ID: "pending"}}, mergedActivityCap)

	require.Len(t, merged, mergedActivityCap)
	assert.Equal(t, "a0", merged[0].ID)
}
