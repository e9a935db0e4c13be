package followerstore

import (
	"context"
	"strconv"
	"testing"
	"time"
	"followtrace-backend/lib/followerstore/db"
	"followtrace-backend/lib/testutil"
	"followtrace-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func records(usernames ...string) []ProfileRecord {
	out := make([]ProfileRecord, len(usernames))
	for i, u := range usernames {
		out[i] = ProfileRecord{
			Username:    u,
			DisplayName: "display " + u,
			AvatarUrl:   "https://img.example/" + u,
		}
	}
	return out
}

func usernames(records []ProfileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Username
	}
	return out
}

func statusMap(t *testing.T, store Store, owner, target string) map[string]string {
	t.Helper()
	rows, err := store.Followers(context.Background(), owner, target)
	require.NoError(t, err)
	out := map[string]string{}
	for _, r := range rows {
		out[r.Username] = r.Status
	}
	return out
}

func TestLifecycle(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "lib/followerstore",
		DbSchema: db.Schema,
	})
	defer cleanup()
	store := NewStore(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	const owner = "owner-1"
	const target = "some_celebrity"

	day1 := timezone.Now().Add(-48 * time.Hour).Truncate(time.Second)
	day2 := day1.Add(24 * time.Hour)
	day3 := day2.Add(24 * time.Hour)

	// day 1: baseline, no events no matter the size of the set
	{
		set := records("alice", "bob", "carol")
		n, err := store.Merge(ctx, owner, target, "direct-api", set, day1)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		stats, err := store.Reconcile(ctx, owner, target, usernames(set), day1)
		require.NoError(t, err)
		require.True(t, stats.Baseline)
		require.Zero(t, stats.Unfollowed)
		require.Zero(t, stats.Refollowed)

		events, err := store.Events(ctx, owner, target)
		require.NoError(t, err)
		require.Len(t, events, 0)

		diff := cmp.Diff(
			map[string]string{"alice": StatusActive, "bob": StatusActive, "carol": StatusActive},
			statusMap(t, store, owner, target),
		)
		require.Empty(t, diff)
	}

	// merging the same input again changes nothing
	{
		before, err := store.Followers(ctx, owner, target)
		require.NoError(t, err)

		n, err := store.Merge(ctx, owner, target, "direct-api", records("alice", "bob", "carol"), day1)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		after, err := store.Followers(ctx, owner, target)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(before, after))
	}

	// day 2: bob leaves, dave shows up
	{
		set := records("alice", "carol", "dave")
		_, err := store.Merge(ctx, owner, target, "direct-api", set, day2)
		require.NoError(t, err)

		stats, err := store.Reconcile(ctx, owner, target, usernames(set), day2)
		require.NoError(t, err)
		require.False(t, stats.Baseline)
		require.Equal(t, 1, stats.Unfollowed)
		require.Zero(t, stats.Refollowed)

		events, err := store.Events(ctx, owner, target)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "bob", events[0].Username)
		require.Equal(t, EventUnfollowed, events[0].EventType)
		require.Equal(t, day2.Unix(), events[0].EventTime.Unix())
		require.Equal(t, "display bob", events[0].DisplayName)

		statuses := statusMap(t, store, owner, target)
		require.Equal(t, StatusUnfollowed, statuses["bob"])
		require.Equal(t, StatusActive, statuses["dave"])
		require.Equal(t, StatusActive, statuses["alice"])

		followers, err := store.Followers(ctx, owner, target)
		require.NoError(t, err)
		for _, f := range followers {
			switch f.Username {
			case "bob":
				// absence is recorded at the extraction that noticed it
				require.Equal(t, day2.Unix(), f.LastSeen.Unix())
				require.Equal(t, day1.Unix(), f.FirstSeen.Unix())
			case "dave":
				require.Equal(t, day2.Unix(), f.FirstSeen.Unix())
			default:
				require.Equal(t, day1.Unix(), f.FirstSeen.Unix())
				require.Equal(t, day2.Unix(), f.LastSeen.Unix())
			}
		}
	}

	// day 3: bob comes back
	{
		set := records("alice", "bob", "carol", "dave")
		_, err := store.Merge(ctx, owner, target, "sandbox-browser", set, day3)
		require.NoError(t, err)

		stats, err := store.Reconcile(ctx, owner, target, usernames(set), day3)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Refollowed)
		require.Zero(t, stats.Unfollowed)

		events, err := store.Events(ctx, owner, target)
		require.NoError(t, err)
		require.Len(t, events, 2)
		// newest first
		require.Equal(t, EventRefollowed, events[0].EventType)
		require.Equal(t, "bob", events[0].Username)

		followers, err := store.Followers(ctx, owner, target)
		require.NoError(t, err)
		for _, f := range followers {
			require.Equal(t, StatusActive, f.Status)
			if f.Username == "bob" {
				// first_seen survives the unfollow/refollow cycle
				require.Equal(t, day1.Unix(), f.FirstSeen.Unix())
				require.Equal(t, day3.Unix(), f.LastSeen.Unix())
			}
		}
	}

	// reconciling the same set twice emits nothing the second time
	{
		set := []string{"alice", "bob", "carol", "dave"}
		stats, err := store.Reconcile(ctx, owner, target, set, day3)
		require.NoError(t, err)
		require.Zero(t, stats.Unfollowed)
		require.Zero(t, stats.Refollowed)

		events, err := store.Events(ctx, owner, target)
		require.NoError(t, err)
		require.Len(t, events, 2)
	}
}

func TestMergeChunking(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "lib/followerstore/chunking",
		DbSchema: db.Schema,
	})
	defer cleanup()
	store := NewStore(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	var set []ProfileRecord
	for i := 0; i < 1203; i++ {
		set = append(set, ProfileRecord{Username: "user_" + strconv.Itoa(i)})
	}

	now := timezone.Now()
	n, err := store.Merge(ctx, "o", "t", "scraping-service", set, now)
	require.NoError(t, err)
	require.Equal(t, 1203, n)

	followers, err := store.Followers(ctx, "o", "t")
	require.NoError(t, err)
	require.Len(t, followers, 1203)
}
