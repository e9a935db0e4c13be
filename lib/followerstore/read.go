package followerstore

import (
	"context"
	"time"
	"followtrace-backend/lib/followerstore/db"
)

type FollowerRecord struct {
	Username         string    `json:"username"`
	DisplayName      string    `json:"display_name"`
	Bio              string    `json:"bio"`
	Verified         bool      `json:"verified"`
	FollowerCount    int64     `json:"follower_count"`
	FollowingCount   int64     `json:"following_count"`
	Location         string    `json:"location"`
	AvatarUrl        string    `json:"avatar_url"`
	Status           string    `json:"status"`
	ExtractionMethod string    `json:"extraction_method"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

type UnfollowerEvent struct {
	Username    string    `json:"username"`
	EventType   string    `json:"event_type"`
	EventTime   time.Time `json:"event_time"`
	DisplayName string    `json:"display_name"`
	AvatarUrl   string    `json:"avatar_url"`
}

// Followers returns the current snapshot for (owner, target), both active
// and unfollowed rows. joins are derived from FirstSeen by readers; there
// is no dedicated "new follower" event.
func (s Store) Followers(ctx context.Context, owner, target string) ([]FollowerRecord, error) {
	rows, err := s.qry.ListFollowers(ctx, db.ListFollowersParams{
		Owner:  owner,
		Target: target,
	})
	if err != nil {
		return nil, err
	}

	out := make([]FollowerRecord, len(rows))
	for i, r := range rows {
		out[i] = FollowerRecord{
			Username:         r.Username,
			DisplayName:      r.DisplayName,
			Bio:              r.Bio,
			Verified:         r.Verified != 0,
			FollowerCount:    r.FollowerCount,
			FollowingCount:   r.FollowingCount,
			Location:         r.Location,
			AvatarUrl:        r.AvatarUrl,
			Status:           r.Status,
			ExtractionMethod: r.ExtractionMethod,
			FirstSeen:        time.Unix(r.FirstSeen, 0),
			LastSeen:         time.Unix(r.LastSeen, 0),
		}
	}
	return out, nil
}

// Events returns the append-only unfollow/refollow log, newest first.
// the first extraction for a target never produces events, read-side
// analytics must not infer churn from an empty log alone.
func (s Store) Events(ctx context.Context, owner, target string) ([]UnfollowerEvent, error) {
	rows, err := s.qry.ListEvents(ctx, db.ListEventsParams{
		Owner:  owner,
		Target: target,
	})
	if err != nil {
		return nil, err
	}

	out := make([]UnfollowerEvent, len(rows))
	for i, r := range rows {
		out[i] = UnfollowerEvent{
			Username:    r.Username,
			EventType:   r.EventType,
			EventTime:   time.Unix(r.EventTime, 0),
			DisplayName: r.DisplayName,
			AvatarUrl:   r.AvatarUrl,
		}
	}
	return out, nil
}
