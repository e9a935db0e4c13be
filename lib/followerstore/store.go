package followerstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"followtrace-backend/lib/followerstore/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("lib/followerstore")

const (
	StatusActive     = "active"
	StatusUnfollowed = "unfollowed"

	EventUnfollowed = "unfollowed"
	EventRefollowed = "refollowed"
)

// committed write batch size for merges, keeps individual
// transactions small enough for libsql statement limits
const mergeChunkSize = 500

// ProfileRecord is the normalized shape every extraction backend
// reduces its output to before anything is persisted.
type ProfileRecord struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	Bio            string `json:"bio"`
	Verified       bool   `json:"verified"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	Location       string `json:"location"`
	AvatarUrl      string `json:"avatar_url"`
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

// Merge upserts extracted records keyed by (owner, target, username) in
// committed chunks. it only ever touches volatile profile fields and
// last_seen on existing rows; first_seen and status are written once at
// insert. re-running a merge with the same input is a no-op.
func (s Store) Merge(ctx context.Context, owner, target, method string, records []ProfileRecord, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "Merge")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.String("target", target),
		attribute.Int("records", len(records)),
	)

	seen := make(map[string]bool, len(records))
	deduped := records[:0:0]
	for _, r := range records {
		if r.Username == "" || seen[r.Username] {
			continue
		}
		seen[r.Username] = true
		deduped = append(deduped, r)
	}

	for start := 0; start < len(deduped); start += mergeChunkSize {
		end := start + mergeChunkSize
		if end > len(deduped) {
			end = len(deduped)
		}

		err := s.mergeChunk(ctx, owner, target, method, deduped[start:end], now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return start, err
		}
	}

	return len(deduped), nil
}

func (s Store) mergeChunk(ctx context.Context, owner, target, method string, records []ProfileRecord, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, r := range records {
		verified := int64(0)
		if r.Verified {
			verified = 1
		}
		err := txqry.UpsertFollower(ctx, db.UpsertFollowerParams{
			Owner:            owner,
			Target:           target,
			Username:         r.Username,
			DisplayName:      r.DisplayName,
			Bio:              r.Bio,
			Verified:         verified,
			FollowerCount:    r.FollowerCount,
			FollowingCount:   r.FollowingCount,
			Location:         r.Location,
			AvatarUrl:        r.AvatarUrl,
			ExtractionMethod: method,
			FirstSeen:        now.Unix(),
			LastSeen:         now.Unix(),
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type ReconcileStats struct {
	// true when this was the first ever extraction for the target,
	// in which case no events were derived
	Baseline   bool
	Active     int
	Unfollowed int
	Refollowed int
}

// Reconcile diffs the freshly extracted username set against the stored
// snapshot and derives unfollowed/refollowed events. it must run after the
// corresponding Merge, with the full extracted set. the first extraction
// for a target only establishes the baseline: diffing it against an empty
// snapshot would flag every follower as new.
func (s Store) Reconcile(ctx context.Context, owner, target string, extracted []string, now time.Time) (ReconcileStats, error) {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.String("target", target),
		attribute.Int("extracted", len(extracted)),
	)

	fail := func(err error) (ReconcileStats, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReconcileStats{}, err
	}

	present := make(map[string]bool, len(extracted))
	for _, username := range extracted {
		present[username] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	baseline := false
	_, err = txqry.GetTarget(ctx, db.GetTargetParams{Owner: owner, Target: target})
	if errors.Is(err, sql.ErrNoRows) {
		baseline = true
	} else if err != nil {
		return fail(err)
	}

	stats := ReconcileStats{Baseline: baseline}

	if !baseline {
		states, err := txqry.GetFollowerStates(ctx, db.GetFollowerStatesParams{
			Owner:  owner,
			Target: target,
		})
		if err != nil {
			return fail(err)
		}

		for _, row := range states {
			switch {
			case row.Status == StatusActive && !present[row.Username]:
				err = txqry.MarkUnfollowed(ctx, db.MarkUnfollowedParams{
					LastSeen: now.Unix(),
					Owner:    owner,
					Target:   target,
					Username: row.Username,
				})
				if err != nil {
					return fail(err)
				}
				err = txqry.CreateEvent(ctx, db.CreateEventParams{
					Owner:       owner,
					Target:      target,
					Username:    row.Username,
					EventType:   EventUnfollowed,
					EventTime:   now.Unix(),
					DisplayName: row.DisplayName,
					AvatarUrl:   row.AvatarUrl,
				})
				if err != nil {
					return fail(err)
				}
				stats.Unfollowed++

			case row.Status == StatusUnfollowed && present[row.Username]:
				err = txqry.MarkActive(ctx, db.MarkActiveParams{
					Owner:    owner,
					Target:   target,
					Username: row.Username,
				})
				if err != nil {
					return fail(err)
				}
				err = txqry.CreateEvent(ctx, db.CreateEventParams{
					Owner:       owner,
					Target:      target,
					Username:    row.Username,
					EventType:   EventRefollowed,
					EventTime:   now.Unix(),
					DisplayName: row.DisplayName,
					AvatarUrl:   row.AvatarUrl,
				})
				if err != nil {
					return fail(err)
				}
				stats.Refollowed++

			case row.Status == StatusActive:
				stats.Active++
			}
		}
	}

	err = txqry.UpsertTarget(ctx, db.UpsertTargetParams{
		Owner:            owner,
		Target:           target,
		BaselineAt:       now.Unix(),
		LastReconciledAt: now.Unix(),
	})
	if err != nil {
		return fail(err)
	}

	err = tx.Commit()
	if err != nil {
		return fail(err)
	}
	return stats, nil
}
