package keychain

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/keychain/db"

	_ "modernc.org/sqlite"
)

// Credentials an extraction backend needs to act on behalf of an owner.
// the auth collaborator writes them, the scanner only ever reads.
type Credentials struct {
	AccessToken   string
	SessionCookie string
	ExpiresAt     time.Time
}

func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.SessionCookie == ""
}

type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(ctx context.Context, database *sql.DB) Service {
	s := Service{
		db:  database,
		qry: db.New(database),
	}

	go s.deleteExpiredDaemon(ctx)

	return s
}

// Get returns the owner's stored credentials. expired or missing rows
// come back as empty credentials, the caller decides whether that means
// re-authorization is required.
func (s Service) Get(ctx context.Context, owner string) (Credentials, error) {
	row, err := s.qry.GetCredential(ctx, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, err
	}
	if row.ExpiresAt != 0 && row.ExpiresAt < timezone.Now().Unix() {
		return Credentials{}, nil
	}

	return Credentials{
		AccessToken:   row.AccessToken,
		SessionCookie: row.SessionCookie,
		ExpiresAt:     time.Unix(row.ExpiresAt, 0),
	}, nil
}

func (s Service) Set(ctx context.Context, owner string, creds Credentials) error {
	expiresAt := int64(0)
	if !creds.ExpiresAt.IsZero() {
		expiresAt = creds.ExpiresAt.Unix()
	}
	return s.qry.UpsertCredential(ctx, db.UpsertCredentialParams{
		Owner:         owner,
		AccessToken:   creds.AccessToken,
		SessionCookie: creds.SessionCookie,
		ExpiresAt:     expiresAt,
		UpdatedAt:     timezone.Now().Unix(),
	})
}

func (s Service) Delete(ctx context.Context, owner string) error {
	return s.qry.DeleteCredential(ctx, owner)
}

func (s Service) deleteExpiredDaemon(ctx context.Context) {
	slog.InfoContext(ctx, "start daemon", "task", "delete expired credentials every 30 minutes")

	ticker := time.NewTicker(time.Minute * 30)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := s.qry.DeleteCredentialsBefore(ctx, timezone.Now().Unix())
			if err != nil {
				slog.WarnContext(ctx, "failed to delete expired credentials", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
