package ledger

import (
	"context"
	"database/sql"
	"errors"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/ledger/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("services/ledger")

// metered resource kinds
const KindExtractedProfiles = "extracted_profiles"

type Options struct {
	// quota applied to owners the billing collaborator has not
	// seeded an explicit quota for yet, keyed by resource kind
	DefaultQuotas map[string]int64
}

// Service tracks metered extraction usage per (owner, kind, billing month).
// admission is checked against the requested amount before a job spends any
// compute, the debit is the exact merged count afterwards. concurrent jobs
// for one owner can race between the check and the debit, this is accepted
// best-effort gating rather than a hard financial guarantee.
type Service struct {
	db   *sql.DB
	qry  *db.Queries
	opts Options
}

func NewService(database *sql.DB, opts Options) Service {
	return Service{
		db:   database,
		qry:  db.New(database),
		opts: opts,
	}
}

type Usage struct {
	Used  int64 `json:"used"`
	Quota int64 `json:"quota"`
}

func (s Service) usage(ctx context.Context, owner, kind, period string) (Usage, error) {
	row, err := s.qry.GetUsage(ctx, db.GetUsageParams{
		Owner:  owner,
		Kind:   kind,
		Period: period,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{Used: 0, Quota: s.opts.DefaultQuotas[kind]}, nil
	}
	if err != nil {
		return Usage{}, err
	}
	quota := row.Quota
	if row.QuotaSet == 0 {
		// the row exists only because a debit landed before billing
		// seeded a quota, an explicit zero from billing still binds
		quota = s.opts.DefaultQuotas[kind]
	}
	return Usage{Used: row.Used, Quota: quota}, nil
}

func (s Service) GetUsage(ctx context.Context, owner, kind string) (Usage, error) {
	return s.usage(ctx, owner, kind, timezone.Period(timezone.Now()))
}

// CheckAdmission reports whether `requested` more units fit under the
// owner's quota for the current period. callers pass the maximum they
// might extract, so admission is conservative by design of the contract.
func (s Service) CheckAdmission(ctx context.Context, owner, kind string, requested int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "CheckAdmission")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.String("kind", kind),
		attribute.Int64("requested", requested),
	)

	usage, err := s.usage(ctx, owner, kind, timezone.Period(timezone.Now()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	admitted := usage.Used+requested <= usage.Quota
	span.SetAttributes(attribute.Bool("admitted", admitted))
	return admitted, nil
}

type DebitMetadata struct {
	JobID string
	Note  string
}

// Debit records `actual` consumed units. `actual` must be the count that
// was really merged, never the requested maximum.
func (s Service) Debit(ctx context.Context, owner, kind string, actual int64, meta DebitMetadata) error {
	ctx, span := tracer.Start(ctx, "Debit")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.String("kind", kind),
		attribute.Int64("actual", actual),
		attribute.String("job_id", meta.JobID),
	)

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if actual < 0 {
		return fail(errors.New("debit amount must not be negative"))
	}
	if actual == 0 {
		return nil
	}

	now := timezone.Now()
	period := timezone.Period(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	err = txqry.AddUsage(ctx, db.AddUsageParams{
		Owner:  owner,
		Kind:   kind,
		Period: period,
		Used:   actual,
		Quota:  s.opts.DefaultQuotas[kind],
	})
	if err != nil {
		return fail(err)
	}

	err = txqry.CreateDebit(ctx, db.CreateDebitParams{
		Owner:     owner,
		Kind:      kind,
		Period:    period,
		Amount:    actual,
		JobID:     meta.JobID,
		Note:      meta.Note,
		CreatedAt: now.Unix(),
	})
	if err != nil {
		return fail(err)
	}

	return tx.Commit()
}

// SetQuota seeds or updates the owner's quota for the current period,
// called by the billing collaborator when a tier changes.
func (s Service) SetQuota(ctx context.Context, owner, kind string, quota int64) error {
	return s.qry.SetQuota(ctx, db.SetQuotaParams{
		Owner:  owner,
		Kind:   kind,
		Period: timezone.Period(timezone.Now()),
		Quota:  quota,
	})
}
