package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/keychain"
	"followtrace-backend/services/ledger"
	"followtrace-backend/services/scanner/db"
	"followtrace-backend/services/scanner/executor"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("services/scanner")

var ErrJobNotFound = errors.New("scan job not found")

// platform handle rules: letters, digits, dot and underscore
var handleRe = regexp.MustCompile(`^[a-zA-Z0-9._]{1,30}$`)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Options struct {
	// cap applied when a request does not name one
	DefaultMaxItems int
	// how long a sandbox stays reusable after its job finishes
	LeaseGrace time.Duration
	// how often expired leases are swept
	CleanupInterval time.Duration
	// base delay between extraction retries
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxItems <= 0 {
		o.DefaultMaxItems = 10000
	}
	if o.LeaseGrace <= 0 {
		o.LeaseGrace = time.Minute * 10
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Minute
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second * 5
	}
	return o
}

// ProfileChecker resolves a single username against ground truth, used by
// bulk verification. nil record with nil error means no such profile.
type ProfileChecker interface {
	CheckProfile(ctx context.Context, username string, creds keychain.Credentials) (*followerstore.ProfileRecord, error)
}

// Service owns the scan job lifecycle: admission, persistence, background
// execution over a pluggable extraction backend, snapshot merge and diff,
// usage debit, and deferred sandbox cleanup.
type Service struct {
	db        *sql.DB
	qry       *db.Queries
	store     followerstore.Store
	ledger    ledger.Service
	keychain  keychain.Service
	executors map[string]executor.Executor
	releaser  executor.Releaser
	checker   ProfileChecker
	opts      Options
	runner    *taskRunner
}

// Collaborators are the services and backends the coordinator drives.
// Releaser and Checker may be nil when the deployment has no sandbox
// backend or no verification surface.
type Collaborators struct {
	Ledger    ledger.Service
	Keychain  keychain.Service
	Executors map[string]executor.Executor
	Releaser  executor.Releaser
	Checker   ProfileChecker
}

func NewService(ctx context.Context, database *sql.DB, collab Collaborators, opts Options) *Service {
	s := &Service{
		db:        database,
		qry:       db.New(database),
		store:     followerstore.NewStore(database),
		ledger:    collab.Ledger,
		keychain:  collab.Keychain,
		executors: collab.Executors,
		releaser:  collab.Releaser,
		checker:   collab.Checker,
		opts:      opts.withDefaults(),
		runner:    newTaskRunner(ctx),
	}

	go s.cleanupDaemon(ctx)

	return s
}

// Shutdown drains in-flight jobs and their goroutines.
func (s *Service) Shutdown() {
	s.runner.Shutdown()
}

type StartScanRequest struct {
	Owner    string
	Target   string
	Method   string
	MaxItems int
}

type StartScanResult struct {
	JobID string
	// false when an already-running job for the same (owner, target)
	// was returned instead of a new one
	Accepted bool
}

// StartScan admits, persists and spawns a scan job, returning immediately.
// a second request for a pair that already has a live job coalesces onto
// that job rather than racing two extractions against one snapshot.
func (s *Service) StartScan(ctx context.Context, req StartScanRequest) (StartScanResult, error) {
	ctx, span := tracer.Start(ctx, "StartScan")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", req.Owner),
		attribute.String("target", req.Target),
		attribute.String("method", req.Method),
	)

	fail := func(err error) (StartScanResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return StartScanResult{}, err
	}

	if req.Owner == "" {
		return fail(errors.New("owner is required"))
	}
	if !handleRe.MatchString(req.Target) {
		return fail(fmt.Errorf("invalid target handle %q", req.Target))
	}
	if !executor.ValidMethod(req.Method) {
		return fail(fmt.Errorf("unknown extraction method %q", req.Method))
	}
	if req.MaxItems <= 0 {
		req.MaxItems = s.opts.DefaultMaxItems
	}

	live, err := s.qry.GetActiveScanJob(ctx, db.GetActiveScanJobParams{
		Owner:  req.Owner,
		Target: req.Target,
	})
	if err == nil {
		span.SetAttributes(attribute.String("coalesced_into", live.ID))
		return StartScanResult{JobID: live.ID, Accepted: false}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fail(err)
	}

	admitted, err := s.ledger.CheckAdmission(
		ctx, req.Owner, ledger.KindExtractedProfiles, int64(req.MaxItems),
	)
	if err != nil {
		return fail(err)
	}
	if !admitted {
		return fail(executor.NewError(
			executor.KindAdmissionDenied,
			fmt.Sprintf("quota exceeded for %d profiles", req.MaxItems),
		))
	}

	jobID := uuid.NewString()
	err = s.qry.CreateScanJob(ctx, db.CreateScanJobParams{
		ID:        jobID,
		Owner:     req.Owner,
		Target:    req.Target,
		Method:    req.Method,
		MaxItems:  int64(req.MaxItems),
		CreatedAt: timezone.Now().Unix(),
	})
	if err != nil {
		// a racer inserted its row between our live-job read and this
		// write, the unique live index turned that into a conflict
		live, liveErr := s.qry.GetActiveScanJob(ctx, db.GetActiveScanJobParams{
			Owner:  req.Owner,
			Target: req.Target,
		})
		if liveErr == nil {
			span.SetAttributes(attribute.String("coalesced_into", live.ID))
			return StartScanResult{JobID: live.ID, Accepted: false}, nil
		}
		return fail(err)
	}

	s.runner.Go(jobID, func(ctx context.Context) {
		s.runScan(ctx, jobID)
	})

	span.SetAttributes(attribute.String("job_id", jobID))
	return StartScanResult{JobID: jobID, Accepted: true}, nil
}

// ScanJob is the externally visible state of one job.
type ScanJob struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Target      string    `json:"target"`
	Method      string    `json:"method"`
	MaxItems    int       `json:"max_items"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Percent     int       `json:"percent"`
	Message     string    `json:"message"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	SandboxID   string    `json:"sandbox_id,omitempty"`
	Partial     bool      `json:"partial"`
	Extracted   int       `json:"extracted"`
	Merged      int       `json:"merged"`
	Unfollowed  int       `json:"unfollowed"`
	Refollowed  int       `json:"refollowed"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func jobFromRow(row db.ScanJob) ScanJob {
	job := ScanJob{
		ID:         row.ID,
		Owner:      row.Owner,
		Target:     row.Target,
		Method:     row.Method,
		MaxItems:   int(row.MaxItems),
		Status:     row.Status,
		Phase:      row.Phase,
		Percent:    int(row.Percent),
		Message:    row.Message,
		ErrorKind:  row.ErrorKind,
		Error:      row.Error,
		SandboxID:  row.SandboxID,
		Partial:    row.Partial != 0,
		Extracted:  int(row.Extracted),
		Merged:     int(row.Merged),
		Unfollowed: int(row.Unfollowed),
		Refollowed: int(row.Refollowed),
		CreatedAt:  time.Unix(row.CreatedAt, 0).In(timezone.Location),
	}
	if row.StartedAt != 0 {
		job.StartedAt = time.Unix(row.StartedAt, 0).In(timezone.Location)
	}
	if row.CompletedAt != 0 {
		job.CompletedAt = time.Unix(row.CompletedAt, 0).In(timezone.Location)
	}
	return job
}

func (s *Service) GetStatus(ctx context.Context, jobID string) (ScanJob, error) {
	row, err := s.qry.GetScanJob(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanJob{}, ErrJobNotFound
	}
	if err != nil {
		return ScanJob{}, err
	}
	return jobFromRow(row), nil
}

func (s *Service) ListJobs(ctx context.Context, owner string, limit int) ([]ScanJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.qry.ListScanJobs(ctx, db.ListScanJobsParams{
		Owner: owner,
		Limit: int64(limit),
	})
	if err != nil {
		return nil, err
	}
	jobs := make([]ScanJob, len(rows))
	for i, row := range rows {
		jobs[i] = jobFromRow(row)
	}
	return jobs, nil
}

// Followers exposes the stored snapshot for the owner's target.
func (s *Service) Followers(ctx context.Context, owner, target string) ([]followerstore.FollowerRecord, error) {
	return s.store.Followers(ctx, owner, target)
}

// Events exposes the derived unfollow/refollow history for the owner's target.
func (s *Service) Events(ctx context.Context, owner, target string) ([]followerstore.UnfollowerEvent, error) {
	return s.store.Events(ctx, owner, target)
}
