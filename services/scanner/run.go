package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/ledger"
	"followtrace-backend/services/scanner/db"
	"followtrace-backend/services/scanner/executor"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxProvisionAttempts = 3
	maxTimeoutAttempts   = 2
)

func (s *Service) progress(ctx context.Context, jobID, phase string, percent int, message string) {
	err := s.qry.UpdateScanJobProgress(ctx, db.UpdateScanJobProgressParams{
		Phase:   phase,
		Percent: int64(percent),
		Message: message,
		ID:      jobID,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to write job progress", "job", jobID, "err", err)
	}
}

func (s *Service) failJob(ctx context.Context, jobID string, kind executor.Kind, err error) {
	slog.WarnContext(ctx, "scan job failed",
		"job", jobID, "kind", string(kind), "err", err)
	dbErr := s.qry.FailScanJob(ctx, db.FailScanJobParams{
		ErrorKind:   string(kind),
		Error:       err.Error(),
		CompletedAt: timezone.Now().Unix(),
		ID:          jobID,
	})
	if dbErr != nil {
		slog.ErrorContext(ctx, "failed to persist job failure", "job", jobID, "err", dbErr)
	}
}

// extract runs the backend with bounded retries. transient provisioning
// trouble is retried with a growing backoff, a timed-out extraction gets
// exactly one more chance, everything else fails immediately. on failure
// the last attempt's result rides along with the error so salvaged
// records and the sandbox handle survive.
func (s *Service) extract(ctx context.Context, exec executor.Executor, req executor.Request) (executor.Result, error) {
	provisionAttempts := 0
	timeoutAttempts := 0

	for {
		result, err := exec.Extract(ctx, req)
		if err == nil {
			return result, nil
		}

		kind := executor.KindOf(err)
		if !executor.Retryable(kind) {
			return result, err
		}

		switch kind {
		case executor.KindProvisioningFailed:
			provisionAttempts++
			if provisionAttempts >= maxProvisionAttempts {
				return result, err
			}
		case executor.KindExtractionTimeout:
			timeoutAttempts++
			if timeoutAttempts >= maxTimeoutAttempts {
				return result, err
			}
			// a fresh attempt must not inherit a half-dead sandbox
			req.SandboxID = ""
		}

		backoff := s.opts.RetryBackoff * time.Duration(provisionAttempts+timeoutAttempts)
		slog.WarnContext(ctx, "extraction attempt failed, retrying",
			"kind", string(kind), "backoff", backoff, "err", err)

		select {
		case <-ctx.Done():
			return result, executor.WrapError(
				executor.KindExtractionTimeout,
				"cancelled between extraction attempts",
				ctx.Err(),
			)
		case <-time.After(backoff):
		}
	}
}

// salvagePartial merges whatever a failed extraction still delivered.
// the set is incomplete so reconciliation stays off, the merge keeps the
// snapshot as fresh as the records we did get and the debit covers them.
func (s *Service) salvagePartial(ctx context.Context, jobID string, job db.ScanJob, result executor.Result) {
	slog.WarnContext(ctx, "salvaging records from failed extraction",
		"job", jobID, "extracted", len(result.Records))

	merged, err := s.store.Merge(
		ctx, job.Owner, job.Target, job.Method, result.Records, timezone.Now())
	if err != nil {
		slog.WarnContext(ctx, "failed to merge salvaged records", "job", jobID, "err", err)
		return
	}

	err = s.ledger.Debit(ctx, job.Owner, ledger.KindExtractedProfiles, int64(merged),
		ledger.DebitMetadata{
			JobID: jobID,
			Note:  fmt.Sprintf("partial scan of %s via %s", job.Target, job.Method),
		})
	if err != nil {
		slog.WarnContext(ctx, "failed to debit salvaged records", "job", jobID, "err", err)
	}

	err = s.qry.RecordScanJobSalvage(ctx, db.RecordScanJobSalvageParams{
		Extracted: int64(len(result.Records)),
		Merged:    int64(merged),
		ID:        jobID,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to record salvaged counts", "job", jobID, "err", err)
	}
}

func (s *Service) runScan(ctx context.Context, jobID string) {
	ctx, span := tracer.Start(ctx, "runScan")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID))

	job, err := s.qry.GetScanJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "spawned job row missing", "job", jobID, "err", err)
		return
	}

	// guarded transition, a job someone else already moved is not ours
	rows, err := s.qry.MarkScanJobRunning(ctx, db.MarkScanJobRunningParams{
		Phase:     "credentials",
		StartedAt: timezone.Now().Unix(),
		ID:        jobID,
	})
	if err != nil || rows == 0 {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	fail := func(kind executor.Kind, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.failJob(ctx, jobID, kind, err)
	}

	creds, err := s.keychain.Get(ctx, job.Owner)
	if err != nil {
		fail(executor.KindInternal, err)
		return
	}
	if creds.Empty() {
		fail(executor.KindAuthRequired,
			fmt.Errorf("no stored credentials for owner %q", job.Owner))
		return
	}

	exec, ok := s.executors[job.Method]
	if !ok {
		fail(executor.KindInternal,
			fmt.Errorf("no backend registered for method %q", job.Method))
		return
	}

	req := executor.Request{
		Owner:       job.Owner,
		Target:      job.Target,
		MaxItems:    int(job.MaxItems),
		Credentials: creds,
	}
	if job.Method == executor.MethodSandboxBrowser {
		req.SandboxID = s.reclaimSandbox(ctx, job.Owner)
	}

	s.progress(ctx, jobID, "extract", 10, fmt.Sprintf("extracting followers of %s", job.Target))

	result, err := s.extract(ctx, exec, req)
	if result.SandboxID != "" {
		// record the handle even on failure so operators can find the box
		dbErr := s.qry.SetScanJobSandbox(ctx, db.SetScanJobSandboxParams{
			SandboxID: result.SandboxID,
			ID:        jobID,
		})
		if dbErr != nil {
			slog.WarnContext(ctx, "failed to record sandbox id", "job", jobID, "err", dbErr)
		}
	}
	if err != nil {
		if len(result.Records) > 0 {
			s.salvagePartial(ctx, jobID, job, result)
		}
		fail(executor.KindOf(err), err)
		return
	}
	if result.SandboxID != "" {
		s.leaseSandbox(ctx, jobID, job.Owner, result.SandboxID)
	}

	now := timezone.Now()

	s.progress(ctx, jobID, "merge", 60,
		fmt.Sprintf("merging %d extracted profiles", len(result.Records)))

	merged, err := s.store.Merge(ctx, job.Owner, job.Target, job.Method, result.Records, now)
	if err != nil {
		fail(executor.KindInternal, err)
		return
	}

	stats := followerstore.ReconcileStats{}
	message := ""
	if result.Partial {
		// an incomplete set diffed against the snapshot would flag
		// every unseen follower as an unfollow
		message = "partial extraction, reconciliation skipped"
		slog.WarnContext(ctx, "partial extraction, skipping reconciliation",
			"job", jobID, "target", job.Target, "extracted", len(result.Records))
	} else {
		s.progress(ctx, jobID, "reconcile", 80, "deriving unfollow events")

		usernames := make([]string, len(result.Records))
		for i, r := range result.Records {
			usernames[i] = r.Username
		}
		stats, err = s.store.Reconcile(ctx, job.Owner, job.Target, usernames, now)
		if err != nil {
			fail(executor.KindInternal, err)
			return
		}

		switch {
		case stats.Baseline:
			message = "baseline established"
		default:
			message = fmt.Sprintf(
				"%d unfollowed, %d refollowed", stats.Unfollowed, stats.Refollowed)
		}
	}

	err = s.ledger.Debit(ctx, job.Owner, ledger.KindExtractedProfiles, int64(merged),
		ledger.DebitMetadata{
			JobID: jobID,
			Note:  fmt.Sprintf("scan of %s via %s", job.Target, job.Method),
		})
	if err != nil {
		fail(executor.KindInternal, err)
		return
	}

	partial := int64(0)
	if result.Partial {
		partial = 1
	}
	err = s.qry.CompleteScanJob(ctx, db.CompleteScanJobParams{
		Message:     message,
		Partial:     partial,
		Extracted:   int64(len(result.Records)),
		Merged:      int64(merged),
		Unfollowed:  int64(stats.Unfollowed),
		Refollowed:  int64(stats.Refollowed),
		CompletedAt: timezone.Now().Unix(),
		ID:          jobID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to persist job completion", "job", jobID, "err", err)
		return
	}

	span.SetAttributes(
		attribute.Int("extracted", len(result.Records)),
		attribute.Int("merged", merged),
		attribute.Int("unfollowed", stats.Unfollowed),
		attribute.Int("refollowed", stats.Refollowed),
		attribute.Bool("partial", result.Partial),
	)
	slog.InfoContext(ctx, "scan job completed",
		"job", jobID, "target", job.Target,
		"extracted", len(result.Records), "merged", merged,
		"unfollowed", stats.Unfollowed, "refollowed", stats.Refollowed,
		"partial", result.Partial)
}
