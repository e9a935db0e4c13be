package scanner

import (
	"context"
	"log/slog"
	"time"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/scanner/db"
)

// leaseSandbox defers teardown of a still-warm sandbox so a follow-up job
// for the same owner can reuse it within the grace window.
func (s *Service) leaseSandbox(ctx context.Context, jobID, owner, sandboxID string) {
	err := s.qry.CreateSandboxLease(ctx, db.CreateSandboxLeaseParams{
		SandboxID:    sandboxID,
		JobID:        jobID,
		Owner:        owner,
		ReleaseAfter: timezone.Now().Add(s.opts.LeaseGrace).Unix(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to lease sandbox",
			"job", jobID, "sandbox", sandboxID, "err", err)
	}
}

// reclaimSandbox hands an unexpired lease of the owner to a new job. the
// guarded release-flag update doubles as the claim, so the cleanup daemon
// and a racing job can never both take the same sandbox.
func (s *Service) reclaimSandbox(ctx context.Context, owner string) string {
	lease, err := s.qry.GetReclaimableSandboxLease(ctx, db.GetReclaimableSandboxLeaseParams{
		Owner:        owner,
		ReleaseAfter: timezone.Now().Unix(),
	})
	if err != nil {
		return ""
	}
	rows, err := s.qry.MarkSandboxLeaseReleased(ctx, lease.SandboxID)
	if err != nil || rows == 0 {
		return ""
	}
	slog.InfoContext(ctx, "reclaiming warm sandbox",
		"owner", owner, "sandbox", lease.SandboxID)
	return lease.SandboxID
}

func (s *Service) sweepLeases(ctx context.Context) {
	leases, err := s.qry.GetExpiredSandboxLeases(ctx, timezone.Now().Unix())
	if err != nil {
		slog.WarnContext(ctx, "failed to list expired sandbox leases", "err", err)
		return
	}

	for _, lease := range leases {
		// release before flipping the flag, a failed release stays
		// pending and is retried on the next sweep
		err = s.releaser.Release(ctx, lease.SandboxID)
		if err != nil {
			slog.WarnContext(ctx, "sandbox release failed",
				"sandbox", lease.SandboxID, "err", err)
			continue
		}
		_, err = s.qry.MarkSandboxLeaseReleased(ctx, lease.SandboxID)
		if err != nil {
			slog.WarnContext(ctx, "failed to mark lease released",
				"sandbox", lease.SandboxID, "err", err)
			continue
		}
		slog.InfoContext(ctx, "released expired sandbox",
			"sandbox", lease.SandboxID, "job", lease.JobID)
	}
}

func (s *Service) cleanupDaemon(ctx context.Context) {
	if s.releaser == nil {
		return
	}

	slog.InfoContext(ctx, "start daemon", "task", "release expired sandbox leases")

	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepLeases(ctx)
		case <-ctx.Done():
			return
		}
	}
}
