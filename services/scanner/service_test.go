package scanner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"followtrace-backend/lib/followerstore"
	followerdb "followtrace-backend/lib/followerstore/db"
	"followtrace-backend/lib/testutil"
	"followtrace-backend/lib/timezone"
	"followtrace-backend/services/keychain"
	keychaindb "followtrace-backend/services/keychain/db"
	"followtrace-backend/services/ledger"
	ledgerdb "followtrace-backend/services/ledger/db"
	"followtrace-backend/services/scanner/db"
	"followtrace-backend/services/scanner/executor"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(req executor.Request) (executor.Result, error)
}

func (f *fakeExecutor) Extract(ctx context.Context, req executor.Request) (executor.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeReleaser) Release(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, sandboxID)
	return nil
}

func records(usernames ...string) []followerstore.ProfileRecord {
	out := make([]followerstore.ProfileRecord, len(usernames))
	for i, u := range usernames {
		out[i] = followerstore.ProfileRecord{Username: u, DisplayName: strings.ToUpper(u)}
	}
	return out
}

type fixture struct {
	service  *Service
	ledger   ledger.Service
	keychain keychain.Service
	exec     *fakeExecutor
	releaser *fakeReleaser
}

func setupScanner(t *testing.T, ctx context.Context, quota int64) fixture {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name: "services/scanner",
		DbSchema: strings.Join([]string{
			db.Schema,
			followerdb.Schema,
			ledgerdb.Schema,
			keychaindb.Schema,
		}, "\n"),
	})
	t.Cleanup(cleanup)

	ledgerService := ledger.NewService(setup.DB, ledger.Options{
		DefaultQuotas: map[string]int64{ledger.KindExtractedProfiles: quota},
	})
	keychainService := keychain.NewService(ctx, setup.DB)

	exec := &fakeExecutor{}
	releaser := &fakeReleaser{}
	service := NewService(ctx, setup.DB, Collaborators{
		Ledger:   ledgerService,
		Keychain: keychainService,
		Executors: map[string]executor.Executor{
			executor.MethodDirectAPI:      exec,
			executor.MethodSandboxBrowser: exec,
		},
		Releaser: releaser,
	}, Options{
		RetryBackoff: time.Millisecond,
	})
	t.Cleanup(service.Shutdown)

	return fixture{
		service:  service,
		ledger:   ledgerService,
		keychain: keychainService,
		exec:     exec,
		releaser: releaser,
	}
}

func seedCredentials(t *testing.T, ctx context.Context, f fixture, owner string) {
	err := f.keychain.Set(ctx, owner, keychain.Credentials{
		AccessToken:   "tok",
		SessionCookie: "session=abc",
	})
	require.NoError(t, err)
}

func waitForTerminal(t *testing.T, ctx context.Context, service *Service, jobID string) ScanJob {
	for i := 0; i < 200; i++ {
		job, err := service.GetStatus(ctx, jobID)
		require.NoError(t, err)
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			return job
		}
		time.Sleep(time.Millisecond * 10)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return ScanJob{}
}

func TestScanLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	// first scan establishes the baseline without events
	{
		f.exec.fn = func(req executor.Request) (executor.Result, error) {
			require.Equal(t, "bigaccount", req.Target)
			require.Equal(t, "tok", req.Credentials.AccessToken)
			return executor.Result{Records: records("alice", "bob", "carol")}, nil
		}

		result, err := f.service.StartScan(ctx, StartScanRequest{
			Owner:  "owner",
			Target: "bigaccount",
			Method: executor.MethodDirectAPI,
		})
		require.NoError(t, err)
		require.True(t, result.Accepted)

		job := waitForTerminal(t, ctx, f.service, result.JobID)
		require.Equal(t, StatusCompleted, job.Status)
		require.Equal(t, 3, job.Extracted)
		require.Equal(t, 3, job.Merged)
		require.Zero(t, job.Unfollowed)
		require.Equal(t, "baseline established", job.Message)

		usage, err := f.ledger.GetUsage(ctx, "owner", ledger.KindExtractedProfiles)
		require.NoError(t, err)
		require.EqualValues(t, 3, usage.Used)
	}

	// second scan sees bob gone and derives the event
	{
		f.exec.fn = func(req executor.Request) (executor.Result, error) {
			return executor.Result{Records: records("alice", "carol")}, nil
		}

		result, err := f.service.StartScan(ctx, StartScanRequest{
			Owner:  "owner",
			Target: "bigaccount",
			Method: executor.MethodDirectAPI,
		})
		require.NoError(t, err)
		require.True(t, result.Accepted)

		job := waitForTerminal(t, ctx, f.service, result.JobID)
		require.Equal(t, StatusCompleted, job.Status)
		require.Equal(t, 1, job.Unfollowed)
		require.Zero(t, job.Refollowed)

		events, err := f.service.Events(ctx, "owner", "bigaccount")
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "bob", events[0].Username)
		require.Equal(t, followerstore.EventUnfollowed, events[0].EventType)

		usage, err := f.ledger.GetUsage(ctx, "owner", ledger.KindExtractedProfiles)
		require.NoError(t, err)
		require.EqualValues(t, 5, usage.Used)
	}
}

func TestStartScanCoalesces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	release := make(chan struct{})
	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		<-release
		return executor.Result{Records: records("alice")}, nil
	}

	first, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	// same pair while the job is live lands on the live job
	second, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	require.False(t, second.Accepted)
	require.Equal(t, first.JobID, second.JobID)

	// a different target is its own job
	third, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "otheraccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	require.True(t, third.Accepted)
	require.NotEqual(t, first.JobID, third.JobID)

	close(release)
	job := waitForTerminal(t, ctx, f.service, first.JobID)
	require.Equal(t, StatusCompleted, job.Status)

	// once terminal, the pair admits a fresh job
	fourth, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	require.True(t, fourth.Accepted)
	require.NotEqual(t, first.JobID, fourth.JobID)
	waitForTerminal(t, ctx, f.service, fourth.JobID)
}

func TestStartScanConcurrentBurst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	release := make(chan struct{})
	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		<-release
		return executor.Result{Records: records("alice")}, nil
	}

	// a burst of identical starts must collapse onto one job
	type outcome struct {
		res StartScanResult
		err error
	}
	results := make(chan outcome, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.StartScan(ctx, StartScanRequest{
				Owner:  "owner",
				Target: "bigaccount",
				Method: executor.MethodDirectAPI,
			})
			results <- outcome{res, err}
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	jobIDs := map[string]bool{}
	for out := range results {
		require.NoError(t, out.err)
		if out.res.Accepted {
			accepted++
		}
		jobIDs[out.res.JobID] = true
	}
	require.Equal(t, 1, accepted)
	require.Len(t, jobIDs, 1)

	close(release)
	for jobID := range jobIDs {
		job := waitForTerminal(t, ctx, f.service, jobID)
		require.Equal(t, StatusCompleted, job.Status)
	}
	require.Equal(t, 1, f.exec.callCount())
}

func TestStartScanValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	f := setupScanner(t, ctx, 100000)

	_, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "not a handle!",
		Method: executor.MethodDirectAPI,
	})
	require.Error(t, err)

	_, err = f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: "carrier-pigeon",
	})
	require.Error(t, err)

	_, err = f.service.GetStatus(ctx, "no-such-job")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestStartScanAdmissionDenied(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	f := setupScanner(t, ctx, 10)

	_, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:    "owner",
		Target:   "bigaccount",
		Method:   executor.MethodDirectAPI,
		MaxItems: 500,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindAdmissionDenied, executor.KindOf(err))
	require.Zero(t, f.exec.callCount())
}

func TestScanAuthRequired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	// no credentials seeded

	result, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	job := waitForTerminal(t, ctx, f.service, result.JobID)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, string(executor.KindAuthRequired), job.ErrorKind)
	// credential failures are never retried against the backend
	require.Zero(t, f.exec.callCount())
}

func TestScanRetriesBoundedOnTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		return executor.Result{}, executor.NewError(
			executor.KindExtractionTimeout, "sandbox never finished")
	}

	result, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, ctx, f.service, result.JobID)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, string(executor.KindExtractionTimeout), job.ErrorKind)
	require.Equal(t, maxTimeoutAttempts, f.exec.callCount())
}

func TestScanTimeoutSalvagesPartial(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	// a timed-out run still hands back whatever the backend pulled
	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		return executor.Result{
			Records:   records("alice", "bob"),
			Partial:   true,
			SandboxID: "sbx9",
		}, executor.NewError(executor.KindExtractionTimeout, "sandbox never finished")
	}

	result, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodSandboxBrowser,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, ctx, f.service, result.JobID)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, string(executor.KindExtractionTimeout), job.ErrorKind)
	require.True(t, job.Partial)
	require.Equal(t, 2, job.Extracted)
	require.Equal(t, 2, job.Merged)
	require.Equal(t, "sbx9", job.SandboxID)
	require.Equal(t, maxTimeoutAttempts, f.exec.callCount())

	// the salvaged records reach the snapshot, nothing fabricates events
	followers, err := f.service.Followers(ctx, "owner", "bigaccount")
	require.NoError(t, err)
	require.Len(t, followers, 2)

	events, err := f.service.Events(ctx, "owner", "bigaccount")
	require.NoError(t, err)
	require.Empty(t, events)

	usage, err := f.ledger.GetUsage(ctx, "owner", ledger.KindExtractedProfiles)
	require.NoError(t, err)
	require.EqualValues(t, 2, usage.Used)
}

func TestScanRetriesBoundedOnProvisioning(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		return executor.Result{}, executor.NewError(
			executor.KindProvisioningFailed, "no capacity")
	}

	result, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, ctx, f.service, result.JobID)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, string(executor.KindProvisioningFailed), job.ErrorKind)
	require.Equal(t, maxProvisionAttempts, f.exec.callCount())
}

func TestScanRecoversAfterTransientFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		if f.exec.callCount() == 1 {
			return executor.Result{}, executor.NewError(
				executor.KindProvisioningFailed, "no capacity")
		}
		return executor.Result{Records: records("alice")}, nil
	}

	result, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, ctx, f.service, result.JobID)
	require.Equal(t, StatusCompleted, job.Status)
	require.Equal(t, 2, f.exec.callCount())
}

func TestPartialExtractionSkipsReconciliation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		return executor.Result{Records: records("alice", "bob", "carol")}, nil
	}
	first, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)
	waitForTerminal(t, ctx, f.service, first.JobID)

	// a truncated second pass merges and debits but must not fabricate
	// unfollow events for the followers it never swept
	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		return executor.Result{Records: records("alice"), Partial: true}, nil
	}
	second, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodDirectAPI,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, ctx, f.service, second.JobID)
	require.Equal(t, StatusCompleted, job.Status)
	require.True(t, job.Partial)
	require.Zero(t, job.Unfollowed)

	events, err := f.service.Events(ctx, "owner", "bigaccount")
	require.NoError(t, err)
	require.Empty(t, events)

	usage, err := f.ledger.GetUsage(ctx, "owner", ledger.KindExtractedProfiles)
	require.NoError(t, err)
	require.EqualValues(t, 4, usage.Used)
}

func TestSandboxLeaseLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		require.Empty(t, req.SandboxID)
		return executor.Result{
			Records:   records("alice"),
			SandboxID: "sbx1",
		}, nil
	}

	first, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "bigaccount",
		Method: executor.MethodSandboxBrowser,
	})
	require.NoError(t, err)
	job := waitForTerminal(t, ctx, f.service, first.JobID)
	require.Equal(t, StatusCompleted, job.Status)

	// within the grace window the warm sandbox goes to the next job
	f.exec.fn = func(req executor.Request) (executor.Result, error) {
		require.Equal(t, "sbx1", req.SandboxID)
		return executor.Result{
			Records:   records("alice"),
			SandboxID: "sbx1",
		}, nil
	}
	second, err := f.service.StartScan(ctx, StartScanRequest{
		Owner:  "owner",
		Target: "otheraccount",
		Method: executor.MethodSandboxBrowser,
	})
	require.NoError(t, err)
	job = waitForTerminal(t, ctx, f.service, second.JobID)
	require.Equal(t, StatusCompleted, job.Status)
	require.Empty(t, f.releaser.released)

	// force the lease past its window and sweep
	_, err = f.service.db.Exec(
		"UPDATE sandbox_leases SET release_after = ? WHERE sandbox_id = 'sbx1'",
		timezone.Now().Add(-time.Minute).Unix(),
	)
	require.NoError(t, err)

	f.service.sweepLeases(ctx)
	require.Equal(t, []string{"sbx1"}, f.releaser.released)

	// released leases are not reclaimable and not swept twice
	require.Empty(t, f.service.reclaimSandbox(ctx, "owner"))
	f.service.sweepLeases(ctx)
	require.Equal(t, []string{"sbx1"}, f.releaser.released)
}
