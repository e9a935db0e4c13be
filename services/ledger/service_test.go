package ledger

import (
	"context"
	"testing"
	"time"
	"followtrace-backend/lib/testutil"
	"followtrace-backend/services/ledger/db"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestService(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB, Options{
		DefaultQuotas: map[string]int64{KindExtractedProfiles: 1000},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	// default quota applies before billing seeds anything
	{
		ok, err := service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 1000)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 1001)
		require.NoError(t, err)
		require.False(t, ok)
	}

	// debit records the actual amount, not the requested one
	{
		err := service.Debit(ctx, "owner", KindExtractedProfiles, 230, DebitMetadata{
			JobID: "job-1",
		})
		require.NoError(t, err)

		usage, err := service.GetUsage(ctx, "owner", KindExtractedProfiles)
		require.NoError(t, err)
		require.EqualValues(t, 230, usage.Used)

		ok, err := service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 771)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 770)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// zero debits are a no-op
	{
		err := service.Debit(ctx, "owner", KindExtractedProfiles, 0, DebitMetadata{})
		require.NoError(t, err)

		usage, err := service.GetUsage(ctx, "owner", KindExtractedProfiles)
		require.NoError(t, err)
		require.EqualValues(t, 230, usage.Used)
	}

	// a seeded quota overrides the default
	{
		err := service.SetQuota(ctx, "owner", KindExtractedProfiles, 240)
		require.NoError(t, err)

		ok, err := service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 11)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = service.CheckAdmission(ctx, "owner", KindExtractedProfiles, 10)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// other owners are unaffected
	{
		ok, err := service.CheckAdmission(ctx, "other-owner", KindExtractedProfiles, 900)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// an explicit zero quota binds, it does not fall back to the default
	{
		err := service.SetQuota(ctx, "suspended", KindExtractedProfiles, 0)
		require.NoError(t, err)

		usage, err := service.GetUsage(ctx, "suspended", KindExtractedProfiles)
		require.NoError(t, err)
		require.EqualValues(t, 0, usage.Quota)

		ok, err := service.CheckAdmission(ctx, "suspended", KindExtractedProfiles, 1)
		require.NoError(t, err)
		require.False(t, ok)
	}
}
