package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriod(t *testing.T) {
	cases := []struct {
		now    time.Time
		expect string
	}{
		{
			now:    time.Date(2024, time.August, 26, 13, 30, 0, 0, Location),
			expect: "2024-08",
		},
		{
			now:    time.Date(2024, time.December, 31, 23, 59, 59, 0, Location),
			expect: "2024-12",
		},
		{
			now:    time.Date(2025, time.January, 1, 0, 0, 0, 0, Location),
			expect: "2025-01",
		},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, Period(test.now))
	}
}

func TestStartOfNextPeriod(t *testing.T) {
	now := time.Date(2024, time.December, 14, 8, 0, 0, 0, Location)
	next := StartOfNextPeriod(now)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, Location), next)
	require.Equal(t, "2025-01", Period(next))
}
