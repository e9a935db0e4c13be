package scanner

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/services/keychain"

	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	known map[string]bool
	fail  map[string]bool
}

func (f *fakeChecker) CheckProfile(ctx context.Context, username string, creds keychain.Credentials) (*followerstore.ProfileRecord, error) {
	if f.fail[username] {
		return nil, errors.New("lookup blew up")
	}
	if !f.known[username] {
		return nil, nil
	}
	return &followerstore.ProfileRecord{Username: username}, nil
}

func TestVerifyUsernames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	f.service.checker = &fakeChecker{
		known: map[string]bool{"alice": true, "bobby": true},
		fail:  map[string]bool{"flaky": true},
	}

	results, err := f.service.VerifyUsernames(ctx, "owner", []string{
		"alice", "boby", "flaky", "zzzzzzzz", "not a handle!",
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	byName := map[string]VerifyResult{}
	for _, r := range results {
		byName[r.Username] = r
	}

	require.True(t, byName["alice"].Exists)
	require.NotNil(t, byName["alice"].Profile)

	// one edit away from a resolved username
	require.False(t, byName["boby"].Exists)
	require.Equal(t, "bobby", byName["boby"].Suggestion)

	// lookup failures are reported, never guessed at
	require.False(t, byName["flaky"].Exists)
	require.NotEmpty(t, byName["flaky"].Error)
	require.Empty(t, byName["flaky"].Suggestion)

	// nothing plausibly close
	require.False(t, byName["zzzzzzzz"].Exists)
	require.Empty(t, byName["zzzzzzzz"].Suggestion)

	require.NotEmpty(t, byName["not a handle!"].Error)
}

func TestVerifyUsernamesSpansBatches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	f := setupScanner(t, ctx, 100000)
	seedCredentials(t, ctx, f, "owner")

	known := map[string]bool{}
	var usernames []string
	for i := 0; i < 230; i++ {
		username := "user" + strconv.Itoa(i)
		known[username] = i%2 == 0
		usernames = append(usernames, username)
	}
	f.service.checker = &fakeChecker{known: known}

	results, err := f.service.VerifyUsernames(ctx, "owner", usernames)
	require.NoError(t, err)
	require.Len(t, results, 230)

	resolved := 0
	for _, r := range results {
		if r.Exists {
			resolved++
		}
	}
	require.Equal(t, 115, resolved)
}
