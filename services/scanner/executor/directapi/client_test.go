package directapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"followtrace-backend/services/keychain"
	"followtrace-backend/services/scanner/executor"
	"followtrace-backend/services/scanner/executor/directapi"

	"github.com/stretchr/testify/require"
)

// serves a fixed audience of `total` followers in cursor pages
func newFakeApi(t *testing.T, total int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/bigaccount/followers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		offset := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			var err error
			offset, err = strconv.Atoi(cursor)
			require.NoError(t, err)
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)

		end := offset + limit
		if end > total {
			end = total
		}
		users := []map[string]any{}
		for i := offset; i < end; i++ {
			users = append(users, map[string]any{
				"username":       "user" + strconv.Itoa(i),
				"follower_count": i,
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"users":       users,
			"next_cursor": strconv.Itoa(end),
			"has_more":    end < total,
		}))
	})
	return mux
}

var creds = keychain.Credentials{AccessToken: "tok"}

func TestExtractPaginates(t *testing.T) {
	server := httptest.NewServer(newFakeApi(t, 230))
	defer server.Close()

	client := directapi.NewClient(directapi.Config{
		BaseUrl:  server.URL,
		PageSize: 100,
	})

	result, err := client.Extract(context.Background(), executor.Request{
		Owner:       "owner1",
		Target:      "bigaccount",
		MaxItems:    1000,
		Credentials: creds,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 230)
	require.False(t, result.Partial)
	require.Equal(t, "user0", result.Records[0].Username)
	require.Equal(t, "user229", result.Records[229].Username)
}

func TestExtractHonorsMaxItems(t *testing.T) {
	server := httptest.NewServer(newFakeApi(t, 230))
	defer server.Close()

	client := directapi.NewClient(directapi.Config{
		BaseUrl:  server.URL,
		PageSize: 100,
	})

	result, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		MaxItems:    150,
		Credentials: creds,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 150)
	// items remain beyond the cap, the set must not be diffed
	require.True(t, result.Partial)
}

func TestExtractNoToken(t *testing.T) {
	server := httptest.NewServer(newFakeApi(t, 10))
	defer server.Close()

	client := directapi.NewClient(directapi.Config{BaseUrl: server.URL})

	_, err := client.Extract(context.Background(), executor.Request{
		Target: "bigaccount",
	})
	require.Error(t, err)
	require.Equal(t, executor.KindAuthRequired, executor.KindOf(err))
}

func TestExtractRejectedToken(t *testing.T) {
	server := httptest.NewServer(newFakeApi(t, 10))
	defer server.Close()

	client := directapi.NewClient(directapi.Config{BaseUrl: server.URL})

	_, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: keychain.Credentials{AccessToken: "stale"},
	})
	require.Error(t, err)
	require.Equal(t, executor.KindAuthRequired, executor.KindOf(err))
	require.False(t, executor.Retryable(executor.KindOf(err)))
}

func TestCheckProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username": "alice", "display_name": "Alice A", "follower_count": 12}`))
	})
	mux.HandleFunc("GET /v1/users/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := directapi.NewClient(directapi.Config{BaseUrl: server.URL})

	{
		record, err := client.CheckProfile(context.Background(), "alice", creds)
		require.NoError(t, err)
		require.NotNil(t, record)
		require.Equal(t, "Alice A", record.DisplayName)
	}
	{
		// missing profile is a result, not an error
		record, err := client.CheckProfile(context.Background(), "ghost", creds)
		require.NoError(t, err)
		require.Nil(t, record)
	}
}
