package sandbox_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"followtrace-backend/services/keychain"
	"followtrace-backend/services/scanner/executor"
	"followtrace-backend/services/scanner/executor/sandbox"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mux        *http.ServeMux
	resultFile string
	execStatus string

	provisioned int
	released    int
	polls       int
	uploaded    bool
}

func newFakeProvider(resultFile string) *fakeProvider {
	f := &fakeProvider{
		mux:        http.NewServeMux(),
		resultFile: resultFile,
		execStatus: "completed",
	}
	f.mux.HandleFunc("POST /v1/sandboxes", func(w http.ResponseWriter, r *http.Request) {
		f.provisioned++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "sbx1", "status": "running"}`)
	})
	f.mux.HandleFunc("GET /v1/sandboxes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "sbx-warm" {
			fmt.Fprint(w, `{"id": "sbx-warm", "status": "running"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	f.mux.HandleFunc("PUT /v1/sandboxes/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		f.uploaded = true
		w.WriteHeader(http.StatusCreated)
	})
	f.mux.HandleFunc("POST /v1/sandboxes/{id}/exec", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "exec1", "status": "running"}`)
	})
	f.mux.HandleFunc("GET /v1/sandboxes/{id}/exec/exec1", func(w http.ResponseWriter, r *http.Request) {
		f.polls++
		fmt.Fprintf(w, `{"id": "exec1", "status": %q, "exit_code": 0}`, f.execStatus)
	})
	f.mux.HandleFunc("GET /v1/sandboxes/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		if f.resultFile == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, f.resultFile)
	})
	f.mux.HandleFunc("DELETE /v1/sandboxes/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.released++
		w.WriteHeader(http.StatusNoContent)
	})
	return f
}

func newClient(url string) *sandbox.Client {
	return sandbox.NewClient(sandbox.Config{
		BaseUrl:      url,
		Token:        "tok",
		Image:        "followtrace/extractor:latest",
		WebBaseUrl:   "https://web.example.com",
		PollInterval: time.Millisecond,
		MaxPolls:     10,
	})
}

var creds = keychain.Credentials{SessionCookie: "session=abc"}

func TestExtract(t *testing.T) {
	fake := newFakeProvider(`{
		"target": "bigaccount",
		"partial": false,
		"profiles": [
			{"username": "alice", "display_name": "Alice A", "follower_count": 12},
			{"username": "bob", "verified": true}
		]
	}`)
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Extract(context.Background(), executor.Request{
		Owner:       "owner1",
		Target:      "bigaccount",
		MaxItems:    100,
		Credentials: creds,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	require.Equal(t, "alice", result.Records[0].Username)
	require.True(t, result.Records[1].Verified)
	require.False(t, result.Partial)

	// the sandbox outlives a successful extraction, teardown belongs
	// to the lease cleanup
	require.Equal(t, "sbx1", result.SandboxID)
	require.True(t, fake.uploaded)
	require.Equal(t, 0, fake.released)
}

func TestExtractNoSessionCookie(t *testing.T) {
	fake := newFakeProvider(`{}`)
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Extract(context.Background(), executor.Request{
		Target: "bigaccount",
	})
	require.Error(t, err)
	require.Equal(t, executor.KindAuthRequired, executor.KindOf(err))
	require.Equal(t, 0, fake.provisioned)
}

func TestExtractMalformedResult(t *testing.T) {
	// profiles entries lacking a username fail schema validation
	fake := newFakeProvider(`{
		"target": "bigaccount",
		"partial": false,
		"profiles": [{"display_name": "nameless"}]
	}`)
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindParseFailure, executor.KindOf(err))
	require.False(t, executor.Retryable(executor.KindOf(err)))
	// a run that produced garbage is torn down immediately
	require.Equal(t, 1, fake.released)
}

func TestExtractWrongTarget(t *testing.T) {
	fake := newFakeProvider(`{"target": "other", "partial": false, "profiles": []}`)
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindParseFailure, executor.KindOf(err))
}

func TestExtractMissingResultFile(t *testing.T) {
	fake := newFakeProvider("")
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindParseFailure, executor.KindOf(err))
}

func TestExtractPollCeiling(t *testing.T) {
	// the execution never finishes and leaves no result file behind
	fake := newFakeProvider("")
	fake.execStatus = "running"
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindExtractionTimeout, executor.KindOf(err))
	require.Empty(t, result.Records)
	require.Equal(t, 10, fake.polls)
	require.Equal(t, 1, fake.released)
}

func TestExtractTimeoutSalvagesPartial(t *testing.T) {
	// the execution stalls but the script flushed records before it did
	fake := newFakeProvider(`{
		"target": "bigaccount",
		"partial": false,
		"profiles": [{"username": "alice"}]
	}`)
	fake.execStatus = "running"
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
	})
	require.Error(t, err)
	require.Equal(t, executor.KindExtractionTimeout, executor.KindOf(err))
	require.Len(t, result.Records, 1)
	require.Equal(t, "alice", result.Records[0].Username)
	require.True(t, result.Partial)
	require.Equal(t, "sbx1", result.SandboxID)
	require.Equal(t, 1, fake.released)
}

func TestExtractReusesWarmSandbox(t *testing.T) {
	fake := newFakeProvider(`{"target": "bigaccount", "partial": true, "profiles": []}`)
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Extract(context.Background(), executor.Request{
		Target:      "bigaccount",
		Credentials: creds,
		SandboxID:   "sbx-warm",
	})
	require.NoError(t, err)
	require.True(t, result.Partial)
	require.Equal(t, "sbx-warm", result.SandboxID)
	require.Equal(t, 0, fake.provisioned)
}

func TestRelease(t *testing.T) {
	fake := newFakeProvider("")
	server := httptest.NewServer(fake.mux)
	defer server.Close()

	client := newClient(server.URL)
	require.NoError(t, client.Release(context.Background(), "sbx1"))
	require.Equal(t, 1, fake.released)
}
