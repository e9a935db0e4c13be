package executor

import (
	"context"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/services/keychain"
)

// extraction methods, one per backend implementation
const (
	MethodDirectAPI       = "direct-api"
	MethodSandboxBrowser  = "sandbox-browser"
	MethodScrapingService = "scraping-service"
)

func ValidMethod(method string) bool {
	switch method {
	case MethodDirectAPI, MethodSandboxBrowser, MethodScrapingService:
		return true
	}
	return false
}

type Request struct {
	Owner       string
	Target      string
	MaxItems    int
	Credentials keychain.Credentials
	// warm sandbox to reuse instead of provisioning a fresh one,
	// only meaningful to the sandbox backend
	SandboxID string
}

type Result struct {
	Records []followerstore.ProfileRecord
	// true when the backend stopped before sweeping the whole follower
	// list. an incomplete set must never be fed to reconciliation.
	Partial bool
	// provisioned compute that outlives the call and needs a deferred
	// release, empty for backends without ephemeral compute
	SandboxID string
}

// Executor is the one capability every extraction backend exposes.
// implementations normalize their output to ProfileRecord so everything
// downstream is backend agnostic.
type Executor interface {
	Extract(ctx context.Context, req Request) (Result, error)
}

// Releaser is implemented by backends whose compute survives the
// extraction call and is torn down later by the coordinator's cleanup.
type Releaser interface {
	Release(ctx context.Context, sandboxID string) error
}
