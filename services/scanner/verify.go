package scanner

import (
	"context"
	"errors"
	"strings"
	"followtrace-backend/lib/batchutil"
	"followtrace-backend/lib/followerstore"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	verifyBatchSize   = 50
	verifyConcurrency = 5
	// edit distance above this is noise, not a typo
	maxSuggestionDistance = 2
)

type VerifyResult struct {
	Username string `json:"username"`
	Exists   bool   `json:"exists"`
	// populated for usernames that resolved
	Profile *followerstore.ProfileRecord `json:"profile,omitempty"`
	// nearest resolved username for ones that did not, when close enough
	Suggestion string `json:"suggestion,omitempty"`
	// lookup failure, distinct from a clean "does not exist"
	Error string `json:"error,omitempty"`
}

// VerifyUsernames resolves a list of usernames against ground truth in
// bounded concurrent batches. unresolved usernames get the closest
// resolved one as a typo suggestion. one failing batch never sinks the
// rest of the input.
func (s *Service) VerifyUsernames(ctx context.Context, owner string, usernames []string) ([]VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "VerifyUsernames")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.Int("usernames", len(usernames)),
	)

	fail := func(err error) ([]VerifyResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.checker == nil {
		return fail(errors.New("no profile checker configured"))
	}

	creds, err := s.keychain.Get(ctx, owner)
	if err != nil {
		return fail(err)
	}

	batches := batchutil.RunBatches(
		ctx, usernames, verifyBatchSize, verifyConcurrency,
		func(ctx context.Context, idx int, items []string) ([]VerifyResult, error) {
			out := make([]VerifyResult, 0, len(items))
			for _, username := range items {
				if !handleRe.MatchString(username) {
					out = append(out, VerifyResult{
						Username: username,
						Error:    "not a valid handle",
					})
					continue
				}
				profile, err := s.checker.CheckProfile(ctx, username, creds)
				if err != nil {
					out = append(out, VerifyResult{
						Username: username,
						Error:    err.Error(),
					})
					continue
				}
				out = append(out, VerifyResult{
					Username: username,
					Exists:   profile != nil,
					Profile:  profile,
				})
			}
			return out, nil
		},
	)

	var results []VerifyResult
	var resolved []string
	for _, batch := range batches {
		if batch.Err != nil {
			for _, username := range batch.Items {
				results = append(results, VerifyResult{
					Username: username,
					Error:    batch.Err.Error(),
				})
			}
			continue
		}
		for _, r := range batch.Results {
			if r.Exists {
				resolved = append(resolved, r.Username)
			}
			results = append(results, r)
		}
	}

	for i := range results {
		if results[i].Exists || results[i].Error != "" {
			continue
		}
		results[i].Suggestion = nearestUsername(results[i].Username, resolved)
	}

	span.SetAttributes(attribute.Int("resolved", len(resolved)))
	return results, nil
}

// nearestUsername picks the resolved username closest in edit distance,
// empty when nothing is close enough to plausibly be a typo.
func nearestUsername(username string, resolved []string) string {
	best := ""
	bestDistance := maxSuggestionDistance + 1
	for _, candidate := range resolved {
		distance := matchr.Levenshtein(
			strings.ToLower(username), strings.ToLower(candidate))
		if distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	return best
}
