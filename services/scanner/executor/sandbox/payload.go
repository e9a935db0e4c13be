package sandbox

import (
	"encoding/json"
	"fmt"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/services/scanner/executor"

	"github.com/santhosh-tekuri/jsonschema/v5"

	_ "embed"
)

//go:embed result_schema.json
var resultSchemaSource string

// the contract between the daemon and the sandboxed script: a single
// json file with a fixed schema, instead of fishing payloads out of
// free-form log text
var resultSchema = jsonschema.MustCompileString("result_schema.json", resultSchemaSource)

type resultPayload struct {
	Target   string `json:"target"`
	Partial  bool   `json:"partial"`
	Profiles []struct {
		Username       string `json:"username"`
		DisplayName    string `json:"display_name"`
		Bio            string `json:"bio"`
		Verified       bool   `json:"verified"`
		FollowerCount  int64  `json:"follower_count"`
		FollowingCount int64  `json:"following_count"`
		Location       string `json:"location"`
		AvatarUrl      string `json:"avatar_url"`
	} `json:"profiles"`
}

func parsePayload(raw []byte, target string) ([]followerstore.ProfileRecord, bool, error) {
	var generic any
	err := json.Unmarshal(raw, &generic)
	if err != nil {
		return nil, false, executor.WrapError(
			executor.KindParseFailure,
			"result file is not valid json",
			err,
		)
	}
	err = resultSchema.Validate(generic)
	if err != nil {
		return nil, false, executor.WrapError(
			executor.KindParseFailure,
			"result file does not match the result schema",
			err,
		)
	}

	var payload resultPayload
	err = json.Unmarshal(raw, &payload)
	if err != nil {
		return nil, false, executor.WrapError(
			executor.KindParseFailure,
			"result file could not be decoded",
			err,
		)
	}
	if payload.Target != target {
		return nil, false, executor.NewError(
			executor.KindParseFailure,
			fmt.Sprintf("result file is for target %q, wanted %q", payload.Target, target),
		)
	}

	records := make([]followerstore.ProfileRecord, len(payload.Profiles))
	for i, p := range payload.Profiles {
		records[i] = followerstore.ProfileRecord{
			Username:       p.Username,
			DisplayName:    p.DisplayName,
			Bio:            p.Bio,
			Verified:       p.Verified,
			FollowerCount:  p.FollowerCount,
			FollowingCount: p.FollowingCount,
			Location:       p.Location,
			AvatarUrl:      p.AvatarUrl,
		}
	}
	return records, payload.Partial, nil
}
