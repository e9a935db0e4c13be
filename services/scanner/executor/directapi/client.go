package directapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/telemetry"
	"followtrace-backend/services/scanner/executor"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scanner/executor/directapi")

const defaultPageSize = 200

type Config struct {
	// first party metrics api
	BaseUrl string `json:"base_url"`
	// public web profile pages, used when no access token is available
	WebBaseUrl string `json:"web_base_url"`
	PageSize   int    `json:"page_size"`
}

// Client talks to the platform's first party metrics api. a single
// low-latency call per page, no provisioning and no polling. it doubles
// as the ground truth profile check for bulk verification.
type Client struct {
	config Config
	http   *resty.Client
	web    *resty.Client
}

func NewClient(config Config) *Client {
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}

	client := resty.New()
	client.SetBaseURL(config.BaseUrl)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scanner/executor/directapi/http")

	web := newWebClient(config.WebBaseUrl)

	return &Client{
		config: config,
		http:   client,
		web:    web,
	}
}

type apiProfile struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	Bio            string `json:"bio"`
	Verified       bool   `json:"verified"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	Location       string `json:"location"`
	AvatarUrl      string `json:"avatar_url"`
}

func (p apiProfile) toRecord() followerstore.ProfileRecord {
	return followerstore.ProfileRecord{
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

type followersPage struct {
	Users      []apiProfile `json:"users"`
	NextCursor string       `json:"next_cursor"`
	HasMore    bool         `json:"has_more"`
}

func classifyStatus(res *resty.Response) error {
	switch res.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return executor.NewError(
			executor.KindAuthRequired,
			"metrics api rejected the access token",
		)
	case http.StatusNotFound:
		return executor.NewError(executor.KindInternal, "target does not exist")
	}
	return executor.NewError(
		executor.KindInternal,
		fmt.Sprintf("metrics api returned status %d", res.StatusCode()),
	)
}

func (c *Client) Extract(ctx context.Context, req executor.Request) (executor.Result, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", req.Target),
		attribute.Int("max_items", req.MaxItems),
	)

	fail := func(err error) (executor.Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return executor.Result{}, err
	}

	if req.Credentials.AccessToken == "" {
		return fail(executor.NewError(
			executor.KindAuthRequired,
			"no access token for the metrics api",
		))
	}

	var records []followerstore.ProfileRecord
	cursor := ""
	hasMore := false

	for len(records) < req.MaxItems {
		pageSize := c.config.PageSize
		if remaining := req.MaxItems - len(records); remaining < pageSize {
			pageSize = remaining
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(req.Credentials.AccessToken).
			SetQueryParam("limit", strconv.Itoa(pageSize)).
			SetQueryParam("cursor", cursor).
			Get(fmt.Sprintf("/v1/users/%s/followers", req.Target))
		if err != nil {
			return fail(executor.ClassifyTransport("metrics api call failed", err))
		}
		if res.StatusCode() != http.StatusOK {
			return fail(classifyStatus(res))
		}

		var page followersPage
		err = json.Unmarshal(res.Body(), &page)
		if err != nil {
			return fail(executor.WrapError(
				executor.KindParseFailure,
				"metrics api returned malformed json",
				err,
			))
		}

		for _, p := range page.Users {
			records = append(records, p.toRecord())
		}
		hasMore = page.HasMore

		if !page.HasMore || len(page.Users) == 0 {
			break
		}
		cursor = page.NextCursor
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Bool("partial", hasMore),
	)

	return executor.Result{
		Records: records,
		// the audience is larger than what we were allowed to pull,
		// the set is incomplete for diffing purposes
		Partial: hasMore,
	}, nil
}
