package scrapeservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/telemetry"
	"followtrace-backend/services/scanner/executor"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scanner/executor/scrapeservice")

type Config struct {
	BaseUrl string `json:"base_url"`
	Token   string `json:"token"`
	// id of the follower-scraper actor on the service
	ActorID      string        `json:"actor_id"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
}

// Client submits extraction jobs to a third party scraping service:
// start an actor run, poll the run by id, then pull the result set off
// the dataset endpoint. the service reporting a successful run with
// zero items is a valid empty audience, not a failure.
type Client struct {
	config Config
	http   *resty.Client
}

func NewClient(config Config) *Client {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second * 3
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = 200
	}

	client := resty.New()
	client.SetBaseURL(config.BaseUrl)
	client.SetQueryParam("token", config.Token)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scanner/executor/scrapeservice/http")

	return &Client{
		config: config,
		http:   client,
	}
}

type runData struct {
	Data struct {
		Id               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

type datasetItem struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName"`
	Biography      string `json:"biography"`
	Verified       bool   `json:"verified"`
	FollowersCount int64  `json:"followersCount"`
	FollowsCount   int64  `json:"followsCount"`
	Location       string `json:"location"`
	ProfilePicUrl  string `json:"profilePicUrl"`
}

func (c *Client) startRun(ctx context.Context, req executor.Request) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"target":   req.Target,
			"maxItems": req.MaxItems,
		}).
		Post(fmt.Sprintf("/v2/acts/%s/runs", c.config.ActorID))
	if err != nil {
		return "", executor.ClassifyTransport("failed to start actor run", err)
	}
	switch res.StatusCode() {
	case http.StatusCreated, http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", executor.NewError(
			executor.KindAuthRequired,
			"scraping service rejected the api token",
		)
	default:
		return "", executor.NewError(
			executor.KindProvisioningFailed,
			fmt.Sprintf("actor run start returned status %d", res.StatusCode()),
		)
	}

	var run runData
	err = json.Unmarshal(res.Body(), &run)
	if err != nil || run.Data.Id == "" {
		return "", executor.WrapError(
			executor.KindParseFailure,
			"actor run start returned malformed response",
			err,
		)
	}
	return run.Data.Id, nil
}

func (c *Client) waitForRun(ctx context.Context, runID string) (string, error) {
	for attempt := 0; attempt < c.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", executor.WrapError(
				executor.KindExtractionTimeout,
				"cancelled while waiting for actor run",
				ctx.Err(),
			)
		case <-time.After(c.config.PollInterval):
		}

		res, err := c.http.R().
			SetContext(ctx).
			Get(fmt.Sprintf("/v2/actor-runs/%s", runID))
		if err != nil {
			slog.WarnContext(ctx, "actor run poll failed", "run", runID, "err", err)
			continue
		}
		if res.StatusCode() != http.StatusOK {
			continue
		}

		var run runData
		err = json.Unmarshal(res.Body(), &run)
		if err != nil {
			continue
		}

		switch run.Data.Status {
		case "SUCCEEDED":
			return run.Data.DefaultDatasetID, nil
		case "TIMED-OUT":
			return "", executor.NewError(
				executor.KindExtractionTimeout,
				"actor run timed out on the service side",
			)
		case "FAILED", "ABORTED":
			return "", executor.NewError(
				executor.KindInternal,
				fmt.Sprintf("actor run ended with status %s", run.Data.Status),
			)
		}
	}

	return "", executor.NewError(
		executor.KindExtractionTimeout,
		fmt.Sprintf("actor run did not finish within %d polls", c.config.MaxPolls),
	)
}

func (c *Client) fetchDataset(ctx context.Context, datasetID string) ([]datasetItem, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v2/datasets/%s/items", datasetID))
	if err != nil {
		return nil, executor.ClassifyTransport("dataset fetch failed", err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, executor.NewError(
			executor.KindInternal,
			fmt.Sprintf("dataset fetch returned status %d", res.StatusCode()),
		)
	}

	var items []datasetItem
	err = json.Unmarshal(res.Body(), &items)
	if err != nil {
		return nil, executor.WrapError(
			executor.KindParseFailure,
			"dataset endpoint returned malformed items",
			err,
		)
	}
	return items, nil
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

	runID, err := c.startRun(ctx, req)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("run_id", runID))

	datasetID, err := c.waitForRun(ctx, runID)
	if err != nil {
		return fail(err)
	}

	items, err := c.fetchDataset(ctx, datasetID)
	if err != nil {
		return fail(err)
	}

	records := make([]followerstore.ProfileRecord, len(items))
	for i, item := range items {
		records[i] = followerstore.ProfileRecord{
			Username:       item.Username,
			DisplayName:    item.FullName,
			Bio:            item.Biography,
			Verified:       item.Verified,
			FollowerCount:  item.FollowersCount,
			FollowingCount: item.FollowsCount,
			Location:       item.Location,
			AvatarUrl:      item.ProfilePicUrl,
		}
	}

	span.SetAttributes(attribute.Int("records", len(records)))

	return executor.Result{
		Records: records,
		// the service caps runs at maxItems, a full page means there
		// may be more audience we did not see
		Partial: req.MaxItems > 0 && len(records) >= req.MaxItems,
	}, nil
}
