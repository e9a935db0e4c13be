package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/telemetry"
	"followtrace-backend/services/scanner/executor"

	"github.com/go-resty/resty/v2"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "embed"
)

var tracer = otel.Tracer("scanner/executor/sandbox")

//go:embed extract_followers.js
var extractScript string

const scriptPath = "/opt/extract_followers.js"
const resultPath = "/tmp/followers.json"

type Config struct {
	// sandbox provider control plane
	BaseUrl string `json:"base_url"`
	Token   string `json:"token"`
	Image   string `json:"image"`
	// base url of the platform's web frontend, handed to the script
	WebBaseUrl   string        `json:"web_base_url"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
}

// Client drives an ephemeral remote sandbox: provision, push the
// extraction script, poll the execution, then read back a structured
// result file. the sandbox outlives the call so stragglers can finish
// writing, release is the coordinator's deferred cleanup.
type Client struct {
	config Config
	http   *resty.Client
}

func NewClient(config Config) *Client {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second * 5
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = 120
	}

	client := resty.New()
	client.SetBaseURL(config.BaseUrl)
	client.SetAuthToken(config.Token)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scanner/executor/sandbox/http")

	return &Client{
		config: config,
		http:   client,
	}
}

type sandboxInfo struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

type execInfo struct {
	Id       string `json:"id"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	LogTail  string `json:"log_tail"`
}

func (c *Client) provision(ctx context.Context) (string, error) {
	suffix, err := random.String(8)
	if err != nil {
		return "", err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"name":  fmt.Sprintf("followtrace-%s", suffix),
			"image": c.config.Image,
		}).
		Post("/v1/sandboxes")
	if err != nil {
		return "", executor.ClassifyTransport("sandbox provisioning failed", err)
	}
	if res.StatusCode() != http.StatusCreated {
		return "", executor.NewError(
			executor.KindProvisioningFailed,
			fmt.Sprintf("sandbox provider returned status %d", res.StatusCode()),
		)
	}

	var info sandboxInfo
	err = json.Unmarshal(res.Body(), &info)
	if err != nil || info.Id == "" {
		return "", executor.WrapError(
			executor.KindProvisioningFailed,
			"sandbox provider returned malformed provision response",
			err,
		)
	}
	return info.Id, nil
}

// reusable reports whether a previously leased sandbox is still alive
func (c *Client) reusable(ctx context.Context, sandboxID string) bool {
	res, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v1/sandboxes/%s", sandboxID))
	if err != nil || res.StatusCode() != http.StatusOK {
		return false
	}
	var info sandboxInfo
	if json.Unmarshal(res.Body(), &info) != nil {
		return false
	}
	return info.Status == "running"
}

func (c *Client) uploadScript(ctx context.Context, sandboxID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("path", scriptPath).
		SetBody(extractScript).
		Put(fmt.Sprintf("/v1/sandboxes/%s/files", sandboxID))
	if err != nil {
		return executor.ClassifyTransport("script upload failed", err)
	}
	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusCreated {
		return executor.NewError(
			executor.KindProvisioningFailed,
			fmt.Sprintf("script upload returned status %d", res.StatusCode()),
		)
	}
	return nil
}

func (c *Client) startExec(ctx context.Context, sandboxID string, req executor.Request) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"command": []string{"node", scriptPath},
			"env": map[string]string{
				"TARGET":         req.Target,
				"MAX_ITEMS":      strconv.Itoa(req.MaxItems),
				"RESULT_PATH":    resultPath,
				"WEB_BASE_URL":   c.config.WebBaseUrl,
				"SESSION_COOKIE": req.Credentials.SessionCookie,
			},
		}).
		Post(fmt.Sprintf("/v1/sandboxes/%s/exec", sandboxID))
	if err != nil {
		return "", executor.ClassifyTransport("exec start failed", err)
	}
	if res.StatusCode() != http.StatusCreated && res.StatusCode() != http.StatusOK {
		return "", executor.NewError(
			executor.KindProvisioningFailed,
			fmt.Sprintf("exec start returned status %d", res.StatusCode()),
		)
	}

	var info execInfo
	err = json.Unmarshal(res.Body(), &info)
	if err != nil || info.Id == "" {
		return "", executor.WrapError(
			executor.KindProvisioningFailed,
			"exec start returned malformed response",
			err,
		)
	}
	return info.Id, nil
}

// pollExec waits for the execution under a hard attempt ceiling, it never
// hangs on a sandbox that stopped reporting.
func (c *Client) pollExec(ctx context.Context, sandboxID, execID string) error {
	for attempt := 0; attempt < c.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return executor.WrapError(
				executor.KindExtractionTimeout,
				"cancelled while waiting for sandbox execution",
				ctx.Err(),
			)
		case <-time.After(c.config.PollInterval):
		}

		res, err := c.http.R().
			SetContext(ctx).
			Get(fmt.Sprintf("/v1/sandboxes/%s/exec/%s", sandboxID, execID))
		if err != nil {
			// a blip while polling is not fatal, the ceiling bounds us
			slog.WarnContext(ctx, "sandbox exec poll failed", "sandbox", sandboxID, "err", err)
			continue
		}
		if res.StatusCode() != http.StatusOK {
			continue
		}

		var info execInfo
		err = json.Unmarshal(res.Body(), &info)
		if err != nil {
			continue
		}

		switch info.Status {
		case "completed":
			return nil
		case "failed":
			return executor.NewError(
				executor.KindInternal,
				fmt.Sprintf("extraction script exited with code %d: %s", info.ExitCode, info.LogTail),
			)
		}
	}

	return executor.NewError(
		executor.KindExtractionTimeout,
		fmt.Sprintf(
			"sandbox execution did not finish within %d polls",
			c.config.MaxPolls,
		),
	)
}

func (c *Client) fetchResult(ctx context.Context, sandboxID string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("path", resultPath).
		Get(fmt.Sprintf("/v1/sandboxes/%s/files", sandboxID))
	if err != nil {
		return nil, executor.ClassifyTransport("result fetch failed", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, executor.NewError(
			executor.KindParseFailure,
			"extraction script produced no result file",
		)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, executor.NewError(
			executor.KindInternal,
			fmt.Sprintf("result fetch returned status %d", res.StatusCode()),
		)
	}
	return res.Body(), nil
}

// salvageResult reads whatever the script managed to write before a
// timeout cut the run short. a missing or malformed file just means
// there is nothing to salvage.
func (c *Client) salvageResult(ctx context.Context, sandboxID, target string) ([]followerstore.ProfileRecord, bool) {
	raw, err := c.fetchResult(ctx, sandboxID)
	if err != nil {
		return nil, false
	}
	records, _, err := parsePayload(raw, target)
	if err != nil || len(records) == 0 {
		return nil, false
	}
	return records, true
}

// Release tears the sandbox down, it is safe to call for sandboxes that
// are already gone.
func (c *Client) Release(ctx context.Context, sandboxID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/sandboxes/%s", sandboxID))
	if err != nil {
		return err
	}
	if res.StatusCode() != http.StatusOK &&
		res.StatusCode() != http.StatusNoContent &&
		res.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("sandbox release returned status %d", res.StatusCode())
	}
	return nil
}

func (c *Client) Extract(ctx context.Context, req executor.Request) (executor.Result, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", req.Target),
		attribute.Int("max_items", req.MaxItems),
	)

	if req.Credentials.SessionCookie == "" {
		err := executor.NewError(
			executor.KindAuthRequired,
			"no session cookie for browser extraction",
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return executor.Result{}, err
	}

	sandboxID := ""
	if req.SandboxID != "" && c.reusable(ctx, req.SandboxID) {
		sandboxID = req.SandboxID
		span.SetAttributes(attribute.Bool("sandbox_reused", true))
	} else {
		var err error
		sandboxID, err = c.provision(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return executor.Result{}, err
		}
	}
	span.SetAttributes(attribute.String("sandbox_id", sandboxID))

	// teardown immediately when the run never produced anything worth
	// waiting for, otherwise the deferred lease handles it
	fail := func(err error) (executor.Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		releaseErr := c.Release(context.WithoutCancel(ctx), sandboxID)
		if releaseErr != nil {
			slog.WarnContext(ctx, "best-effort sandbox release failed",
				"sandbox", sandboxID, "err", releaseErr)
		}
		return executor.Result{SandboxID: sandboxID}, err
	}

	err := c.uploadScript(ctx, sandboxID)
	if err != nil {
		return fail(err)
	}

	execID, err := c.startExec(ctx, sandboxID, req)
	if err != nil {
		return fail(err)
	}

	err = c.pollExec(ctx, sandboxID, execID)
	if err != nil {
		if executor.KindOf(err) == executor.KindExtractionTimeout {
			// the script may have flushed records before it stalled
			records, ok := c.salvageResult(context.WithoutCancel(ctx), sandboxID, req.Target)
			if ok {
				span.SetAttributes(attribute.Int("salvaged_records", len(records)))
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				releaseErr := c.Release(context.WithoutCancel(ctx), sandboxID)
				if releaseErr != nil {
					slog.WarnContext(ctx, "best-effort sandbox release failed",
						"sandbox", sandboxID, "err", releaseErr)
				}
				return executor.Result{
					Records:   records,
					Partial:   true,
					SandboxID: sandboxID,
				}, err
			}
		}
		return fail(err)
	}

	raw, err := c.fetchResult(ctx, sandboxID)
	if err != nil {
		return fail(err)
	}

	records, partial, err := parsePayload(raw, req.Target)
	if err != nil {
		return fail(err)
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Bool("partial", partial),
	)

	return executor.Result{
		Records:   records,
		Partial:   partial,
		SandboxID: sandboxID,
	}, nil
}
