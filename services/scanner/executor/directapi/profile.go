package directapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"
	"followtrace-backend/lib/followerstore"
	"followtrace-backend/lib/telemetry"
	"followtrace-backend/services/keychain"
	"followtrace-backend/services/scanner/executor"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

func newWebClient(baseUrl string) *resty.Client {
	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(err)
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scanner/executor/directapi/web")
	return client
}

// CheckProfile resolves a single username against ground truth. it
// prefers the metrics api, falling back to the public profile page when
// no token is available. a nil record with a nil error means the
// username does not exist.
func (c *Client) CheckProfile(ctx context.Context, username string, creds keychain.Credentials) (*followerstore.ProfileRecord, error) {
	if creds.AccessToken != "" {
		return c.checkViaApi(ctx, username, creds.AccessToken)
	}
	return c.checkViaWeb(ctx, username)
}

func (c *Client) checkViaApi(ctx context.Context, username, token string) (*followerstore.ProfileRecord, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(fmt.Sprintf("/v1/users/%s", username))
	if err != nil {
		return nil, executor.ClassifyTransport("profile lookup failed", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode() != http.StatusOK {
		return nil, classifyStatus(res)
	}

	var profile apiProfile
	err = json.Unmarshal(res.Body(), &profile)
	if err != nil {
		return nil, executor.WrapError(
			executor.KindParseFailure,
			"profile lookup returned malformed json",
			err,
		)
	}
	record := profile.toRecord()
	return &record, nil
}

// parses "1,234 followers" style strings off the public page
func parseCount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	digits := strings.Builder{}
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) checkViaWeb(ctx context.Context, username string) (*followerstore.ProfileRecord, error) {
	res, err := c.web.R().
		SetContext(ctx).
		Get("/" + username)
	if err != nil {
		return nil, executor.ClassifyTransport("public profile fetch failed", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode() != http.StatusOK {
		return nil, executor.NewError(
			executor.KindInternal,
			fmt.Sprintf("public profile page returned status %d", res.StatusCode()),
		)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, executor.WrapError(
			executor.KindParseFailure,
			"could not parse public profile page",
			err,
		)
	}

	record := &followerstore.ProfileRecord{Username: username}
	record.DisplayName, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	record.Bio, _ = doc.Find(`meta[property="og:description"]`).Attr("content")
	record.AvatarUrl, _ = doc.Find(`meta[property="og:image"]`).Attr("content")
	record.FollowerCount = parseCount(doc.Find(`[data-testid="follower-count"]`).First().Text())
	record.FollowingCount = parseCount(doc.Find(`[data-testid="following-count"]`).First().Text())

	if record.DisplayName == "" && doc.Find(`[data-testid="profile-header"]`).Length() == 0 {
		// some deployments soft-404 unknown profiles with a 200 search page
		return nil, nil
	}
	return record, nil
}
