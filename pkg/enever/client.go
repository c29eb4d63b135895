package enever

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/quota"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// DefaultAPIURL is the base URL of the Enever price feeds.
	DefaultAPIURL = "https://enever.nl/api/"

	// invalidTokenCode is the response code the API uses for unknown tokens.
	invalidTokenCode = "2"

	// responses are small, a full day of quarter-hour prices for every
	// provider is well below this
	maxResponseSize = 4 << 20

	// clientTimeout caps requests made without a deadline on the context
	clientTimeout = time.Minute
)

// Client fetches the Enever price feeds. Every request that reaches the
// network is counted against the monthly quota.
type Client struct {
	apiURL    string
	token     string
	quotaCode string
	client    *http.Client
	counter   *quota.Counter
	clock     *common.Clock

	// mock requests never reach the api and aren't counted
	mock bool
}

// Configured sets up flags for the Enever API and returns the client.
// It uses lflag to register command-line flags for configuration.
func Configured(counter *quota.Counter, clock *common.Clock) *Client {
	c := &Client{
		counter: counter,
		clock:   clock,
	}
	apiURL := lflag.String("enever-api-url", DefaultAPIURL, "Base URL of the Enever API")
	token := lflag.String("enever-token", "", "Enever API token")
	quotaCode := lflag.String("enever-quota-code", "3", "Response code the Enever API uses to report an exhausted quota")
	mockDir := lflag.String("enever-mock-dir", "", "Serve feeds from <dir>/<endpoint>.json instead of the API (for manual testing)")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.token = *token
		c.quotaCode = *quotaCode
		if *mockDir != "" {
			c.useMockDir(*mockDir)
		} else {
			c.client = common.HTTPClient(clientTimeout)
		}
		if err := c.Validate(); err != nil {
			panic(fmt.Errorf("enever validation failed: %w", err))
		}
	})

	return c
}

// New returns a client for the API at apiURL.
func New(apiURL, token string, client *http.Client, counter *quota.Counter, clock *common.Clock) *Client {
	return &Client{
		apiURL:    apiURL,
		token:     token,
		quotaCode: "3",
		client:    client,
		counter:   counter,
		clock:     clock,
	}
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("enever-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse enever url (%s): %w", c.apiURL, err)
	}
	if c.token == "" {
		return fmt.Errorf("enever-token is required")
	}
	return nil
}

func (c *Client) endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	u = u.JoinPath(endpoint)
	params := url.Values{}
	params.Set("token", c.token)
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Fetch requests the feed and parses the prices of every provider in it.
// All errors returned are of type *FetchError.
func (c *Client) Fetch(ctx context.Context, feed types.FeedType) (types.FeedData, error) {
	endpoint := feed.Info().Endpoint
	u, err := c.endpointURL(endpoint)
	if err != nil {
		return types.FeedData{}, newFetchError(feed, ErrUnreachable, err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return types.FeedData{}, newFetchError(feed, ErrUnreachable, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	// the url contains the token so only log the endpoint
	log.Ctx(ctx).DebugContext(ctx, "fetching feed from enever", slog.String("endpoint", endpoint))

	resp, err := c.client.Do(req)
	// the request left the process whether it failed or not
	if !c.mock {
		if _, cerr := c.counter.Increment(ctx, c.clock.Now()); cerr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to count request", slog.Any("error", cerr))
		}
	}
	if err != nil {
		return types.FeedData{}, newFetchError(feed, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return types.FeedData{}, &FetchError{Feed: feed, Kind: ErrQuotaExceeded, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.FeedData{}, &FetchError{Feed: feed, Kind: ErrHTTPStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return types.FeedData{}, newFetchError(feed, ErrUnreachable, fmt.Errorf("failed to read response: %w", err))
	}

	data, err := c.parse(feed, body)
	if err != nil {
		return types.FeedData{}, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched feed",
		slog.String("endpoint", endpoint),
		slog.String("date", data.Date.Format(time.DateOnly)),
		slog.Int("providers", len(data.Series)),
	)
	return data, nil
}

// parse interprets a 2xx response body.
func (c *Client) parse(feed types.FeedType, body []byte) (types.FeedData, error) {
	if !gjson.ValidBytes(body) {
		return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("response is not json"))
	}
	res := gjson.ParseBytes(body)

	data := res.Get("data")
	if !data.Exists() {
		return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("no data element in response"))
	}
	if !data.IsArray() {
		switch code := res.Get("code").String(); {
		case code == invalidTokenCode:
			return types.FeedData{}, newFetchError(feed, ErrInvalidToken, nil)
		case c.quotaCode != "" && code == c.quotaCode:
			return types.FeedData{}, newFetchError(feed, ErrQuotaExceeded, fmt.Errorf("%s", data.String()))
		default:
			// the api explains why there are no prices in the data element
			return types.FeedData{}, newFetchError(feed, ErrNotYetPublished, fmt.Errorf("%s", data.String()))
		}
	}

	items := data.Array()
	if len(items) == 0 {
		return types.FeedData{}, newFetchError(feed, ErrNotYetPublished, fmt.Errorf("empty data element"))
	}

	loc := c.clock.Location()
	samples := make(map[string][]types.Sample)
	for i, item := range items {
		datum, err := parseDatum(item.Get("datum").String(), loc)
		if err != nil {
			return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("item %d: %w", i, err))
		}
		for _, code := range types.AllProviderCodes() {
			v := item.Get("prijs" + code)
			if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
				continue
			}
			price, err := decimal.NewFromString(v.String())
			if err != nil {
				return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("item %d: invalid price for %q: %w", i, code, err))
			}
			samples[code] = append(samples[code], types.Sample{Time: datum, Price: price})
		}
	}
	if len(samples) == 0 {
		return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("no prices in response"))
	}

	fd := types.FeedData{
		Feed:   feed,
		Series: make(map[string]types.TimeSeries, len(samples)),
	}
	for code, s := range samples {
		ts, err := types.NewTimeSeries(loc, s)
		if err != nil {
			return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("provider %q: %w", code, err))
		}
		if fd.Date.IsZero() {
			fd.Date = ts.Date()
		} else if !fd.Date.Equal(ts.Date()) {
			return types.FeedData{}, newFetchError(feed, ErrMalformedResponse, fmt.Errorf("provider %q covers %s instead of %s", code, ts.Date().Format(time.DateOnly), fd.Date.Format(time.DateOnly)))
		}
		fd.Series[code] = ts
	}
	return fd, nil
}

var datumLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDatum parses the timestamp of a price. Timestamps without a zone are in
// loc.
func parseDatum(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing datum")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range datumLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datum %q", s)
}
