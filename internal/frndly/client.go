// Package frndly is the raw wire client for the Frndly TV backend
// (revlet.net). It speaks the upstream's session-id header scheme and
// response envelope, and decodes upstream JSON into loosely-typed raw
// structs. All normalization into domain entities happens one layer up in
// the catalog package; this package's job is defensive transport.
package frndly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/httpclient"
)

// Production endpoints. The guide lives on its own host.
const (
	DefaultAPIURL      = "https://frndlytv-api.revlet.net/service/api"
	DefaultGuideAPIURL = "https://frndlytv-tvguideapi.revlet.net/service/api"
	DefaultLiveMapURL  = "https://i.mjh.nz/frndly_tv/app.json"
)

// Device identity the upstream expects on every call.
const (
	boxID      = "SHIELD30X8X4X0"
	tenantCode = "frndlytv"
	deviceID   = "43"
	userAgent  = "okhttp/3.12.5"
)

// Sentinel errors used by callers to classify failures.
var (
	// ErrAuthRejected: the upstream refused the session (error envelope or
	// auth-level HTTP status). Renewing the session and retrying once is
	// the expected reaction.
	ErrAuthRejected = errors.New("frndly: session rejected")
	// ErrBadCredentials: the signin exchange itself failed. Not retryable
	// until the user changes credentials.
	ErrBadCredentials = errors.New("frndly: invalid credentials")
	// ErrMalformed: the upstream answered 200 with a body we cannot use.
	ErrMalformed = errors.New("frndly: malformed upstream response")
)

// Client talks to the Frndly TV API. Zero value is not usable; use New.
type Client struct {
	APIURL      string
	GuideAPIURL string
	LiveMapURL  string
	HTTPClient  *http.Client
	Limiter     *httpclient.HostLimiter
	Timeout     time.Duration
}

// New returns a client for the production endpoints. Any of the URL
// arguments may be empty to use the default.
func New(apiURL, guideAPIURL, liveMapURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if guideAPIURL == "" {
		guideAPIURL = DefaultGuideAPIURL
	}
	if liveMapURL == "" {
		liveMapURL = DefaultLiveMapURL
	}
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	return &Client{
		APIURL:      apiURL,
		GuideAPIURL: guideAPIURL,
		LiveMapURL:  liveMapURL,
		HTTPClient:  httpclient.WithTimeout(timeout),
		Limiter:     httpclient.GlobalHostLimiter,
		Timeout:     timeout,
	}
}

// envelope is the upstream's uniform response wrapper.
type envelope struct {
	Status   *bool           `json:"status"`
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Login performs the two-step login exchange: fetch an anonymous session
// token, then sign in with it. Returns the authenticated session id.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrBadCredentials)
	}

	q := url.Values{
		"box_id":            {boxID},
		"device_id":         {deviceID},
		"tenant_code":       {tenantCode},
		"device_sub_type":   {"nvidia,8.1.0,7.4.4"},
		"product":           {tenantCode},
		"display_lang_code": {"eng"},
		"timezone":          {"America/New_York"},
	}
	var tokenResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.get(ctx, c.APIURL+"/v1/get/token?"+q.Encode(), "", &tokenResp); err != nil {
		return "", fmt.Errorf("get session token: %w", err)
	}
	if tokenResp.SessionID == "" {
		return "", fmt.Errorf("%w: empty session token", ErrMalformed)
	}

	payload, _ := json.Marshal(map[string]any{
		"login_id":     username,
		"login_key":    password,
		"login_mode":   1,
		"os_version":   "8.1.0",
		"app_version":  "7.4.4",
		"manufacturer": "nvidia",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/auth/signin", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, tokenResp.SessionID)
	req.Header.Set("Content-Type", "application/json")

	if err := c.Limiter.Wait(ctx, c.APIURL); err != nil {
		return "", err
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTPClient, req, httpclient.RetryPolicy{})
	if err != nil {
		return "", fmt.Errorf("signin request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("signin read: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: signin: %v", ErrMalformed, err)
	}
	if env.Status == nil || !*env.Status {
		msg := "unknown login error"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return "", fmt.Errorf("%w: %s", ErrBadCredentials, msg)
	}
	return tokenResp.SessionID, nil
}

// Channels fetches the channel lineup. Channel-banner rows (promo tiles the
// app renders between real channels) are dropped here.
func (c *Client) Channels(ctx context.Context, sessionID string) ([]RawChannel, error) {
	var data struct {
		Data []RawChannel `json:"data"`
	}
	if err := c.get(ctx, c.APIURL+"/v1/tvguide/channels?skip_tabs=0", sessionID, &data); err != nil {
		return nil, err
	}
	out := make([]RawChannel, 0, len(data.Data))
	for _, ch := range data.Data {
		if ch.Metadata.IsChannelBanner.True() {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// Guide fetches guide blocks for the given channels, one upstream call per
// day of the window, and merges the per-channel program lists.
func (c *Client) Guide(ctx context.Context, sessionID string, channelIDs []string, start time.Time, days int) (map[string][]RawProgram, error) {
	if len(channelIDs) == 0 {
		return map[string][]RawProgram{}, nil
	}
	if days < 1 {
		days = 1
	}
	programs := make(map[string][]RawProgram)
	dayStart := start
	for day := 0; day < days; day++ {
		dayEnd := dayStart.Add(24 * time.Hour)
		q := url.Values{
			"channel_ids": {joinIDs(channelIDs)},
			"page":        {"0"},
			"start_time":  {strconv.FormatInt(dayStart.UnixMilli(), 10)},
			"end_time":    {strconv.FormatInt(dayEnd.UnixMilli(), 10)},
		}
		var data struct {
			Data []struct {
				ChannelID FlexString   `json:"channelId"`
				Programs  []RawProgram `json:"programs"`
			} `json:"data"`
		}
		if err := c.get(ctx, c.GuideAPIURL+"/v1/static/tvguide?"+q.Encode(), sessionID, &data); err != nil {
			return nil, fmt.Errorf("guide day %d: %w", day, err)
		}
		for _, row := range data.Data {
			id := row.ChannelID.String()
			programs[id] = append(programs[id], row.Programs...)
		}
		dayStart = dayEnd
	}
	return programs, nil
}

// StreamResult is a signed playback URL plus its advertised type.
type StreamResult struct {
	URL        string
	StreamType string
}

// Stream signs the given content path and returns a playable URL. Streams
// are ranked so unencrypted variants win; a DRM-only answer is an error.
// The accidental upstream play session opened by signing is closed via the
// poll key so it does not count against the account's stream limit.
func (c *Client) Stream(ctx context.Context, sessionID, path string) (StreamResult, error) {
	q := url.Values{
		"path":        {path},
		"code":        {path},
		"include_ads": {"false"},
		"is_casted":   {"true"},
	}
	var data struct {
		Streams []struct {
			URL        string `json:"url"`
			StreamType string `json:"streamType"`
			Keys       struct {
				LicenseKey string `json:"licenseKey"`
			} `json:"keys"`
		} `json:"streams"`
		PlayerSettings []struct {
			Value FlexString `json:"value"`
		} `json:"playerSettings"`
		SessionInfo struct {
			StreamPollKey string `json:"streamPollKey"`
		} `json:"sessionInfo"`
	}
	if err := c.get(ctx, c.APIURL+"/v1/page/stream?"+q.Encode(), sessionID, &data); err != nil {
		return StreamResult{}, err
	}
	if len(data.Streams) == 0 {
		return StreamResult{}, fmt.Errorf("%w: no streams for %s", ErrMalformed, path)
	}
	// Unencrypted variants carry an empty license key and sort first.
	streams := data.Streams
	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].Keys.LicenseKey < streams[j].Keys.LicenseKey
	})
	best := streams[0]
	if isDRMType(best.StreamType) {
		return StreamResult{}, fmt.Errorf("only DRM streams available for %s (type %s)", path, best.StreamType)
	}
	if !isHTTPURL(best.URL) {
		return StreamResult{}, fmt.Errorf("%w: non-http stream url for %s", ErrMalformed, path)
	}
	streamURL := best.URL
	if len(data.PlayerSettings) > 0 {
		if ms, err := strconv.ParseInt(data.PlayerSettings[0].Value.String(), 10, 64); err == nil && ms > 0 {
			sec := ms / 1000
			streamURL += fmt.Sprintf("&start=%d&startTime=%d", sec, sec)
		}
	}
	if key := data.SessionInfo.StreamPollKey; key != "" {
		c.endStreamSession(ctx, sessionID, key)
	}
	return StreamResult{URL: streamURL, StreamType: best.StreamType}, nil
}

// isHTTPURL rejects file:// and other schemes a malformed upstream answer
// could smuggle into a redirect.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func isDRMType(streamType string) bool {
	switch streamType {
	case "widevine", "Widevine", "WIDEVINE":
		return true
	}
	return false
}

// endStreamSession is best effort; a leaked poll session times out upstream anyway.
func (c *Client) endStreamSession(ctx context.Context, sessionID, pollKey string) {
	form := url.Values{"poll_key": {pollKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.APIURL+"/v1/stream/session/end", bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return
	}
	c.setHeaders(req, sessionID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// LiveMap fetches the community channel map (channel number, slug and
// gracenote station id per upstream channel id). A failed fetch returns an
// empty map and the error; callers treat the map as optional enrichment.
func (c *Client) LiveMap(ctx context.Context) (map[string]LiveMapEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.LiveMapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if err := c.Limiter.Wait(ctx, c.LiveMapURL); err != nil {
		return nil, err
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTPClient, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("live map: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("live map: HTTP %d", resp.StatusCode)
	}
	var m map[string]LiveMapEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: live map: %v", ErrMalformed, err)
	}
	return m, nil
}

// get performs an enveloped GET and unmarshals the response payload into out.
func (c *Client) get(ctx context.Context, rawURL, sessionID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, sessionID)
	if err := c.Limiter.Wait(ctx, rawURL); err != nil {
		return err
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTPClient, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d", ErrAuthRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Response == nil {
		// No response payload means the session was not accepted (expired,
		// revoked, or concurrent-login kicked). The error envelope, when
		// present, is only advisory.
		if env.Error != nil {
			return fmt.Errorf("%w: code %d: %s", ErrAuthRejected, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%w: empty envelope", ErrAuthRejected)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, sessionID string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("box-id", boxID)
	req.Header.Set("tenant-code", tenantCode)
	if sessionID != "" {
		req.Header.Set("session-id", sessionID)
	}
}

func joinIDs(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return ids[0]
	}
	n := 0
	for _, id := range ids {
		n += len(id) + 1
	}
	b := make([]byte, 0, n)
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, id...)
	}
	return string(b)
}
