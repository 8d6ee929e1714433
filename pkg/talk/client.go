package talk

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"talksync/pkg/config"
	"talksync/pkg/errors"
	"talksync/pkg/logger"
	"talksync/pkg/ratelimit"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultDownloadTimeout = 120 * time.Second
)

// Client talks to the API of one group
type Client struct {
	httpClient      *http.Client
	group           Group
	headers         map[string]string
	requestTimeout  time.Duration
	downloadTimeout time.Duration
	limiter         ratelimit.Limiter
	logger          logger.Logger
}

// NewClient creates a client for group. A nil cfg uses default timeouts and
// no rate limit.
func NewClient(group Group, cfg *config.HTTPConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg == nil {
		cfg = &config.HTTPConfig{}
	}

	// Accept-Encoding is set explicitly, so the transport must not try to
	// decompress on its own
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	userAgent := UserAgent
	if cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport},
		group:      group,
		headers: map[string]string{
			"Accept":          "application/json",
			"X-Talk-App-ID":   group.AppID,
			"User-Agent":      userAgent,
			"Accept-Language": "ja-JP",
			"Accept-Encoding": "gzip",
			"TE":              "gzip, deflate; q=0.5",
		},
		requestTimeout:  cfg.RequestTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		limiter:         ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		logger:          log.WithField("group", group.ID),
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.downloadTimeout <= 0 {
		c.downloadTimeout = defaultDownloadTimeout
	}
	return c
}

// Group returns the group this client talks to
func (c *Client) Group() Group {
	return c.group
}

// SetLimiter replaces the request limiter
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	if l == nil {
		l = ratelimit.Unlimited{}
	}
	c.limiter = l
}

// doRequest sends req with the API headers after waiting for the limiter
func (c *Client) doRequest(req *http.Request, bearer string) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeRateLimit, err, "rate limiter wait aborted")
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      redact(req.URL.String()),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "network error")
	}

	logger.LogRequest(c.logger, req.Method, redact(req.URL.String()), resp.StatusCode, duration)
	return resp, nil
}

// GetJSON performs an authenticated GET and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url, bearer string, target interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	return c.roundTripJSON(req, bearer, target)
}

// PostJSON encodes body, posts it and decodes the JSON response
func (c *Client) PostJSON(ctx context.Context, url string, body, target interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, err, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.roundTripJSON(req, "", target)
}

func (c *Client) roundTripJSON(req *http.Request, bearer string, target interface{}) error {
	resp, err := c.doRequest(req, bearer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := decodedBody(resp)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, err, "failed to open gzip response")
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body")
	}

	if err := json.Unmarshal(data, target); err != nil {
		bodyPreview := string(data)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          redact(req.URL.String()),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON")
	}
	return nil
}

// decodedBody unwraps a gzip-encoded body
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		return io.NopCloser(resp.Body), nil
	}
	return gzip.NewReader(resp.Body)
}

// checkResponseStatus maps a non-2xx status to a typed error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	kind := errors.FromStatusCode(resp.StatusCode)
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    redact(resp.Request.URL.String()),
	}
	if kind == errors.ErrorTypeServerError || kind == errors.ErrorTypeUnknown {
		c.logger.ErrorWithFields("API error", fields)
	} else {
		c.logger.WarnWithFields("API request rejected", fields)
	}

	return &errors.Error{
		Type:    kind,
		Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		Code:    resp.StatusCode,
	}
}

// Download streams the media at url into w. Media hosts are public, so
// only the user agent is sent.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeMediaDownload, err, "invalid media URL")
	}
	req.Header.Set("User-Agent", c.headers["User-Agent"])

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeMediaDownload, err, "media request failed")
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, req.Method, redact(url), resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &errors.Error{
			Type:    errors.ErrorTypeMediaDownload,
			Message: fmt.Sprintf("media host returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	body, err := decodedBody(resp)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeMediaDownload, err, "failed to open gzip media")
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, errors.Wrap(errors.ErrorTypeMediaDownload, err, "media transfer interrupted")
	}
	return n, nil
}

// redact drops the query string, which may carry signed media parameters
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
