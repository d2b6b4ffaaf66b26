package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/lysyi3m/workflow-pulse/app/metrics"
)

const maxBodyBytes = 8 << 20

type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

func NewClient(httpClient *http.Client, userAgent string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(timeout)
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Request describes one outbound JSON call.
type Request struct {
	Source   string // label used in logs and metrics
	Endpoint string
	Params   url.Values
	Policy   Policy
}

// GetJSON performs the request under its policy and decodes the JSON body into out.
// Every failure is returned as *Error.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	policy := req.Policy
	if policy == nil {
		policy = FailFast()
	}

	for attempt := 1; ; attempt++ {
		err := c.do(ctx, req, out)
		if err == nil {
			return nil
		}

		logFailure(req.Source, err, attempt, policy)
		metrics.RecordUpstreamFailure(req.Source, string(err.Kind))

		delay, again := policy.Next(attempt, err)
		if !again {
			return err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return &Error{Kind: KindTimeout, Endpoint: req.Endpoint, Err: sleepErr}
		}
	}
}

func (c *Client) do(ctx context.Context, req Request, out any) *Error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := req.Endpoint
	if len(req.Params) > 0 {
		target += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		return &Error{Kind: KindClientError, Endpoint: req.Endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordUpstreamRequest(req.Source, "error", time.Since(start))
		return classifyTransportError(req.Endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(req.Source, statusClass(resp.StatusCode), time.Since(start))

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &Error{Kind: kind, Status: resp.StatusCode, Endpoint: req.Endpoint}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Endpoint: req.Endpoint, Err: err}
		}
		return &Error{Kind: KindDecode, Endpoint: req.Endpoint, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status == http.StatusForbidden:
		return KindForbidden, true
	case status >= 500:
		return KindServerError, true
	default:
		return KindClientError, true
	}
}

func classifyTransportError(endpoint string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Endpoint: endpoint, Err: err}
	}
	return &Error{Kind: KindNetwork, Endpoint: endpoint, Err: err}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
