// Package predictor is the HTTP client for the external reimbursement
// prediction service.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a predict call when the client is built without one.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is wrapped by errors returned when the call hit its deadline.
var ErrTimeout = errors.New("predictor timed out")

// Request is the body of POST /predict.
type Request struct {
	ClientID          string `json:"client_id"`
	MedicalBulletinID string `json:"medical_bulletin_id"`
}

// Response is the raw predictor payload. Fields are pointers so callers can
// tell an absent field from a zero value.
type Response struct {
	ReimbursementClass  *string  `json:"reimbursementClass"`
	Confidence          *float64 `json:"confidence"`
	ReimbursementAmount *float64 `json:"reimbursementAmount"`
	ModelVersion        *string  `json:"modelVersion"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("predictor returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("predictor returned status %d: %s", e.StatusCode, e.Detail)
}

// Client calls the predictor over a pooled fasthttp client.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *fasthttp.Client
}

// NewClient returns a client posting to baseURL + "/predict".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/predict",
		timeout:  timeout,
		http: &fasthttp.Client{
			Name:                     "truecare-estimator",
			MaxConnsPerHost:          64,
			MaxIdleConnDuration:      90 * time.Second,
			ReadTimeout:              timeout,
			WriteTimeout:             timeout,
			NoDefaultUserAgentHeader: true,
		},
	}
}

// Predict posts one prediction request. The call is bounded by the client
// timeout and by the ctx deadline, whichever is earlier. It is never retried.
func (c *Client) Predict(ctx context.Context, clientID, bulletinID string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(Request{ClientID: clientID, MedicalBulletinID: bulletinID})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBodyRaw(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("call predictor: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Detail: extractDetail(resp.Body())}
	}

	var out Response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode predictor response: %w", err)
	}
	return &out, nil
}

// extractDetail returns the "detail" field of an error body, rendered as
// plain text when it is a JSON string.
func extractDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return s
	}
	return string(eb.Detail)
}
