// Package client talks to a running ytdl-web server over its JSON API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lvcoi/ytdl-web/internal/formats"
)

const defaultTimeout = 5 * time.Minute

// APIError is an error body returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Progress mirrors the body of GET /progress/{id}.
type Progress struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Error    *string `json:"error"`
}

// Terminal reports whether the job will not change again.
func (p Progress) Terminal() bool {
	return p.Status == "finished" || p.Status == "error"
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	rest *resty.Client
}

// New returns a client for baseURL. A nil httpClient gets a default with a
// five minute timeout, which covers slow format probes.
func New(baseURL string, httpClient *http.Client) *Client {
	var rest *resty.Client
	if httpClient != nil {
		rest = resty.NewWithClient(httpClient)
	} else {
		rest = resty.New().SetTimeout(defaultTimeout)
	}
	rest.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	return &Client{rest: rest}
}

func (c *Client) ListFormats(ctx context.Context, url string) ([]formats.Descriptor, error) {
	var out struct {
		Formats []formats.Descriptor `json:"formats"`
	}
	if err := c.post(ctx, "/get-formats", map[string]string{"url": url}, &out); err != nil {
		return nil, err
	}
	return out.Formats, nil
}

func (c *Client) Submit(ctx context.Context, url, formatID string) (string, error) {
	var out struct {
		DownloadID string `json:"download_id"`
	}
	if err := c.post(ctx, "/download", map[string]string{"url": url, "format": formatID}, &out); err != nil {
		return "", err
	}
	if out.DownloadID == "" {
		return "", errors.New("server returned no download id")
	}
	return out.DownloadID, nil
}

// Progress polls one job. An unknown id is reported as an APIError even when
// the server answers 200.
func (c *Client) Progress(ctx context.Context, id string) (Progress, error) {
	var failure errorBody
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetError(&failure).
		Get("/progress/{id}")
	if err != nil {
		return Progress{}, fmt.Errorf("GET /progress: %w", err)
	}
	if resp.IsError() {
		return Progress{}, apiError(resp, failure)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return Progress{}, fmt.Errorf("decoding /progress response: %w", err)
	}
	if _, ok := raw["status"]; !ok {
		var msg string
		_ = json.Unmarshal(raw["error"], &msg)
		return Progress{}, &APIError{Status: http.StatusNotFound, Message: msg}
	}
	var p Progress
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return Progress{}, fmt.Errorf("decoding /progress response: %w", err)
	}
	return p, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var failure errorBody
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&failure).
		Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp, failure)
	}
	return nil
}

func apiError(resp *resty.Response, body errorBody) error {
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
