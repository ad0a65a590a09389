package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apimodels "github.com/opst/ripen/pkg/api/types/models"
	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
	apitraining "github.com/opst/ripen/pkg/api/types/training"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/utils/rfctime"
)

type RipenClient interface {
	// Ingest sends a batch of readings.
	//
	// Args
	//
	// - context.Context
	//
	// - ingest.Path: online or simulated
	//
	// - []apitelemetry.Reading: the batch
	//
	// Returns
	//
	// - apitelemetry.IngestResult: counts of inserted and duplicated readings
	//
	// - error: *ResponseError if the server rejects the batch.
	Ingest(ctx context.Context, path ingest.Path, batch []apitelemetry.Reading) (apitelemetry.IngestResult, error)

	// ListModels returns all model versions, newest first.
	ListModels(ctx context.Context) ([]apimodels.Detail, error)

	// Rollback activates a retired version.
	Rollback(ctx context.Context, versionId string) (apimodels.Detail, error)

	// Train runs a training job and waits for it.
	//
	// asOf is optional. nil means now.
	Train(ctx context.Context, asOf *time.Time) (apitraining.Summary, error)
}

type client struct {
	httpclient *http.Client
	api        string
	token      string
}

type Option func(*client) *client

// WithToken sets bearer token sent with each request.
func WithToken(token string) Option {
	return func(c *client) *client {
		c.token = token
		return c
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) *client {
		c.httpclient = hc
		return c
	}
}

// NewClient creates a client of the API served under apiRoot (e.g. "http://localhost:8080/api").
func NewClient(apiRoot string, options ...Option) (RipenClient, error) {
	if !strings.HasPrefix(apiRoot, "http://") && !strings.HasPrefix(apiRoot, "https://") {
		return nil, fmt.Errorf("api root should be http(s) URL: %s", apiRoot)
	}
	c := &client{
		httpclient: &http.Client{Timeout: 30 * time.Second},
		api:        strings.TrimSuffix(apiRoot, "/"),
	}
	for _, opt := range options {
		c = opt(c)
	}
	return c, nil
}

func (c *client) apipath(path ...string) string {
	for i := range path {
		path[i] = strings.TrimPrefix(strings.TrimSuffix(path[i], "/"), "/")
	}
	return strings.Join(append([]string{c.api}, path...), "/")
}

func (c *client) request(ctx context.Context, method string, url string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpclient.Do(req)
}

func (c *client) Ingest(ctx context.Context, path ingest.Path, batch []apitelemetry.Reading) (apitelemetry.IngestResult, error) {
	url := c.apipath("telemetry", "ingest")
	if path == ingest.PathSimulated {
		url += "?path=" + string(path)
	}
	resp, err := c.request(ctx, http.MethodPost, url, batch)
	if err != nil {
		return apitelemetry.IngestResult{}, err
	}
	defer resp.Body.Close()

	result := apitelemetry.IngestResult{}
	if err := unmarshalJsonResponse(
		resp, &result,
		MessageFor{
			http.StatusBadRequest:            "batch is rejected",
			http.StatusUnauthorized:          "token is not acceptable",
			http.StatusForbidden:             "token does not have enough scope",
			http.StatusRequestEntityTooLarge: "batch is too large",
		},
	); err != nil {
		return apitelemetry.IngestResult{}, err
	}
	return result, nil
}

func (c *client) ListModels(ctx context.Context) ([]apimodels.Detail, error) {
	resp, err := c.request(ctx, http.MethodGet, c.apipath("models"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := []apimodels.Detail{}
	if err := unmarshalJsonResponse(resp, &result, MessageFor{}); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *client) Rollback(ctx context.Context, versionId string) (apimodels.Detail, error) {
	resp, err := c.request(
		ctx, http.MethodPut, c.apipath("models", "active"),
		apimodels.Activation{VersionId: versionId},
	)
	if err != nil {
		return apimodels.Detail{}, err
	}
	defer resp.Body.Close()

	result := apimodels.Detail{}
	if err := unmarshalJsonResponse(
		resp, &result,
		MessageFor{
			http.StatusUnauthorized: "token is not acceptable",
			http.StatusNotFound:     fmt.Sprintf("model version %s is not found", versionId),
			http.StatusConflict:     fmt.Sprintf("model version %s can not be activated", versionId),
		},
	); err != nil {
		return apimodels.Detail{}, err
	}
	return result, nil
}

func (c *client) Train(ctx context.Context, asOf *time.Time) (apitraining.Summary, error) {
	req := apitraining.Request{}
	if asOf != nil {
		t := rfctime.RFC3339(*asOf)
		req.AsOf = &t
	}
	resp, err := c.request(ctx, http.MethodPost, c.apipath("training"), req)
	if err != nil {
		return apitraining.Summary{}, err
	}
	defer resp.Body.Close()

	result := apitraining.Summary{}
	if err := unmarshalJsonResponse(
		resp, &result,
		MessageFor{
			http.StatusUnauthorized:        "token is not acceptable",
			http.StatusConflict:            "another training job is in progress",
			http.StatusUnprocessableEntity: "not enough matured rows to train",
		},
	); err != nil {
		return apitraining.Summary{}, err
	}
	return result, nil
}

