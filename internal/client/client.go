package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryocare-backend/internal/database"
	"cryocare-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

var ErrRunFailed = errors.New("run failed")

// Client talks to the /api/v1 routes of a backend.
type Client struct {
	client *resty.Client
}

func New(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/") + "/api/v1").
			SetTimeout(60 * time.Second),
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.code, strings.TrimSpace(e.body))
}

// StatusCode returns the http status of a failed request, 0 for other errors.
func StatusCode(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}

func do[T any](ctx context.Context, c *Client, method, endpoint string, body any) (T, error) {
	var out T
	req := c.client.R().SetContext(ctx).SetResult(&out)
	if body != nil {
		req = req.SetBody(body)
	}

	res, err := req.Execute(method, endpoint)
	if err != nil {
		return out, fmt.Errorf("error calling %s %s: %w", method, endpoint, err)
	}
	if !res.IsSuccess() {
		return out, &statusError{code: res.StatusCode(), body: res.String()}
	}
	return out, nil
}

func (c *Client) PluginInfo(ctx context.Context) (api.PluginInfo, error) {
	return do[api.PluginInfo](ctx, c, resty.MethodGet, "/plugin", nil)
}

func (c *Client) ImportTomograms(ctx context.Context, req api.ImportTomogramsRequest) (api.TomogramSet, error) {
	return do[api.TomogramSet](ctx, c, resty.MethodPost, "/tomogram-sets", req)
}

func (c *Client) GetTomogramSet(ctx context.Context, id uuid.UUID) (api.TomogramSet, error) {
	return do[api.TomogramSet](ctx, c, resty.MethodGet, "/tomogram-sets/"+id.String(), nil)
}

func (c *Client) PrepareTrainingData(ctx context.Context, req api.PrepareTrainingDataRequest) (uuid.UUID, error) {
	return c.submit(ctx, "/train-data/prepare", req)
}

func (c *Client) LoadTrainData(ctx context.Context, req api.LoadTrainDataRequest) (uuid.UUID, error) {
	return c.submit(ctx, "/train-data/load", req)
}

func (c *Client) GetTrainData(ctx context.Context, id uuid.UUID) (api.TrainData, error) {
	return do[api.TrainData](ctx, c, resty.MethodGet, "/train-data/"+id.String(), nil)
}

func (c *Client) Train(ctx context.Context, req api.TrainRequest) (uuid.UUID, error) {
	return c.submit(ctx, "/models/train", req)
}

func (c *Client) LoadModel(ctx context.Context, req api.LoadModelRequest) (uuid.UUID, error) {
	return c.submit(ctx, "/models/load", req)
}

func (c *Client) GetModel(ctx context.Context, id uuid.UUID) (api.Model, error) {
	return do[api.Model](ctx, c, resty.MethodGet, "/models/"+id.String(), nil)
}

func (c *Client) Predict(ctx context.Context, req api.PredictRequest) (uuid.UUID, error) {
	return c.submit(ctx, "/predictions", req)
}

func (c *Client) submit(ctx context.Context, endpoint string, req any) (uuid.UUID, error) {
	res, err := do[api.SubmitRunResponse](ctx, c, resty.MethodPost, endpoint, req)
	if err != nil {
		return uuid.Nil, err
	}
	return res.RunId, nil
}

func (c *Client) GetRun(ctx context.Context, id uuid.UUID) (api.Run, error) {
	return do[api.Run](ctx, c, resty.MethodGet, "/runs/"+id.String(), nil)
}

func (c *Client) ListRuns(ctx context.Context, params api.ListRunsParams) ([]api.Run, error) {
	var out []api.Run
	req := c.client.R().SetContext(ctx).SetResult(&out)
	if params.Protocol != "" {
		req.SetQueryParam("protocol", params.Protocol)
	}
	if params.Status != "" {
		req.SetQueryParam("status", params.Status)
	}

	res, err := req.Get("/runs")
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	if !res.IsSuccess() {
		return nil, &statusError{code: res.StatusCode(), body: res.String()}
	}
	return out, nil
}

// WaitForRun polls the run until it completes or fails. A failed run is
// returned together with an error wrapping ErrRunFailed.
func (c *Client) WaitForRun(ctx context.Context, id uuid.UUID, interval time.Duration) (api.Run, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, id)
		if err != nil {
			return run, err
		}

		switch run.Status {
		case database.JobCompleted:
			return run, nil
		case database.JobFailed:
			return run, fmt.Errorf("run %s %w: %s", id, ErrRunFailed, strings.Join(run.Errors, "; "))
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}
