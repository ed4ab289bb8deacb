// Package remote implements fit.Engine and fit.SpectralModel against an HTTP
// fitting service.
//
// The service exposes two JSON endpoints:
//
//	POST {base}/fit      {observation, model, sampler} -> {theta_labels, chain, weights, bestfit, duration_seconds}
//	POST {base}/predict  {observation, model, thetas}  -> {predictions: [{spectrum, photometry, mfrac}]}
//
// Fitting has no client-side timeout and is never retried; predictions use
// the regular retrying transport.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/galsynth/internal/fit"
	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Client talks to a fitting service.
type Client struct {
	base    string
	fitHTTP *httpclient.Client
	http    *httpclient.Client
	logger  *slog.Logger
}

// New creates a client for the service at baseURL. cfg applies to
// prediction calls; fit calls use the same settings without timeout or retry.
func New(baseURL string, cfg httpclient.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fitCfg := cfg
	fitCfg.Timeout = 0
	fitCfg.MaxRetries = 0

	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		fitHTTP: httpclient.New(fitCfg, httpclient.WithLogger(logger)),
		http:    httpclient.New(cfg, httpclient.WithLogger(logger)),
		logger:  logger,
	}
}

type fitRequest struct {
	Observation fit.Observation     `json:"observation"`
	Model       fit.ModelSpec       `json:"model"`
	Sampler     fit.SamplerSettings `json:"sampler"`
}

type fitResponse struct {
	Labels          []string    `json:"theta_labels"`
	Chain           [][]float64 `json:"chain"`
	Weights         []float64   `json:"weights"`
	BestFit         fit.BestFit `json:"bestfit"`
	DurationSeconds float64     `json:"duration_seconds"`
}

type predictRequest struct {
	Observation fit.Observation `json:"observation"`
	Model       fit.ModelSpec   `json:"model"`
	Thetas      [][]float64     `json:"thetas"`
}

type predictResponse struct {
	Predictions []fit.Prediction `json:"predictions"`
}

// Fit implements fit.Engine.
func (c *Client) Fit(ctx context.Context, obs fit.Observation, model fit.ModelSpec, sampler fit.SamplerSettings) (*fit.Output, error) {
	var resp fitResponse
	if err := c.post(ctx, c.fitHTTP, "fit", fitRequest{obs, model, sampler}, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("fit service returned", slog.Int("samples", len(resp.Chain)),
		slog.Float64("duration_s", resp.DurationSeconds))

	return &fit.Output{
		Labels:   resp.Labels,
		Chain:    resp.Chain,
		Weights:  resp.Weights,
		BestFit:  resp.BestFit,
		Duration: time.Duration(resp.DurationSeconds * float64(time.Second)),
	}, nil
}

// PredictBatch implements fit.BatchModel.
func (c *Client) PredictBatch(ctx context.Context, model fit.ModelSpec, thetas [][]float64, obs fit.Observation) ([]fit.Prediction, error) {
	var resp predictResponse
	if err := c.post(ctx, c.http, "predict", predictRequest{obs, model, thetas}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) != len(thetas) {
		return nil, fmt.Errorf("%w: fit service returned %d predictions for %d parameter sets",
			core.ErrExternalService, len(resp.Predictions), len(thetas))
	}
	return resp.Predictions, nil
}

// Predict implements fit.SpectralModel.
func (c *Client) Predict(ctx context.Context, model fit.ModelSpec, theta []float64, obs fit.Observation) (fit.Prediction, error) {
	preds, err := c.PredictBatch(ctx, model, [][]float64{theta}, obs)
	if err != nil {
		return fit.Prediction{}, err
	}
	return preds[0], nil
}

func (c *Client) post(ctx context.Context, h *httpclient.Client, endpoint string, body, out any) error {
	u, err := url.JoinPath(c.base, endpoint)
	if err != nil {
		return fmt.Errorf("invalid fit service URL %q: %w", c.base, err)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}

	resp, err := h.PostJSON(ctx, u, b, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrExternalService, endpoint, err)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", core.ErrExternalService, endpoint, err)
	}
	return nil
}
