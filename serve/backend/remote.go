package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/inference-serve/serve"
)

// Remote scores batches by POSTing them to an external HTTP scorer.
//
// Request:  {"instances": [{...features...}, ...]}
// Response: {"predictions": [{"prediction": 1, "probability": [0.3, 0.7]}, ...]}
type Remote struct {
	url        string
	httpClient *http.Client
}

type remoteRequest struct {
	Instances []serve.Features `json:"instances"`
}

type remoteResponse struct {
	Predictions []serve.Prediction `json:"predictions"`
}

// NewRemote creates a Remote backend for an absolute http(s) URL.
func NewRemote(rawURL string) (*Remote, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, serve.InvalidConfig("remote backend url %q must be an absolute http(s) URL", rawURL)
	}
	return &Remote{
		url:        strings.TrimRight(rawURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (r *Remote) Predict(ctx context.Context, batch []serve.Features) ([]serve.Prediction, error) {
	body, err := json.Marshal(remoteRequest{Instances: batch})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request creation: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("scorer returned %d predictions for %d instances", len(out.Predictions), len(batch))
	}
	logrus.Debugf("remote backend: scored %d instances", len(batch))
	return out.Predictions, nil
}
