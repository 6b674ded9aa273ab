package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/dispatch"
)

type predictRequest struct {
	Features map[string]any `json:"features"`
}

type predictResponse struct {
	RequestID   string    `json:"request_id"`
	Prediction  int       `json:"prediction"`
	Probability []float64 `json:"probability"`
	LatencyMs   float64   `json:"latency_ms"`
	Cached      bool      `json:"cached"`
	Fingerprint string    `json:"fingerprint"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type statsResponse struct {
	Dispatch dispatch.Stats `json:"dispatch"`
	Scale    scaleResponse  `json:"scale"`
}

type scaleResponse struct {
	CurrentInstances int    `json:"current_instances"`
	MinInstances     int    `json:"min_instances"`
	MaxInstances     int    `json:"max_instances"`
	LastDecision     string `json:"last_decision"`
	Decisions        uint64 `json:"decisions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Version: s.deps.Version})
}

func (s *Server) predict(c *gin.Context) {
	var req predictRequest
	if err := serve.DecodeJSON(c.Request.Body, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Features == nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: features is required"})
		return
	}

	ctx := c.Request.Context()
	if s.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.RequestTimeout)
		defer cancel()
	}

	res, err := s.deps.Predictor.Predict(ctx, serve.Features(req.Features))
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, predictResponse{
		RequestID:   res.RequestID,
		Prediction:  res.Prediction.Prediction,
		Probability: res.Prediction.Probability,
		LatencyMs:   float64(res.Latency) / float64(time.Millisecond),
		Cached:      res.Cached,
		Fingerprint: res.Fingerprint.String(),
	})
}

func (s *Server) stats(c *gin.Context) {
	state := s.deps.Scaler.State()
	c.JSON(http.StatusOK, statsResponse{
		Dispatch: s.deps.Predictor.Stats(state.Current),
		Scale:    toScaleResponse(state),
	})
}

func (s *Server) scale(c *gin.Context) {
	c.JSON(http.StatusOK, toScaleResponse(s.deps.Scaler.State()))
}

func toScaleResponse(st serve.ScaleState) scaleResponse {
	return scaleResponse{
		CurrentInstances: st.Current,
		MinInstances:     st.Min,
		MaxInstances:     st.Max,
		LastDecision:     st.LastDecision.String(),
		Decisions:        st.Decisions,
	}
}

// statusFor maps a Predict error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, serve.ErrDegenerateInput):
		return http.StatusBadRequest
	case errors.Is(err, serve.ErrBackendFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
