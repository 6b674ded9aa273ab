// Package server exposes the dispatcher and the autoscale loop over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/inference-sim/inference-serve/serve"
	"github.com/inference-sim/inference-serve/serve/dispatch"
)

// Predictor serves predictions and reports their statistics.
type Predictor interface {
	Predict(ctx context.Context, features serve.Features) (dispatch.Result, error)
	Stats(instances int) dispatch.Stats
}

// ScaleReporter reports the autoscaler's state.
type ScaleReporter interface {
	State() serve.ScaleState
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Predictor Predictor
	Scaler    ScaleReporter
	Gatherer  prometheus.Gatherer
	Version   string

	// RequestTimeout bounds each /predict call; 0 means no bound beyond
	// the client connection.
	RequestTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	deps            Deps
	engine          *gin.Engine
	shutdownTimeout time.Duration
}

// New builds the router. Predictor and Scaler are required.
func New(deps Deps) (*Server, error) {
	if deps.Predictor == nil || deps.Scaler == nil {
		return nil, serve.InvalidConfig("server requires a predictor and a scale reporter")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps, shutdownTimeout: 10 * time.Second}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger("/health", "/metrics"))
	router.GET("/health", s.health)
	router.POST("/predict", s.predict)
	router.GET("/stats", s.stats)
	router.GET("/scale", s.scale)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	s.engine = router
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logrus.Infof("server: listening on %s", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) {
		err = multierr.Append(err, serveErr)
	}
	logrus.Infof("server: stopped")
	return err
}

func requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		logrus.Debugf("server: %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
