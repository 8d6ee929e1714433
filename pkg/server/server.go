package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"talksync/pkg/config"
	"talksync/pkg/logger"
	"talksync/pkg/metrics"
	"talksync/pkg/syncer"
)

// Runner performs one sync run
type Runner interface {
	Run(ctx context.Context) (*syncer.Report, error)
}

// Server exposes the archive over HTTP and accepts manual sync triggers
type Server struct {
	config  *config.Config
	runner  Runner
	metrics *metrics.Recorder
	logger  logger.Logger
	echo    *echo.Echo

	flight singleflight.Group
	wg     sync.WaitGroup

	// runCtx bounds background runs; cancelled on shutdown
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu       sync.Mutex
	running  bool
	lastRun  *syncer.Report
	lastErr  error
	lastDone time.Time
}

// New creates a server. rec may be nil, in which case /metrics is not served.
func New(cfg *config.Config, runner Runner, rec *metrics.Recorder, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		runner:    runner,
		metrics:   rec,
		logger:    log.WithField("component", "server"),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)

	s.echo = e
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes mounts the handlers on e
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/messages", s.handleMessages)
	e.GET("/files/:group/:member/:file", s.handleFile)
	e.POST("/manual/sync", s.handleManualSync)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until ctx is done, then shuts
// down and waits for a running sync to finish
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("Archive server listening", map[string]interface{}{
			"addr": s.config.Server.Addr,
		})
		errCh <- s.echo.Start(s.config.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)

	s.cancelRun()
	s.Wait()
	logger.LogComponentStop(s.logger, "server", "shutdown")
	return err
}

// Wait blocks until background sync runs have finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// TriggerSync starts a sync run in the background. A trigger arriving
// while a run is in progress joins that run instead of starting another.
func (s *Server) TriggerSync() {
	s.wg.Add(1)
	ch := s.flight.DoChan("sync", func() (interface{}, error) {
		return s.runOnce(), nil
	})
	go func() {
		defer s.wg.Done()
		<-ch
	}()
}

func (s *Server) runOnce() *syncer.Report {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	report, err := s.runner.Run(s.runCtx)

	s.mu.Lock()
	s.running = false
	s.lastRun, s.lastErr, s.lastDone = report, err, time.Now()
	s.mu.Unlock()

	fields := map[string]interface{}{}
	if report != nil {
		fields["run_id"] = report.RunID
		fields["written"] = report.Totals().Written
	}
	if err != nil {
		s.logger.WithError(err).ErrorWithFields("Manual sync ended with error", fields)
	} else {
		s.logger.InfoWithFields("Manual sync finished", fields)
	}
	return report
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logger.LogRequest(s.logger, c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := echo.Map{
		"status":  "ok",
		"running": s.running,
	}
	if s.lastRun != nil {
		last := echo.Map{
			"run_id":          s.lastRun.RunID,
			"finished_at":     s.lastDone.UTC().Format(time.RFC3339),
			"written":         s.lastRun.Totals().Written,
			"disabled_groups": s.lastRun.DisabledGroups(),
			"failed_members":  s.lastRun.FailedMembers(),
		}
		if s.lastErr != nil {
			last["error"] = s.lastErr.Error()
		}
		resp["last_run"] = last
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleManualSync(c echo.Context) error {
	s.TriggerSync()
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "status": "in_progress"})
}
