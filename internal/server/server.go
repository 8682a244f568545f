package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"icdlookup/internal/config"
	"icdlookup/internal/explain"
	"icdlookup/internal/pipeline"
)

// Server exposes the code table over HTTP. The table is fetched per request so a
// replaced dataset file is picked up without a restart.
type Server struct {
	cfg       config.Config
	tables    pipeline.TableFunc
	explainer *explain.Explainer
	logger    *slog.Logger
	limiter   *rate.Limiter
}

func New(cfg config.Config, tables pipeline.TableFunc, explainer *explain.Explainer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.HTTPRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Server{
		cfg:       cfg,
		tables:    tables,
		explainer: explainer,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), recovery(s.logger), requestLogger(s.logger), compress())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.GET("/search", s.handleSearch)
	api.GET("/suggest", s.handleSuggest)
	api.GET("/chapters", s.handleChapters)
	api.GET("/codes/:code", s.handleCode)
	api.GET("/codes/:code/explain", limit(s.limiter), s.handleExplain)
	api.GET("/export.csv", s.handleExportCSV)
	api.GET("/export.xlsx", s.handleExportXLSX)

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
