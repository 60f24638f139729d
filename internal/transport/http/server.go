// Package monitorhttp exposes the read-only monitoring surface the
// excluded UI layer consumes: last cycle report, play counts and
// prometheus metrics. It never mutates plays or submits orders.
package monitorhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"optflow/internal/logger"
	"optflow/internal/orchestrator"
	"optflow/internal/play"
	"optflow/internal/playstore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	addr   string
	router *gin.Engine
}

type Config struct {
	Addr    string
	Orch    *orchestrator.Orchestrator
	Store   *playstore.Store
	Version string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Orch == nil || cfg.Store == nil {
		return nil, errors.New("monitor http server requires orchestrator and store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "version": cfg.Version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/report", func(c *gin.Context) {
		report := cfg.Orch.LastReport()
		if report == nil {
			c.JSON(http.StatusOK, gin.H{"cycle": 0, "message": "no cycle completed yet"})
			return
		}
		c.JSON(http.StatusOK, report)
	})
	api.GET("/status", func(c *gin.Context) {
		counts, err := cfg.Store.Counts()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"plays": counts})
	})
	api.GET("/plays/:state", func(c *gin.Context) {
		st := play.State(c.Param("state"))
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state"})
			return
		}
		plays, err := cfg.Store.ListByState(c.Query("strategy"), st)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plays)
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("monitor http: listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("monitor http: %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}
