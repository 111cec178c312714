// Package server 瓦片及流域的HTTP服务
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wgdzlh/floodtiles"
	"github.com/wgdzlh/floodtiles/config"
	"github.com/wgdzlh/floodtiles/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type TileRenderer interface {
	Tile(req floodtiles.TileRequest) ([]byte, error)
}

type WatershedSource interface {
	ImageBounds(path string) (orb.Bound, error)
	Candidates(path string, b orb.Bound) ([]floodtiles.Footprint, error)
	Footprint(path string, id int64) (floodtiles.Footprint, error)
}

type Server struct {
	cfg        config.Config
	session    *floodtiles.Session
	tiles      TileRenderer
	watersheds WatershedSource
	engine     *gin.Engine
	logTag     string
}

func New(cfg config.Config, session *floodtiles.Session, tiles TileRenderer, watersheds WatershedSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:        cfg,
		session:    session,
		tiles:      tiles,
		watersheds: watersheds,
		engine:     engine,
		logTag:     "Server:",
	}
	s.registerRoutes()
	return s
}

// 供测试使用
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// 阻塞运行，ctx结束后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info(s.logTag+"listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info(s.logTag + "shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	s.engine.GET("/session", s.handleSession)
	s.engine.GET("/watershed", s.handleWatershed)
	s.engine.GET("/watershed/candidates", s.handleCandidates)
	s.engine.GET("/:key/tiles/:z/:x/:y", s.handleTile)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// zap请求日志，附带请求id
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Header("X-Request-Id", reqID)
		c.Next()
		fields := []zap.Field{
			zap.String("id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Server:request failed", fields...)
		} else {
			log.Debug("Server:request", fields...)
		}
	}
}
