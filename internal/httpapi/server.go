// internal/httpapi/server.go
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/config"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
)

// Server owns the gin engine and its lifecycle.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	log    logger.Logger
}

func NewServer(cfg config.ServerConfig, handler *Handler, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger(log))
	engine.Use(cors.New(corsConfig(cfg)))

	handler.Register(engine)

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      engine,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
		log: log,
	}
}

func corsConfig(cfg config.ServerConfig) cors.Config {
	c := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	c.AllowHeaders = append(c.AllowHeaders, requestIDHeader)
	return c
}

// Run blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("http server listening", map[string]interface{}{"addr": s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Engine exposes the router.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
