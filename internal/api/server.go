// Package api is the operational HTTP surface: health, status, the kill
// switch and provider switching. It never sits in the event path.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orderflow-core/internal/events"
	"orderflow-core/internal/provider"
	"orderflow-core/internal/risk"
)

// Server wires the ops endpoints over the running pipeline.
type Server struct {
	log      *zap.Logger
	bus      *events.Bus
	risk     *risk.Engine
	manager  *provider.Manager
	registry *prometheus.Registry
	symbols  []string

	httpSrv *http.Server
}

func NewServer(
	log *zap.Logger,
	bus *events.Bus,
	riskEngine *risk.Engine,
	manager *provider.Manager,
	registry *prometheus.Registry,
	symbols []string,
) *Server {
	return &Server{
		log:      log,
		bus:      bus,
		risk:     riskEngine,
		manager:  manager,
		registry: registry,
		symbols:  symbols,
	}
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/status", s.status)
	r.POST("/killswitch/engage", s.engageKillSwitch)
	r.POST("/killswitch/reset", s.resetKillSwitch)
	r.POST("/provider/switch", s.switchProvider)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

// Start serves the ops API until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("ops api listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	engaged, reason := s.risk.KillSwitch().Engaged()
	exposure := make(map[string]float64, len(s.symbols))
	for _, sym := range s.symbols {
		exposure[sym] = s.risk.Exposure(sym)
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":            s.manager.Active(),
		"kill_switch":         engaged,
		"kill_switch_reason":  reason,
		"subscribers":         s.bus.SubscriberCount(),
		"queue_dropped_total": s.bus.Dropped(),
		"handler_faults":      s.bus.Faults(),
		"exposure":            exposure,
	})
}

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) engageKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	s.risk.KillSwitch().Engage(req.Reason)
	c.JSON(http.StatusOK, gin.H{"engaged": true, "reason": req.Reason})
}

func (s *Server) resetKillSwitch(c *gin.Context) {
	s.risk.KillSwitch().Reset()
	c.JSON(http.StatusOK, gin.H{"engaged": false})
}

type switchRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (s *Server) switchProvider(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.Start(req.Provider); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": req.Provider})
}
