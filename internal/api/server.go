// Package api serves stored opportunities, bid history and the watchlist
// over http, and pushes monitor events to websocket clients.
package api

import (
	"context"
	"errors"
	"log/slog"
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/report"
	"lotwatch/internal/store"
	"lotwatch/lib/util/serviceutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const report_server_request = "server.request"

type Server struct {
	store store.Store
	hub   *Hub
	clock chrono.API
	tel   telemetry.API
}

func NewServer(st store.Store, hub *Hub, clock chrono.API, tel telemetry.API) Server {
	assert.NotNil(hub, "hub")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")
	return Server{
		store: st,
		hub:   hub,
		clock: clock,
		tel:   telemetry.NewScopedAPI("api", tel),
	}
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	slog.DebugContext(
		c.Request.Context(),
		"http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"took", time.Since(start),
	)
}

func (s Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	v1 := r.Group("/api/v1")
	v1.GET("/opportunities", s.opportunities)
	v1.GET("/lots/:id/history", s.history)
	v1.GET("/watchlist", s.watchlist)
	v1.POST("/watchlist", s.watch)
	v1.DELETE("/watchlist/:id", s.unwatch)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// ListenAndServe serves the api on `addr` until ctx is done.
func (s Server) ListenAndServe(ctx context.Context, addr string) error {
	defer s.hub.Close()
	return serviceutil.StartHttpServer(ctx, addr, s.Handler())
}

func (s Server) fail(c *gin.Context, err error) {
	s.tel.ReportWarning(report_server_request, c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func queryFloat(c *gin.Context, key string, fallback float64) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

func (s Server) opportunities(c *gin.Context) {
	minScore, ok := queryFloat(c, "min_score", 0)
	if !ok {
		return
	}
	limit, ok := queryFloat(c, "limit", 50)
	if !ok {
		return
	}
	if limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	list, err := s.store.TopOpportunities(c.Request.Context(), minScore, int(limit), s.clock.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report.OpportunityRows(list)})
}

type snapshotJSON struct {
	ObservedAt time.Time       `json:"observed_at"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	BidCount   int             `json:"bid_count"`
	IsClosed   bool            `json:"is_closed"`
}

func (s Server) history(c *gin.Context) {
	ctx := c.Request.Context()
	lotID := c.Param("id")

	snapshots, err := s.store.History(ctx, lotID)
	if err != nil {
		s.fail(c, err)
		return
	}
	record, err := s.store.GetLot(ctx, lotID)
	switch {
	case errors.Is(err, store.ErrLotNotFound):
		if len(snapshots) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown lot"})
			return
		}
	case err != nil:
		s.fail(c, err)
		return
	}

	out := make([]snapshotJSON, len(snapshots))
	for i, snap := range snapshots {
		out[i] = snapshotJSON{
			ObservedAt: snap.ObservedAt,
			CurrentBid: snap.CurrentBid,
			BidCount:   snap.BidCount,
			IsClosed:   snap.IsClosed,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"lot_id":    lotID,
		"title":     record.Title,
		"snapshots": out,
	})
}

type watchJSON struct {
	LotID   string          `json:"lot_id"`
	MaxBid  decimal.Decimal `json:"max_bid"`
	Note    string          `json:"note"`
	AddedAt time.Time       `json:"added_at"`
}

func (s Server) watchlist(c *gin.Context) {
	entries, err := s.store.Watchlist(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]watchJSON, len(entries))
	for i, e := range entries {
		out[i] = watchJSON{LotID: e.LotID, MaxBid: e.MaxBid, Note: e.Note, AddedAt: e.AddedAt}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s Server) watch(c *gin.Context) {
	var req watchJSON
	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.LotID = strings.TrimSpace(req.LotID)
	if req.LotID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lot_id is required"})
		return
	}
	if req.MaxBid.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_bid cannot be negative"})
		return
	}

	req.AddedAt = time.Now()
	err = s.store.Watch(c.Request.Context(), store.WatchEntry{
		LotID:   req.LotID,
		MaxBid:  req.MaxBid,
		Note:    req.Note,
		AddedAt: req.AddedAt,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s Server) unwatch(c *gin.Context) {
	removed, err := s.store.Unwatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "lot is not on the watchlist"})
		return
	}
	c.Status(http.StatusNoContent)
}
