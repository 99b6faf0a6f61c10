package api

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/snipe-engine/internal/engine"
)

type APIHandler struct {
	engine      *engine.Engine
	wsHub       *Hub
	dbConnected bool
}

func SetupRouter(eng *engine.Engine, wsHub *Hub, dbConnected bool) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://app.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{engine: eng, wsHub: wsHub, dbConnected: dbConnected}

	api := r.Group("/api/v1")
	{
		api.POST("/sessions/start", handler.handleStartSession)
		api.POST("/sessions/stop", handler.handleStopSession)
		api.GET("/sessions/view", handler.handleSessionView)

		api.POST("/bundles/prepare", handler.handlePrepareBundle)
		api.POST("/bundles/submit", handler.handleSubmitBundle)

		api.GET("/viz/stream", wsHub.Subscribe)
		api.GET("/health", handler.handleHealth)
	}

	return r
}

// handleStartSession installs (or replaces) a session config and starts it.
// POST /api/v1/sessions/start { "owner": "...", "config": {...} }
func (h *APIHandler) handleStartSession(c *gin.Context) {
	var req struct {
		Owner  string            `json:"owner"`
		Config *engine.BotConfig `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {owner, config}"})
		return
	}

	if err := h.engine.StartSession(c.Request.Context(), req.Owner, req.Config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "owner": req.Owner})
}

// handleStopSession flips a session off.
// POST /api/v1/sessions/stop { "cluster": "mainnet", "owner": "..." }
func (h *APIHandler) handleStopSession(c *gin.Context) {
	var req struct {
		Cluster engine.Cluster `json:"cluster"`
		Owner   string         `json:"owner"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {cluster, owner}"})
		return
	}

	if err := h.engine.StopSession(c.Request.Context(), req.Cluster, req.Owner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "owner": req.Owner})
}

// handleSessionView returns the session read model. When the pending action
// still needs its unsigned transactions, the poll itself triggers
// materialization so the next response carries signable payloads.
// GET /api/v1/sessions/view?cluster=mainnet&owner=...
func (h *APIHandler) handleSessionView(c *gin.Context) {
	cluster := engine.Cluster(c.DefaultQuery("cluster", string(engine.ClusterMainnet)))
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter is required"})
		return
	}

	view, err := h.engine.GetSessionView(cluster, owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if view.PendingAction != nil && view.PendingAction.NeedsUnsignedTxs {
		if err := h.engine.Materialize(c.Request.Context(), cluster, owner); err != nil {
			// Materialization failures clear the pending action inside the
			// engine; the refreshed view below reflects whatever happened.
			log.Printf("Materialize failed for %s: %v", owner, err)
		}
		if refreshed, err := h.engine.GetSessionView(cluster, owner); err == nil {
			view = refreshed
		}
	}

	c.JSON(http.StatusOK, view)
}

// handlePrepareBundle validates, simulates, and records a signed tx sequence.
// POST /api/v1/bundles/prepare { "cluster": "mainnet", "owner": "...", "signedTxsBase64": [...] }
func (h *APIHandler) handlePrepareBundle(c *gin.Context) {
	var req struct {
		Cluster         engine.Cluster `json:"cluster"`
		Owner           string         `json:"owner"`
		SignedTxsBase64 []string       `json:"signedTxsBase64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {cluster, owner, signedTxsBase64}"})
		return
	}

	result, err := h.engine.PrepareBundle(c.Request.Context(), req.Cluster, req.Owner, req.SignedTxsBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSubmitBundle sends a previously prepared bundle to the block engine.
// POST /api/v1/bundles/submit { "cluster": "mainnet", "owner": "...", "localId": "..." }
func (h *APIHandler) handleSubmitBundle(c *gin.Context) {
	var req struct {
		Cluster engine.Cluster `json:"cluster"`
		Owner   string         `json:"owner"`
		LocalID string         `json:"localId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {cluster, owner, localId}"})
		return
	}

	result, err := h.engine.SubmitBundle(c.Request.Context(), req.Cluster, req.Owner, req.LocalID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "Snipe Engine v1.0",
		"capabilities": gin.H{
			"auto_snipe":     true,
			"list_snipe":     true,
			"volume_bot":     true,
			"mev_bundles":    true,
			"token2022_gate": true,
		},
		"dbConnected": h.dbConnected,
	})
}
