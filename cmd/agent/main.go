package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharmayash2805/Event-Attendance-System/internal/config"
	"github.com/sharmayash2805/Event-Attendance-System/internal/device"
	"github.com/sharmayash2805/Event-Attendance-System/internal/httpmiddleware"
	"github.com/sharmayash2805/Event-Attendance-System/internal/pending"
	"github.com/sharmayash2805/Event-Attendance-System/internal/queue"
	"github.com/sharmayash2805/Event-Attendance-System/internal/reconcile"
	"github.com/sharmayash2805/Event-Attendance-System/internal/remote"
	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
	"github.com/sharmayash2805/Event-Attendance-System/internal/store"
	"github.com/sharmayash2805/Event-Attendance-System/internal/syncer"
)

// The agent owns the on-device cache and the reconciliation core, exposing
// both to the UI shell over a local HTTP API.
func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
}

func run(cfg config.App) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	deviceID, err := device.GetOrCreate(context.Background(), db.Client)
	if err != nil {
		return err
	}
	log.Printf("device id %s", deviceID)

	var trigger queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		trigger = queue.NewRedisQueue(redisClient.Client, "attendance:sync")
	} else {
		trigger = queue.NewInMemory(64)
	}

	rosterStore := roster.NewStore(db.Client)
	pendingQueue := pending.NewQueue(db.Client)
	client := remote.New(cfg.ServerURL, deviceID, cfg.ConnectTimeout, cfg.RequestTimeout)
	engine := reconcile.NewEngine(rosterStore, pendingQueue, client, trigger)
	drainer := syncer.NewDrainer(rosterStore, pendingQueue, client)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		serverReachable := client.Ping(c.Request.Context(), 0)
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "server": serverReachable})
	})

	v1 := r.Group("/v1")

	v1.POST("/scan", func(c *gin.Context) {
		var req struct {
			EventID   int64  `json:"event_id" binding:"required"`
			UID       string `json:"uid" binding:"required"`
			LocalOnly bool   `json:"local_only"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var outcome reconcile.Outcome
		if req.LocalOnly {
			outcome = engine.MarkPresentLocal(c.Request.Context(), req.EventID, req.UID)
		} else {
			outcome = engine.MarkPresent(c.Request.Context(), req.EventID, req.UID)
		}
		c.JSON(http.StatusOK, outcome)
	})

	v1.POST("/students", func(c *gin.Context) {
		var req struct {
			EventID int64  `json:"event_id" binding:"required"`
			UID     string `json:"uid" binding:"required"`
			Name    string `json:"name" binding:"required"`
			Branch  string `json:"branch"`
			Year    string `json:"year"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome := engine.AddStudentAndMark(c.Request.Context(), req.EventID, req.UID, req.Name, req.Branch, req.Year)
		c.JSON(http.StatusOK, outcome)
	})

	v1.GET("/search", func(c *gin.Context) {
		eventID, ok := eventIDQuery(c)
		if !ok {
			return
		}
		q := c.Query("q")
		if len(q) < 2 {
			c.JSON(http.StatusOK, gin.H{"students": []roster.Student{}})
			return
		}
		students, err := rosterStore.Search(c.Request.Context(), eventID, q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	v1.GET("/stats", func(c *gin.Context) {
		eventID, ok := eventIDQuery(c)
		if !ok {
			return
		}
		stats, err := rosterStore.EventStats(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	v1.GET("/roster", func(c *gin.Context) {
		eventID, ok := eventIDQuery(c)
		if !ok {
			return
		}
		students, err := rosterStore.All(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	v1.POST("/roster/import", func(c *gin.Context) {
		var req struct {
			EventID  int64            `json:"event_id" binding:"required"`
			Students []roster.Student `json:"students" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for i := range req.Students {
			req.Students[i].EventID = req.EventID
		}
		if err := rosterStore.InsertAll(c.Request.Context(), req.Students); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": len(req.Students)})
	})

	// Pull the server roster and fold it into the cache (merge-on-select).
	v1.POST("/roster/pull", func(c *gin.Context) {
		var req struct {
			EventID int64 `json:"event_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		students, err := client.Roster(c.Request.Context(), req.EventID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if err := rosterStore.MergeSnapshot(c.Request.Context(), req.EventID, students); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"merged": len(students)})
	})

	v1.POST("/reset", func(c *gin.Context) {
		var req struct {
			EventID int64 `json:"event_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		if err := rosterStore.Reset(ctx, req.EventID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := pendingQueue.Clear(ctx, req.EventID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reset": true})
	})

	v1.GET("/events", func(c *gin.Context) {
		activeOnly := c.Query("active") != "0"
		events, err := client.Events(c.Request.Context(), activeOnly)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	v1.GET("/session", func(c *gin.Context) {
		eventID, ok := eventIDQuery(c)
		if !ok {
			return
		}
		session, err := client.OpenSession(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if session == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
			return
		}
		c.JSON(http.StatusOK, session)
	})

	// Manual sync trigger for pull-to-refresh style UI actions.
	v1.POST("/sync", func(c *gin.Context) {
		report, err := drainer.Drain(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("agent listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("agent exited")
	return nil
}

func eventIDQuery(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("event_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid event_id required"})
		return 0, false
	}
	return id, true
}

// CORS for the embedded webview shell.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
