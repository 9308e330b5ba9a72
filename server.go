package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/middlewares"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"bitbucket.org/mmdatafocus/backoffice_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func registerRoutes(r *gin.Engine) {
	r.POST("/signin", signinHandler())
	r.POST("/signout", middlewares.RequireSession(), signoutHandler())

	users := r.Group("/users", middlewares.RequireSession())
	{
		users.GET("", middlewares.RequirePermission("Users", "read"), listUsersHandler())
		users.POST("", middlewares.RequirePermission("Users", "create"), createUserHandler())
		users.PUT("/:id", middlewares.RequirePermission("Users", "update"), updateUserHandler())
		users.PUT("/:id/toggle", middlewares.RequirePermission("Users", "update"), toggleUserHandler())
	}

	roles := r.Group("/roles", middlewares.RequireSession())
	{
		roles.GET("", middlewares.RequirePermission("Roles", "read"), listRolesHandler())
		roles.GET("/:id", middlewares.RequirePermission("Roles", "read"), getRoleHandler())
		roles.POST("", middlewares.RequirePermission("Roles", "create"), createRoleHandler())
		roles.PUT("/:id", middlewares.RequirePermission("Roles", "update"), updateRoleHandler())
		roles.DELETE("/:id", middlewares.RequirePermission("Roles", "delete"), deleteRoleHandler())
	}
	r.GET("/modules", middlewares.RequireSession(), middlewares.RequirePermission("Roles", "read"), listModulesHandler())

	employees := r.Group("/employees", middlewares.RequireSession())
	{
		employees.GET("", middlewares.RequirePermission("Employees", "read"), listEmployeesHandler())
		employees.POST("", middlewares.RequirePermission("Employees", "create"), createEmployeeHandler())
		employees.PUT("/:id", middlewares.RequirePermission("Employees", "update"), updateEmployeeHandler())
		employees.PUT("/:id/toggle", middlewares.RequirePermission("Employees", "update"), toggleEmployeeHandler())
	}

	attendance := r.Group("/attendance", middlewares.RequireSession())
	{
		attendance.GET("", middlewares.RequirePermission("Attendance", "read"), listAttendanceHandler())
		attendance.POST("/bulk", middlewares.RequirePermission("Attendance", "create"), bulkAttendanceHandler())
	}

	salaries := r.Group("/salaries", middlewares.RequireSession())
	{
		salaries.GET("", middlewares.RequirePermission("Salaries", "read"), listSalariesHandler())
		salaries.POST("", middlewares.RequirePermission("Salaries", "create"), createSalaryHandler())
		salaries.PUT("/:id/pay", middlewares.RequirePermission("Salaries", "update"), paySalaryHandler())
	}

	exports := r.Group("/export", middlewares.RequireSession(), middlewares.RequirePermission("Reports", "read"))
	{
		exports.GET("/attendance", exportAttendanceHandler())
		exports.GET("/payroll", exportPayrollHandler())
	}

	products := r.Group("/products", middlewares.RequireSession())
	{
		products.GET("", middlewares.RequirePermission("Products", "read"), listProductsHandler())
		products.POST("", middlewares.RequirePermission("Products", "create"), createProductHandler())
		products.PUT("/:id", middlewares.RequirePermission("Products", "update"), updateProductHandler())
		products.DELETE("/:id", middlewares.RequirePermission("Products", "delete"), deleteProductHandler())
	}

	sources := r.Group("/sources", middlewares.RequireSession())
	{
		sources.GET("", middlewares.RequirePermission("Sources", "read"), listSourcesHandler())
		sources.POST("", middlewares.RequirePermission("Sources", "create"), createSourceHandler())
		sources.PUT("/:id", middlewares.RequirePermission("Sources", "update"), updateSourceHandler())
	}

	stock := r.Group("/stock-movements", middlewares.RequireSession())
	{
		stock.GET("", middlewares.RequirePermission("StockMovements", "read"), listStockMovementsHandler())
		stock.POST("", middlewares.RequirePermission("StockMovements", "create"), createStockMovementHandler())
	}

	jobs := r.Group("/job-records", middlewares.RequireSession())
	{
		jobs.GET("", middlewares.RequirePermission("JobRecords", "read"), listJobRecordsHandler())
		jobs.POST("", middlewares.RequirePermission("JobRecords", "create"), createJobRecordHandler())
		jobs.GET("/:id", middlewares.RequirePermission("JobRecords", "read"), getJobRecordHandler())
		jobs.PUT("/:id/status", middlewares.RequirePermission("JobRecords", "update"), updateJobRecordStatusHandler())
		jobs.DELETE("/:id", middlewares.RequirePermission("JobRecords", "delete"), deleteJobRecordHandler())
		jobs.POST("/:id/items", middlewares.RequirePermission("JobRecords", "update"), addLineItemHandler())
		jobs.GET("/:id/views", middlewares.RequirePermission("JobRecords", "read"), listViewLogHandler())
		jobs.GET("/:id/deletion-log", middlewares.RequirePermission("DeletionLog", "read"), listDeletionLogHandler())
	}

	items := r.Group("/line-items", middlewares.RequireSession(), middlewares.RequirePermission("JobRecords", "update"))
	{
		items.POST("/:itemId/check", checkItemHandler())
		items.POST("/:itemId/uncheck", uncheckItemHandler())
		items.PUT("/:itemId", editItemHandler())
		items.POST("/:itemId/split", splitItemHandler())
		items.DELETE("/:itemId", deleteItemHandler())
	}

	uploads := r.Group("/uploads", middlewares.RequireSession())
	{
		uploads.POST("/sign", signUploadHandler())
		uploads.POST("/complete", completeUploadHandler())
	}

	// Ops tooling (admin only): replay audit events that were marked DEAD/FAILED.
	// Reachable with an admin session or a Bearer service token.
	r.POST("/internal/ops/outbox/replay", middlewares.AuthMiddleware(), outboxReplayHandler())
}

func main() {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
