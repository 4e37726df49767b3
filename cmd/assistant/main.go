package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"libratrack/pkg/apperr"
	"libratrack/pkg/assistant"
	"libratrack/pkg/circuitbreaker"
	"libratrack/pkg/config"
	"libratrack/pkg/database"
	"libratrack/pkg/history"
	"libratrack/pkg/llm"
	"libratrack/pkg/logging"
	"libratrack/pkg/retrieval"
)

const (
	statusMessage       = "The assistant API is running"
	invalidMessages     = "Invalid messages format"
	processingFailedMsg = "An error occurred processing your request"
)

var (
	db     *gorm.DB
	svc    *assistant.Service
	logger = slog.Default()
)

func main() {
	manager, err := config.NewManager("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := manager.Get()
	logger = logging.New(cfg.Log)
	logger.Info("starting assistant service", "config", manager.ConfigFileUsed())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err = database.Open(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}

	breaker := circuitbreaker.NewCircuitBreaker("model", cfg.Gateway.MaxFailures, cfg.Gateway.OpenTimeout, logger)
	model := llm.New(cfg.Model, breaker, logger)
	manager.OnChange(func(next *config.Config) {
		logger.Info("config changed, reloading model settings")
		model.Reload(next.Model)
	})
	manager.WatchConfig()

	svc = assistant.NewService(retrieval.New(db), model, history.NewGormStore(db), logger)

	server := &http.Server{Addr: ":" + cfg.Assistant.Port, Handler: setupRouter()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("assistant service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

func setupRouter() *gin.Engine {
	r := gin.Default()
	r.POST("/api/v1/assistant", assistantTurn)
	r.GET("/api/v1/assistant", assistantStatus)
	r.POST("/api/v1/conversations", startConversation)
	r.GET("/api/v1/conversations", listConversations)
	r.GET("/api/v1/conversations/:id", getConversation)
	r.DELETE("/api/v1/conversations/:id", clearConversation)
	r.POST("/api/v1/conversations/:id/messages", postMessage)
	r.GET("/manage/health", healthCheck)
	return r
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": processingFailedMsg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// assistantTurn answers a turn whose history is held by the caller.
func assistantTurn(c *gin.Context) {
	var req assistant.Request
	if err := c.ShouldBindJSON(&req); err != nil || req.Messages == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidMessages})
		return
	}

	reply, err := svc.Respond(c.Request.Context(), req)
	if err != nil {
		if apperr.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("assistant turn failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": processingFailedMsg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func assistantStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusMessage})
}

func startConversation(c *gin.Context) {
	conv, err := svc.StartConversation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func listConversations(c *gin.Context) {
	summaries, err := svc.Conversations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func getConversation(c *gin.Context) {
	conv, err := svc.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func clearConversation(c *gin.Context) {
	if err := svc.ClearConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type messageRequest struct {
	Content string `json:"content"`
}

func postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := svc.Converse(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func healthCheck(ctx *gin.Context) {
	if err := database.Ping(ctx.Request.Context(), db); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Assistant service is active",
	})
}
