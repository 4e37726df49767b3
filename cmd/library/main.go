package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"libratrack/pkg/apperr"
	"libratrack/pkg/catalog"
	"libratrack/pkg/config"
	"libratrack/pkg/database"
	"libratrack/pkg/logging"
	"libratrack/pkg/models"
	"libratrack/pkg/retrieval"
)

var (
	db        *gorm.DB
	store     *catalog.Store
	retriever *retrieval.Retriever
	logger    = slog.Default()
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger = logging.New(cfg.Log)
	logger.Info("starting library service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err = database.Open(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	store = catalog.NewStore(db)
	retriever = retrieval.New(db)

	server := &http.Server{Addr: ":" + cfg.Library.Port, Handler: setupRouter()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("library service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

func setupRouter() *gin.Engine {
	r := gin.Default()
	r.GET("/api/v1/books", listBooks)
	r.POST("/api/v1/books", createBook)
	r.GET("/api/v1/books/popular", popularBooks)
	r.GET("/api/v1/books/:id", getBook)
	r.PUT("/api/v1/books/:id", updateBook)
	r.DELETE("/api/v1/books/:id", deleteBook)
	r.POST("/api/v1/books/:id/checkout", checkoutBook)
	r.POST("/api/v1/books/:id/return", returnBook)
	r.GET("/api/v1/books/:id/availability", bookAvailability)
	r.GET("/api/v1/checkouts", listCheckouts)
	r.GET("/manage/health", healthCheck)
	return r
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func listBooks(c *gin.Context) {
	books, err := store.ListBooks(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func createBook(c *gin.Context) {
	var in catalog.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	book, err := store.CreateBook(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func getBook(c *gin.Context) {
	book, err := store.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func updateBook(c *gin.Context) {
	var in catalog.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	book, err := store.UpdateBook(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func deleteBook(c *gin.Context) {
	if err := store.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	BorrowerName string `json:"borrowerName"`
	DueDate      string `json:"dueDate"`
}

// parseDueDate accepts a full timestamp or a plain date from a form field.
func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Validation("dueDate", "is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		// End of the due day.
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, apperr.Validation("dueDate", "must be an RFC 3339 timestamp or YYYY-MM-DD")
}

func checkoutBook(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}

	checkout, err := store.CheckoutBook(c.Request.Context(), c.Param("id"), catalog.CheckoutInput{
		BorrowerName: req.BorrowerName,
		DueDate:      due,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logger.Info("book checked out", "book", checkout.BookID, "checkout", checkout.ID, "due", checkout.DueDate)
	c.JSON(http.StatusCreated, checkout)
}

func returnBook(c *gin.Context) {
	checkout, err := store.ReturnBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	logger.Info("book returned", "book", checkout.BookID, "checkout", checkout.ID)
	c.JSON(http.StatusOK, checkout)
}

func bookAvailability(c *gin.Context) {
	avail, err := retriever.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

type checkoutView struct {
	models.Checkout
	Overdue bool `json:"overdue"`
}

func listCheckouts(c *gin.Context) {
	checkouts, err := store.ListCheckouts(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	now := store.Now()
	items := make([]checkoutView, len(checkouts))
	for i, co := range checkouts {
		items[i] = checkoutView{Checkout: co, Overdue: co.IsOverdue(now)}
	}
	c.JSON(http.StatusOK, items)
}

func popularBooks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(retrieval.PopularLimit)))
	if err != nil || limit < 1 || limit > 50 {
		limit = retrieval.PopularLimit
	}
	books, err := retriever.Popular(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
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
		"details": "Library service is active",
	})
}
