package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"libratrack/pkg/circuitbreaker"
	"libratrack/pkg/config"
	"libratrack/pkg/logging"
)

// upstream is a backend service guarded by its own breaker.
type upstream struct {
	name    string
	baseURL string
	breaker *circuitbreaker.CircuitBreaker
}

var (
	libraryService   *upstream
	assistantService *upstream
	httpClient       *http.Client
	logger           = slog.Default()
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger = logging.New(cfg.Log)
	logger.Info("starting gateway")

	setupUpstreams(cfg.Gateway)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: ":" + cfg.Gateway.Port, Handler: setupRouter()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", server.Addr,
		"library", cfg.Gateway.LibraryServiceURL, "assistant", cfg.Gateway.AssistantServiceURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

func setupUpstreams(cfg config.GatewayConfig) {
	httpClient = &http.Client{Timeout: cfg.Timeout}
	libraryService = &upstream{
		name:    "library",
		baseURL: strings.TrimRight(cfg.LibraryServiceURL, "/"),
		breaker: circuitbreaker.NewCircuitBreaker("library", cfg.MaxFailures, cfg.OpenTimeout, logger),
	}
	assistantService = &upstream{
		name:    "assistant",
		baseURL: strings.TrimRight(cfg.AssistantServiceURL, "/"),
		breaker: circuitbreaker.NewCircuitBreaker("assistant", cfg.MaxFailures, cfg.OpenTimeout, logger),
	}
}

func setupRouter() *gin.Engine {
	r := gin.Default()

	library := proxyHandler(libraryService)
	r.Any("/api/v1/books", library)
	r.Any("/api/v1/books/*path", library)
	r.Any("/api/v1/checkouts", library)

	assistant := proxyHandler(assistantService)
	r.Any("/api/v1/assistant", assistant)
	r.Any("/api/v1/conversations", assistant)
	r.Any("/api/v1/conversations/*path", assistant)

	r.GET("/manage/health", healthCheck)
	return r
}

type proxied struct {
	status      int
	contentType string
	body        []byte
}

// proxyHandler relays the request to u unchanged. Transport errors and 5xx
// answers count against the upstream's breaker; while it is open the
// gateway answers 503 itself.
func proxyHandler(u *upstream) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := u.baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			url += "?" + c.Request.URL.RawQuery
		}

		var out proxied
		err := u.breaker.Execute(func() error {
			request, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
			if err != nil {
				return err
			}
			if ct := c.GetHeader("Content-Type"); ct != "" {
				request.Header.Set("Content-Type", ct)
			}
			request.Header.Set("Accept", "application/json")

			response, err := httpClient.Do(request)
			if err != nil {
				if c.Request.Context().Err() != nil {
					return circuitbreaker.Unrecorded(err)
				}
				return err
			}
			defer response.Body.Close()
			body, err := io.ReadAll(response.Body)
			if err != nil {
				return err
			}
			out = proxied{status: response.StatusCode, contentType: response.Header.Get("Content-Type"), body: body}
			if response.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("%s returned %d", u.name, response.StatusCode)
			}
			return nil
		}, nil)

		if errors.Is(err, circuitbreaker.ErrOpen) || out.status == 0 {
			if err != nil {
				logger.Warn("upstream unavailable", "service", u.name, "path", c.Request.URL.Path, "error", err)
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": u.name + " service unavailable"})
			return
		}

		if out.status == http.StatusNoContent {
			c.Status(out.status)
			return
		}
		contentType := out.contentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(out.status, contentType, out.body)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"upstreams": gin.H{
			libraryService.name:   libraryService.breaker.GetState().String(),
			assistantService.name: assistantService.breaker.GetState().String(),
		},
	})
}
