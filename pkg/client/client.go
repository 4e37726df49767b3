// Package client is the HTTP client libractl uses to reach the gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"libratrack/pkg/apperr"
	"libratrack/pkg/assistant"
	"libratrack/pkg/catalog"
	"libratrack/pkg/models"
	"libratrack/pkg/retrieval"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ErrorResponse matches the services' error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Upstream("request failed: %v", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp, result)
}

// handleResponse turns error statuses back into apperr kinds so callers can
// branch on them the same way the services do.
func handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := string(body)
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		switch {
		case resp.StatusCode == http.StatusBadRequest:
			return &apperr.ValidationError{Message: msg}
		case resp.StatusCode == http.StatusNotFound:
			return apperr.NotFound(msg)
		case resp.StatusCode == http.StatusConflict:
			return apperr.Precondition(msg)
		default:
			return apperr.Upstream("server error (%d): %s", resp.StatusCode, msg)
		}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) ListBooks(ctx context.Context, search string) ([]models.Book, error) {
	path := "/api/v1/books"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var books []models.Book
	err := c.do(ctx, http.MethodGet, path, nil, &books)
	return books, err
}

func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := c.do(ctx, http.MethodGet, "/api/v1/books/"+url.PathEscape(id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) CreateBook(ctx context.Context, in catalog.BookInput) (*models.Book, error) {
	var book models.Book
	if err := c.do(ctx, http.MethodPost, "/api/v1/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/books/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Checkout(ctx context.Context, id, borrower, dueDate string) (*models.Checkout, error) {
	var checkout models.Checkout
	body := map[string]string{"borrowerName": borrower, "dueDate": dueDate}
	if err := c.do(ctx, http.MethodPost, "/api/v1/books/"+url.PathEscape(id)+"/checkout", body, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

func (c *Client) Return(ctx context.Context, id string) (*models.Checkout, error) {
	var checkout models.Checkout
	if err := c.do(ctx, http.MethodPost, "/api/v1/books/"+url.PathEscape(id)+"/return", nil, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

func (c *Client) Availability(ctx context.Context, id string) (*retrieval.Availability, error) {
	var avail retrieval.Availability
	if err := c.do(ctx, http.MethodGet, "/api/v1/books/"+url.PathEscape(id)+"/availability", nil, &avail); err != nil {
		return nil, err
	}
	return &avail, nil
}

// CheckoutItem is a checkout as listed by the library service.
type CheckoutItem struct {
	models.Checkout
	Overdue bool `json:"overdue"`
}

func (c *Client) Checkouts(ctx context.Context, status string) ([]CheckoutItem, error) {
	path := "/api/v1/checkouts"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var items []CheckoutItem
	err := c.do(ctx, http.MethodGet, path, nil, &items)
	return items, err
}

func (c *Client) Popular(ctx context.Context, limit int) ([]retrieval.PopularBook, error) {
	var books []retrieval.PopularBook
	err := c.do(ctx, http.MethodGet, "/api/v1/books/popular?limit="+strconv.Itoa(limit), nil, &books)
	return books, err
}

// Ask sends one stateless assistant turn.
func (c *Client) Ask(ctx context.Context, req assistant.Request) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/assistant", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}
