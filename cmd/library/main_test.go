package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libratrack/pkg/catalog"
	"libratrack/pkg/database"
	"libratrack/pkg/models"
	"libratrack/pkg/retrieval"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	testDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	db = testDB
	store = catalog.NewStore(testDB)
	retriever = retrieval.New(testDB)
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestBook(t *testing.T, r *gin.Engine, title, author string) models.Book {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/books", gin.H{"title": title, "author": author, "genre": "Fantasy"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	return book
}

func TestListBooks(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	createTestBook(t, r, "The Hobbit", "J.R.R. Tolkien")
	createTestBook(t, r, "Dune", "Frank Herbert")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/books?search=HOBBIT", nil)

	listBooks(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	require.Len(t, response, 1)
	assert.Equal(t, "The Hobbit", response[0]["title"])
	assert.Equal(t, "AVAILABLE", response[0]["status"])
}

func TestCreateBookValidation(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()

	w := doJSON(r, http.MethodPost, "/api/v1/books", gin.H{"title": "No Author"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "author")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/books", bytes.NewBufferString("{not json"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBook(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	book := createTestBook(t, r, "Dune", "Frank Herbert")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/books/"+book.ID, nil)
	c.Params = gin.Params{gin.Param{Key: "id", Value: book.ID}}

	getBook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, book.ID, response["id"])
	assert.Equal(t, "Frank Herbert", response["author"])

	w = doJSON(r, http.MethodGet, "/api/v1/books/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"book not found"}`, w.Body.String())
}

func TestUpdateBook(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	book := createTestBook(t, r, "Dune", "Frank Herbert")

	w := doJSON(r, http.MethodPut, "/api/v1/books/"+book.ID, gin.H{"pageCount": 412, "status": "CHECKED_OUT"})
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	require.NotNil(t, updated.PageCount)
	assert.Equal(t, 412, *updated.PageCount)
	assert.Equal(t, models.StatusAvailable, updated.Status, "status is not writable")
}

func TestCheckoutAndReturnFlow(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	book := createTestBook(t, r, "Dune", "Frank Herbert")
	due := time.Now().UTC().AddDate(0, 0, 14).Format(time.RFC3339)

	w := doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Alice", "dueDate": due})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var checkout models.Checkout
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkout))
	assert.Equal(t, "Alice", checkout.BorrowerName)
	assert.Nil(t, checkout.ReturnDate)

	w = doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Bob", "dueDate": due})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"book is already checked out"}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v1/books/"+book.ID+"/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &avail)
	assert.Equal(t, false, avail["available"])
	assert.NotNil(t, avail["dueDate"])

	w = doJSON(r, http.MethodDelete, "/api/v1/books/"+book.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkout))
	assert.NotNil(t, checkout.ReturnDate)

	w = doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/return", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/v1/books/"+book.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCheckoutRequestValidation(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	book := createTestBook(t, r, "Dune", "Frank Herbert")

	w := doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Alice", "dueDate": "next tuesday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	date := time.Now().UTC().AddDate(0, 0, 3).Format(time.DateOnly)
	w = doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Alice", "dueDate": date})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestParseDueDate(t *testing.T) {
	got, err := parseDueDate("2030-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 1, 23, 59, 59, 0, time.UTC), got)

	got, err = parseDueDate("2030-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = parseDueDate("")
	assert.Error(t, err)
}

func TestListCheckouts(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	book := createTestBook(t, r, "Dune", "Frank Herbert")
	due := time.Now().UTC().AddDate(0, 0, 7).Format(time.RFC3339)
	w := doJSON(r, http.MethodPost, "/api/v1/books/"+book.ID+"/checkout", gin.H{"borrowerName": "Alice", "dueDate": due})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/checkouts?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, false, items[0]["overdue"])
	assert.Equal(t, "Alice", items[0]["borrowerName"])
	bookSummary, ok := items[0]["book"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Dune", bookSummary["title"])

	w = doJSON(r, http.MethodGet, "/api/v1/checkouts?status=returned", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v1/checkouts?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPopularBooks(t *testing.T) {
	setupTestDB(t)
	r := setupRouter()
	createTestBook(t, r, "Dune", "Frank Herbert")
	lent := createTestBook(t, r, "Emma", "Jane Austen")
	due := time.Now().UTC().AddDate(0, 0, 7).Format(time.RFC3339)
	w := doJSON(r, http.MethodPost, "/api/v1/books/"+lent.ID+"/checkout", gin.H{"borrowerName": "Alice", "dueDate": due})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/books/popular?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var books []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, lent.ID, books[0]["id"])
	assert.EqualValues(t, 1, books[0]["checkoutCount"])
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/manage/health", nil)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "UP", response["status"])
}
