// Package retrieval holds the read-only queries the assistant folds into prompts.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"libratrack/pkg/apperr"
	"libratrack/pkg/catalog"
	"libratrack/pkg/intent"
	"libratrack/pkg/models"
)

const (
	SearchLimit  = 5
	PopularLimit = 5
)

// BookData is the projection of a book exposed to the model.
type BookData struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	PublicationYear *int   `json:"publicationYear,omitempty"`
}

type Availability struct {
	Available bool       `json:"available"`
	DueDate   *time.Time `json:"dueDate"`
}

// BookDetail is a book merged with its availability.
type BookDetail struct {
	BookData
	Availability
}

// PopularBook is a ranked book with its lifetime checkout count.
type PopularBook struct {
	BookData
	CheckoutCount int64 `json:"checkoutCount"`
}

// Context is the data attached to a single conversational turn. At most one
// field is set per turn.
type Context struct {
	SearchResults []BookData    `json:"searchResults"`
	BookDetails   *BookDetail   `json:"bookDetails"`
	PopularBooks  []PopularBook `json:"popularBooks"`
}

// MarshalJSON emits only the fields that were fetched, so an empty search
// still tells the model that nothing matched.
func (c Context) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 1)
	if c.SearchResults != nil {
		out["searchResults"] = c.SearchResults
	}
	if c.BookDetails != nil {
		out["bookDetails"] = c.BookDetails
	}
	if c.PopularBooks != nil {
		out["popularBooks"] = c.PopularBooks
	}
	return json.Marshal(out)
}

func (c *Context) IsEmpty() bool {
	return c == nil || (c.SearchResults == nil && c.BookDetails == nil && c.PopularBooks == nil)
}

type Retriever struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Retriever {
	return &Retriever{db: db}
}

func toBookData(b models.Book) BookData {
	return BookData{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Genre:           b.Genre,
		Description:     b.Description,
		Status:          b.Status,
		PublicationYear: b.PublicationYear,
	}
}

// Search matches the query case-insensitively against title, author, genre,
// isbn and description. At most SearchLimit books are returned.
func (r *Retriever) Search(ctx context.Context, query string) ([]BookData, error) {
	var books []models.Book
	err := catalog.WhereContains(r.db.WithContext(ctx), strings.TrimSpace(query),
		"title", "author", "genre", "isbn", "description").
		Limit(SearchLimit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	out := make([]BookData, 0, len(books))
	for _, b := range books {
		out = append(out, toBookData(b))
	}
	return out, nil
}

// Details returns nil without error when the book does not exist.
func (r *Retriever) Details(ctx context.Context, bookID string) (*BookData, error) {
	if _, err := uuid.Parse(bookID); err != nil {
		return nil, nil
	}
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("book details: %w", err)
	}
	data := toBookData(book)
	return &data, nil
}

func (r *Retriever) Availability(ctx context.Context, bookID string) (*Availability, error) {
	if _, err := uuid.Parse(bookID); err != nil {
		return nil, apperr.NotFound("book not found")
	}
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("book availability: %w", err)
	}

	out := &Availability{Available: book.Status == models.StatusAvailable}

	var open []models.Checkout
	err = r.db.WithContext(ctx).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Order("checkout_date DESC").
		Limit(1).
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("book availability: %w", err)
	}
	if len(open) > 0 {
		due := open[0].DueDate
		out.DueDate = &due
	}
	return out, nil
}

type popularRow struct {
	ID            string
	Title         string
	CheckoutCount int64
}

// Popular ranks books by lifetime checkout count. Ties go to the book checked
// out most recently, then to title and id order.
func (r *Retriever) Popular(ctx context.Context, limit int) ([]PopularBook, error) {
	if limit <= 0 {
		limit = PopularLimit
	}

	var rows []popularRow
	err := r.db.WithContext(ctx).
		Table("books").
		Select("books.id AS id, books.title AS title, COUNT(checkouts.id) AS checkout_count").
		Joins("LEFT JOIN checkouts ON checkouts.book_id = books.id").
		Group("books.id, books.title").
		Order("checkout_count DESC").
		Order("MAX(checkouts.checkout_date) DESC").
		Order("books.title ASC").
		Order("books.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("popular books: %w", err)
	}
	if len(rows) == 0 {
		return []PopularBook{}, nil
	}

	ids := make([]string, len(rows))
	rank := make(map[string]int, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		rank[row.ID] = i
	}

	var books []models.Book
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("popular books: %w", err)
	}
	sort.Slice(books, func(i, j int) bool { return rank[books[i].ID] < rank[books[j].ID] })

	out := make([]PopularBook, 0, len(books))
	for _, b := range books {
		out = append(out, PopularBook{BookData: toBookData(b), CheckoutCount: rows[rank[b.ID]].CheckoutCount})
	}
	return out, nil
}

// Fetch resolves an assistant action into the context for one turn. It
// returns nil when there is nothing to attach.
func (r *Retriever) Fetch(ctx context.Context, action *intent.Action) (*Context, error) {
	if action == nil {
		return nil, nil
	}

	switch action.Type {
	case intent.ActionSearch:
		if strings.TrimSpace(action.Query) == "" {
			return nil, nil
		}
		books, err := r.Search(ctx, action.Query)
		if err != nil {
			return nil, err
		}
		return &Context{SearchResults: books}, nil

	case intent.ActionDetails:
		if action.BookID == "" {
			return nil, nil
		}
		book, err := r.Details(ctx, action.BookID)
		if err != nil || book == nil {
			return nil, err
		}
		avail, err := r.Availability(ctx, action.BookID)
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted between the two reads.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &Context{BookDetails: &BookDetail{BookData: *book, Availability: *avail}}, nil

	case intent.ActionPopular:
		books, err := r.Popular(ctx, PopularLimit)
		if err != nil {
			return nil, err
		}
		return &Context{PopularBooks: books}, nil
	}
	return nil, nil
}
