// Package catalog owns writes to the book and checkout tables, including the
// checkout/return state machine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"libratrack/pkg/apperr"
	"libratrack/pkg/models"
)

// BookInput carries the writable descriptive fields of a book. Nil fields are
// left untouched on update. Status is not writable here.
type BookInput struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	Publisher       *string `json:"publisher"`
	Genre           *string `json:"genre"`
	Description     *string `json:"description"`
	CoverImage      *string `json:"coverImage"`
	PageCount       *int    `json:"pageCount"`
	PublicationYear *int    `json:"publicationYear"`
}

type CheckoutInput struct {
	BorrowerName string
	DueDate      time.Time
}

// Checkout list filters.
const (
	FilterAll      = "all"
	FilterActive   = "active"
	FilterOverdue  = "overdue"
	FilterReturned = "returned"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// WhereContains filters db to rows where any of columns contains term as a
// plain case-insensitive substring. LIKE wildcards in term match literally.
func WhereContains(db *gorm.DB, term string, columns ...string) *gorm.DB {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		clauses[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	return db.Where(strings.Join(clauses, " OR "), args...)
}

// ListBooks returns books newest first, optionally filtered by a
// case-insensitive substring of title, author, isbn or genre.
func (s *Store) ListBooks(ctx context.Context, search string) ([]models.Book, error) {
	query := s.db.WithContext(ctx).Model(&models.Book{})
	if term := strings.TrimSpace(search); term != "" {
		query = WhereContains(query, term, "title", "author", "isbn", "genre")
	}

	var books []models.Book
	if err := query.Order("created_at DESC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *Store) CreateBook(ctx context.Context, in BookInput) (*models.Book, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, apperr.Validation("title", "is required")
	}
	if in.Author == nil || strings.TrimSpace(*in.Author) == "" {
		return nil, apperr.Validation("author", "is required")
	}

	book := models.Book{Status: models.StatusAvailable}
	if err := applyInput(&book, in); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return &book, nil
}

// GetBook returns the book with its checkout history, newest first.
func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	if !validID(id) {
		return nil, apperr.NotFound("book not found")
	}
	var book models.Book
	err := s.db.WithContext(ctx).
		Preload("Checkouts", func(db *gorm.DB) *gorm.DB {
			return db.Order("checkout_date DESC")
		}).
		Where("id = ?", id).
		First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

func (s *Store) UpdateBook(ctx context.Context, id string, in BookInput) (*models.Book, error) {
	if !validID(id) {
		return nil, apperr.NotFound("book not found")
	}
	var book models.Book
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	if err := applyInput(&book, in); err != nil {
		return nil, err
	}
	// Select the descriptive columns only so a concurrent checkout's status is never overwritten.
	err = s.db.WithContext(ctx).Model(&book).
		Select("title", "author", "isbn", "publisher", "genre", "description",
			"cover_image", "page_count", "publication_year").
		Updates(&book).Error
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	return &book, nil
}

// DeleteBook removes a book and its checkout history. It is refused while the
// book has an open checkout.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("book not found")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		err := tx.Where("id = ?", id).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("book not found")
		}
		if err != nil {
			return err
		}

		var open int64
		if err := tx.Model(&models.Checkout{}).
			Where("book_id = ? AND return_date IS NULL", id).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 || book.Status == models.StatusCheckedOut {
			return apperr.Precondition("cannot delete book while it is checked out")
		}

		if err := tx.Where("book_id = ?", id).Delete(&models.Checkout{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Book{}).Error
	})
}

// CheckoutBook lends an available book. The status flip is a conditional
// update so that of two concurrent checkouts only one can succeed.
func (s *Store) CheckoutBook(ctx context.Context, id string, in CheckoutInput) (*models.Checkout, error) {
	if strings.TrimSpace(in.BorrowerName) == "" {
		return nil, apperr.Validation("borrowerName", "is required")
	}
	if in.DueDate.IsZero() {
		return nil, apperr.Validation("dueDate", "is required")
	}
	if !validID(id) {
		return nil, apperr.NotFound("book not found")
	}

	now := s.now()
	checkout := models.Checkout{
		BookID:       id,
		BorrowerName: strings.TrimSpace(in.BorrowerName),
		CheckoutDate: now,
		DueDate:      in.DueDate.UTC(),
	}
	if checkout.DueDate.Before(now.Truncate(24 * time.Hour)) {
		return nil, apperr.Validation("dueDate", "must not be in the past")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Book{}).
			Where("id = ? AND status = ?", id, models.StatusAvailable).
			Update("status", models.StatusCheckedOut)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOr(tx, id, "book is already checked out")
		}
		return tx.Create(&checkout).Error
	})
	if err != nil {
		return nil, err
	}
	return &checkout, nil
}

// ReturnBook closes the open checkout of a checked-out book.
func (s *Store) ReturnBook(ctx context.Context, id string) (*models.Checkout, error) {
	if !validID(id) {
		return nil, apperr.NotFound("book not found")
	}

	var open models.Checkout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		err := tx.Where("id = ?", id).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("book not found")
		}
		if err != nil {
			return err
		}
		if book.Status != models.StatusCheckedOut {
			return apperr.Precondition("book is not checked out")
		}

		err = tx.Where("book_id = ? AND return_date IS NULL", id).
			Order("checkout_date DESC").
			First(&open).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Precondition("no checkout record found")
		}
		if err != nil {
			return err
		}

		returned := s.now()
		if returned.Before(open.CheckoutDate) {
			returned = open.CheckoutDate
		}
		res := tx.Model(&models.Checkout{}).
			Where("id = ? AND return_date IS NULL", open.ID).
			Update("return_date", returned)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Precondition("book is not checked out")
		}

		res = tx.Model(&models.Book{}).
			Where("id = ? AND status = ?", id, models.StatusCheckedOut).
			Update("status", models.StatusAvailable)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Precondition("book is not checked out")
		}
		open.ReturnDate = &returned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &open, nil
}

// ListCheckouts returns checkouts with a book summary: open ones first, then
// by due date.
func (s *Store) ListCheckouts(ctx context.Context, filter string) ([]models.Checkout, error) {
	query := s.db.WithContext(ctx).Model(&models.Checkout{}).
		Preload("Book", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "title", "author")
		})

	switch strings.ToLower(filter) {
	case "", FilterAll:
	case FilterActive:
		query = query.Where("return_date IS NULL")
	case FilterOverdue:
		query = query.Where("return_date IS NULL AND due_date < ?", s.now())
	case FilterReturned:
		query = query.Where("return_date IS NOT NULL")
	default:
		return nil, apperr.Validation("status", "must be one of all, active, overdue, returned")
	}

	var checkouts []models.Checkout
	err := query.
		Order("CASE WHEN return_date IS NULL THEN 0 ELSE 1 END").
		Order("due_date ASC").
		Find(&checkouts).Error
	if err != nil {
		return nil, fmt.Errorf("list checkouts: %w", err)
	}
	return checkouts, nil
}

// Now is the clock used for checkout and return timestamps.
func (s *Store) Now() time.Time {
	return s.now()
}

func missingOr(tx *gorm.DB, id, msg string) error {
	var count int64
	if err := tx.Model(&models.Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.NotFound("book not found")
	}
	return apperr.Precondition(msg)
}

func applyInput(book *models.Book, in BookInput) error {
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return apperr.Validation("title", "must not be empty")
		}
		book.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		if strings.TrimSpace(*in.Author) == "" {
			return apperr.Validation("author", "must not be empty")
		}
		book.Author = strings.TrimSpace(*in.Author)
	}
	if in.PageCount != nil && *in.PageCount < 0 {
		return apperr.Validation("pageCount", "must not be negative")
	}
	if in.ISBN != nil {
		book.ISBN = strings.TrimSpace(*in.ISBN)
	}
	if in.Publisher != nil {
		book.Publisher = *in.Publisher
	}
	if in.Genre != nil {
		book.Genre = *in.Genre
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.CoverImage != nil {
		book.CoverImage = *in.CoverImage
	}
	if in.PageCount != nil {
		book.PageCount = in.PageCount
	}
	if in.PublicationYear != nil {
		book.PublicationYear = in.PublicationYear
	}
	return nil
}
