package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusAvailable  = "AVAILABLE"
	StatusCheckedOut = "CHECKED_OUT"
)

type Book struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"not null" json:"title"`
	Author          string    `gorm:"not null" json:"author"`
	ISBN            string    `gorm:"column:isbn;size:32" json:"isbn,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	Genre           string    `gorm:"size:80" json:"genre,omitempty"`
	Description     string    `gorm:"type:text" json:"description,omitempty"`
	CoverImage      string    `json:"coverImage,omitempty"`
	PageCount       *int      `json:"pageCount,omitempty"`
	PublicationYear *int      `json:"publicationYear,omitempty"`
	Status          string    `gorm:"size:20;not null;default:'AVAILABLE'" json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Checkouts []Checkout `gorm:"foreignKey:BookID" json:"checkouts,omitempty"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = StatusAvailable
	}
	return nil
}

// Checkout is one lending of a book. ReturnDate stays nil while the book is out.
type Checkout struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	BookID       string     `gorm:"type:uuid;index;not null" json:"bookId"`
	BorrowerName string     `gorm:"size:120;not null" json:"borrowerName"`
	CheckoutDate time.Time  `gorm:"index;not null" json:"checkoutDate"`
	DueDate      time.Time  `gorm:"not null" json:"dueDate"`
	ReturnDate   *time.Time `gorm:"index" json:"returnDate"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

func (c *Checkout) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CheckoutDate.IsZero() {
		c.CheckoutDate = time.Now()
	}
	return nil
}

func (c *Checkout) IsOpen() bool {
	return c.ReturnDate == nil
}

func (c *Checkout) IsOverdue(now time.Time) bool {
	return c.IsOpen() && c.DueDate.Before(now)
}

// Conversation is a server-owned assistant session.
type Conversation struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Turns []ConversationTurn `gorm:"foreignKey:ConversationID"`
}

type ConversationTurn struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID string    `gorm:"type:uuid;index;not null"`
	Role           string    `gorm:"size:20;not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index"`
}

// All lists every model migrated by the services.
func All() []interface{} {
	return []interface{}{&Book{}, &Checkout{}, &Conversation{}, &ConversationTurn{}}
}
