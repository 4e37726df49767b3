package database

import (
	"gorm.io/gorm"

	"libratrack/pkg/models"
)

func intPtr(v int) *int { return &v }

var defaultBooks = []models.Book{
	{
		Title:           "To Kill a Mockingbird",
		Author:          "Harper Lee",
		ISBN:            "9780061120084",
		Publisher:       "HarperCollins",
		Genre:           "Fiction",
		Description:     "The unforgettable novel of a childhood in a sleepy Southern town and the crisis of conscience that rocked it.",
		PageCount:       intPtr(336),
		PublicationYear: intPtr(1960),
	},
	{
		Title:           "1984",
		Author:          "George Orwell",
		ISBN:            "9780451524935",
		Publisher:       "Signet Classics",
		Genre:           "Dystopian",
		Description:     "Among the seminal texts of the 20th century, Nineteen Eighty-Four is a rare work that grows more haunting as its futuristic purgatory becomes more real.",
		PageCount:       intPtr(328),
		PublicationYear: intPtr(1949),
	},
	{
		Title:           "The Great Gatsby",
		Author:          "F. Scott Fitzgerald",
		ISBN:            "9780743273565",
		Publisher:       "Scribner",
		Genre:           "Fiction",
		Description:     "The story of the fabulously wealthy Jay Gatsby and his love for the beautiful Daisy Buchanan.",
		PageCount:       intPtr(180),
		PublicationYear: intPtr(1925),
	},
	{
		Title:           "Harry Potter and the Sorcerer's Stone",
		Author:          "J.K. Rowling",
		ISBN:            "9780590353427",
		Publisher:       "Scholastic",
		Genre:           "Fantasy",
		Description:     "Harry Potter has no idea how famous he is, raised by an aunt and uncle terrified he will learn he is really a wizard.",
		PageCount:       intPtr(309),
		PublicationYear: intPtr(1997),
	},
	{
		Title:           "The Hobbit",
		Author:          "J.R.R. Tolkien",
		ISBN:            "9780618260300",
		Publisher:       "Houghton Mifflin",
		Genre:           "Fantasy",
		Description:     "A glorious account of a magnificent adventure, filled with suspense and seasoned with a quiet humor.",
		PageCount:       intPtr(366),
		PublicationYear: intPtr(1937),
	},
	{
		Title:           "Pride and Prejudice",
		Author:          "Jane Austen",
		ISBN:            "9780141439518",
		Publisher:       "Penguin Classics",
		Genre:           "Classic",
		Description:     "Since its immediate success in 1813, Pride and Prejudice has remained one of the most popular novels in the English language.",
		PageCount:       intPtr(435),
		PublicationYear: intPtr(1813),
	},
	{
		Title:           "The Catcher in the Rye",
		Author:          "J.D. Salinger",
		ISBN:            "9780316769488",
		Publisher:       "Little, Brown and Company",
		Genre:           "Fiction",
		Description:     "The hero-narrator is an ancient child of sixteen, a native New Yorker named Holden Caulfield.",
		PageCount:       intPtr(277),
		PublicationYear: intPtr(1951),
	},
	{
		Title:           "The Alchemist",
		Author:          "Paulo Coelho",
		ISBN:            "9780062315007",
		Publisher:       "HarperOne",
		Genre:           "Fiction",
		Description:     "The mystical story of Santiago, an Andalusian shepherd boy who yearns to travel in search of a worldly treasure.",
		PageCount:       intPtr(197),
		PublicationYear: intPtr(1988),
	},
}

// Seed inserts the default catalogue, skipping books whose ISBN already exists.
// It returns the number of books created.
func Seed(db *gorm.DB) (int, error) {
	created := 0
	for _, book := range defaultBooks {
		var count int64
		if err := db.Model(&models.Book{}).Where("isbn = ?", book.ISBN).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}
		b := book
		if err := db.Create(&b).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
