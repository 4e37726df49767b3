package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libratrack/pkg/catalog"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Browse and manage the catalog",
}

var (
	bookSearch     string
	bookLimit      int
	bookInput      bookFlags
	checkoutPerson string
	checkoutDue    string
	checkoutStatus string
)

type bookFlags struct {
	title, author, isbn, publisher, genre, description string
	pageCount, year                                    int
}

// toInput keeps only the flags the user actually set.
func (f bookFlags) toInput(cmd *cobra.Command) catalog.BookInput {
	var in catalog.BookInput
	str := func(name string, v string, dst **string) {
		if cmd.Flags().Changed(name) {
			s := v
			*dst = &s
		}
	}
	num := func(name string, v int, dst **int) {
		if cmd.Flags().Changed(name) {
			n := v
			*dst = &n
		}
	}
	str("title", f.title, &in.Title)
	str("author", f.author, &in.Author)
	str("isbn", f.isbn, &in.ISBN)
	str("publisher", f.publisher, &in.Publisher)
	str("genre", f.genre, &in.Genre)
	str("description", f.description, &in.Description)
	num("pages", f.pageCount, &in.PageCount)
	num("year", f.year, &in.PublicationYear)
	return in
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books, optionally filtered by title or author",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := newClient().ListBooks(cmd.Context(), bookSearch)
		if err != nil {
			return err
		}
		return output(cmd, books)
	},
}

var booksShowCmd = &cobra.Command{
	Use:   "show <book-id>",
	Short: "Show one book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := newClient().GetBook(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, book)
	},
}

var booksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book to the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := newClient().CreateBook(cmd.Context(), bookInput.toInput(cmd))
		if err != nil {
			return err
		}
		return output(cmd, book)
	},
}

var booksDeleteCmd = &cobra.Command{
	Use:   "delete <book-id>",
	Short: "Remove a book that is not checked out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteBook(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted book %s\n", args[0])
		return nil
	},
}

var booksCheckoutCmd = &cobra.Command{
	Use:   "checkout <book-id>",
	Short: "Check a book out to a borrower",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checkout, err := newClient().Checkout(cmd.Context(), args[0], checkoutPerson, checkoutDue)
		if err != nil {
			return err
		}
		return output(cmd, checkout)
	},
}

var booksReturnCmd = &cobra.Command{
	Use:   "return <book-id>",
	Short: "Return a checked out book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checkout, err := newClient().Return(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, checkout)
	},
}

var booksAvailabilityCmd = &cobra.Command{
	Use:   "availability <book-id>",
	Short: "Show whether a book can be borrowed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		avail, err := newClient().Availability(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, avail)
	},
}

var booksPopularCmd = &cobra.Command{
	Use:   "popular",
	Short: "List the most borrowed books",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := newClient().Popular(cmd.Context(), bookLimit)
		if err != nil {
			return err
		}
		return output(cmd, books)
	},
}

var checkoutsCmd = &cobra.Command{
	Use:   "checkouts",
	Short: "List checkouts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := newClient().Checkouts(cmd.Context(), checkoutStatus)
		if err != nil {
			return err
		}
		return output(cmd, items)
	},
}

func init() {
	booksListCmd.Flags().StringVar(&bookSearch, "search", "", "case-insensitive title or author filter")
	booksPopularCmd.Flags().IntVar(&bookLimit, "limit", 5, "number of books (1-50)")

	f := booksAddCmd.Flags()
	f.StringVar(&bookInput.title, "title", "", "book title (required)")
	f.StringVar(&bookInput.author, "author", "", "book author (required)")
	f.StringVar(&bookInput.isbn, "isbn", "", "ISBN")
	f.StringVar(&bookInput.publisher, "publisher", "", "publisher")
	f.StringVar(&bookInput.genre, "genre", "", "genre")
	f.StringVar(&bookInput.description, "description", "", "short description")
	f.IntVar(&bookInput.pageCount, "pages", 0, "page count")
	f.IntVar(&bookInput.year, "year", 0, "publication year")

	booksCheckoutCmd.Flags().StringVar(&checkoutPerson, "borrower", "", "borrower name")
	booksCheckoutCmd.Flags().StringVar(&checkoutDue, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	_ = booksCheckoutCmd.MarkFlagRequired("borrower")
	_ = booksCheckoutCmd.MarkFlagRequired("due")

	checkoutsCmd.Flags().StringVar(&checkoutStatus, "status", "", "all, active, returned or overdue")

	booksCmd.AddCommand(
		booksListCmd, booksShowCmd, booksAddCmd, booksDeleteCmd,
		booksCheckoutCmd, booksReturnCmd, booksAvailabilityCmd, booksPopularCmd,
	)
}
