package handlers

import (
	"net/http"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
	"github.com/AMKLAZ/Bibliotrocs/internal/store"
)

// BooksHandler exposes the buyer-facing view of available listings.
type BooksHandler struct {
	store *store.BookStore
}

// NewBooksHandler creates a new books handler.
func NewBooksHandler(bookStore *store.BookStore) *BooksHandler {
	return &BooksHandler{store: bookStore}
}

// ListBooks handles GET /v1/books. Prices are derived on the way out; the
// total is never stored.
func (h *BooksHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	available := h.store.ListAvailableBooks()

	items := make([]models.BookListing, 0, len(available))
	for i := range available {
		book := available[i]
		items = append(items, models.BookListing{
			ID:           book.ID,
			Title:        book.Title,
			ClassLevel:   book.ClassLevel,
			Publisher:    book.Publisher,
			EditionYear:  book.EditionYear,
			TotalPrice:   h.store.TotalPrice(&book),
			PhotoDataURI: book.PhotoDataURI,
		})
	}

	writeJSONResponse(w, http.StatusOK, models.ListBooksResponse{
		Items: items,
		Count: len(items),
	})
}
