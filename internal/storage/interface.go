package storage

import (
	"context"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// BookStorage defines the persistence collaborator for book listings and
// buy requests. Implementations assign document ids on create and return
// full-collection snapshots on list.
type BookStorage interface {
	// CreateBook persists a new book and returns its assigned id.
	CreateBook(ctx context.Context, book models.Book) (string, error)

	// CreateBuyRequest persists a new buy request and returns its assigned id.
	CreateBuyRequest(ctx context.Context, request models.BuyRequest) (string, error)

	// ListBooks returns the full book collection snapshot.
	ListBooks(ctx context.Context) ([]models.Book, error)

	// ListBuyRequests returns the full buy-request collection snapshot.
	ListBuyRequests(ctx context.Context) ([]models.BuyRequest, error)

	// UpdateBuyRequest applies a partial update to an existing request.
	UpdateBuyRequest(ctx context.Context, id string, updates RequestUpdates) error

	// Close releases any underlying resources.
	Close() error
}

// RequestUpdates is the set of buy-request fields that can be patched.
// Nil fields are left untouched.
type RequestUpdates struct {
	Status *models.RequestStatus
}
