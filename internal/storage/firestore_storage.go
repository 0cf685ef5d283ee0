package storage

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

const (
	booksCollection       = "books"
	buyRequestsCollection = "buyRequests"
)

// FirestoreStorage implements BookStorage against Cloud Firestore. Document
// ids are assigned by Firestore and carried on the models as the opaque id.
// Concurrent writers from other deployments are not reconciled beyond
// Firestore's own last-write-wins semantics.
type FirestoreStorage struct {
	client *firestore.Client
}

// NewFirestoreStorage connects to the given Firestore project and database.
func NewFirestoreStorage(ctx context.Context, projectID, database string) (*FirestoreStorage, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}

	slog.Info("Firestore storage initialized", "project", projectID, "database", database)
	return &FirestoreStorage{client: client}, nil
}

// CreateBook persists a new book and returns the Firestore document id.
func (fs *FirestoreStorage) CreateBook(ctx context.Context, book models.Book) (string, error) {
	ref, _, err := fs.client.Collection(booksCollection).Add(ctx, book)
	if err != nil {
		return "", fmt.Errorf("add book: %w", err)
	}
	return ref.ID, nil
}

// CreateBuyRequest persists a new buy request and returns the document id.
func (fs *FirestoreStorage) CreateBuyRequest(ctx context.Context, request models.BuyRequest) (string, error) {
	ref, _, err := fs.client.Collection(buyRequestsCollection).Add(ctx, request)
	if err != nil {
		return "", fmt.Errorf("add buy request: %w", err)
	}
	return ref.ID, nil
}

// ListBooks returns the full book collection snapshot.
func (fs *FirestoreStorage) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book

	iter := fs.client.Collection(booksCollection).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate books: %w", err)
		}

		var book models.Book
		if err := doc.DataTo(&book); err != nil {
			slog.Warn("Skipping malformed book document", "doc", doc.Ref.ID, "error", err)
			continue
		}
		book.ID = doc.Ref.ID
		books = append(books, book)
	}
	return books, nil
}

// ListBuyRequests returns the full buy-request collection snapshot.
func (fs *FirestoreStorage) ListBuyRequests(ctx context.Context) ([]models.BuyRequest, error) {
	var requests []models.BuyRequest

	iter := fs.client.Collection(buyRequestsCollection).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate buy requests: %w", err)
		}

		var request models.BuyRequest
		if err := doc.DataTo(&request); err != nil {
			slog.Warn("Skipping malformed buy request document", "doc", doc.Ref.ID, "error", err)
			continue
		}
		request.ID = doc.Ref.ID
		requests = append(requests, request)
	}
	return requests, nil
}

// UpdateBuyRequest applies a partial update to an existing request document.
func (fs *FirestoreStorage) UpdateBuyRequest(ctx context.Context, id string, updates RequestUpdates) error {
	var fields []firestore.Update
	if updates.Status != nil {
		fields = append(fields, firestore.Update{Path: "status", Value: string(*updates.Status)})
	}
	if len(fields) == 0 {
		return nil
	}

	if _, err := fs.client.Collection(buyRequestsCollection).Doc(id).Update(ctx, fields); err != nil {
		return fmt.Errorf("update buy request %s: %w", id, err)
	}
	return nil
}

// Close closes the Firestore client.
func (fs *FirestoreStorage) Close() error {
	return fs.client.Close()
}
