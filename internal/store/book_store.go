// Package store owns the book and buy-request collections, the
// listing/request matching logic, and the notification queue consumed by the
// conversation engine.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
	"github.com/AMKLAZ/Bibliotrocs/internal/notify"
	"github.com/AMKLAZ/Bibliotrocs/internal/storage"
)

// maxPhotoBytes caps the size of a cover photo accepted for storage.
const maxPhotoBytes = 5 << 20 // 5 MiB

// BookStore is the listing store: it owns the two persistent collections and
// the notification queue. All mutation goes through its exported operations.
type BookStore struct {
	mu sync.RWMutex

	storage storage.BookStorage
	mailer  notify.Mailer
	tracer  trace.Tracer

	serviceFee    float64
	contactNumber string

	books         []models.Book
	requests      []models.BuyRequest
	notifications []models.Notification
}

// NewBookStore creates a BookStore backed by the given persistence
// collaborator and loads the existing collection snapshots.
func NewBookStore(ctx context.Context, st storage.BookStorage, mailer notify.Mailer, serviceFee float64, contactNumber string) (*BookStore, error) {
	books, err := st.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	requests, err := st.ListBuyRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load buy requests: %w", err)
	}

	slog.Info("Book store initialized", "books", len(books), "requests", len(requests))

	return &BookStore{
		storage:       st,
		mailer:        mailer,
		tracer:        otel.Tracer("bibliotroc/store"),
		serviceFee:    serviceFee,
		contactNumber: contactNumber,
		books:         books,
		requests:      requests,
	}, nil
}

// ServiceFee returns the flat fee added to every displayed price.
func (s *BookStore) ServiceFee() float64 {
	return s.serviceFee
}

// TotalPrice derives the buyer-facing price for a book. It is never stored.
func (s *BookStore) TotalPrice(book *models.Book) float64 {
	return book.SellerPrice + s.serviceFee
}

// AddBookForSale creates a listing from a completed selling form, persists
// it, emits a success notification, and notifies every pending buy request
// whose key matches the new book.
func (s *BookStore) AddBookForSale(ctx context.Context, form models.SellingForm) (*models.Book, error) {
	ctx, span := s.tracer.Start(ctx, "store.add_book",
		trace.WithAttributes(attribute.String("book.title", form.Title)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	book := models.Book{
		Title:       form.Title,
		ClassLevel:  form.ClassLevel,
		Publisher:   form.Publisher,
		EditionYear: form.EditionYear,
		SellerPrice: form.SellerPrice,
		SellerName:  form.SellerName,
		SellerEmail: form.SellerEmail,
		SellerPhone: form.SellerPhone,
		Status:      models.BookStatusAvailable,
		CreatedAt:   time.Now(),
	}

	if len(form.Photo) > 0 {
		dataURI, err := resolvePhoto(form.Photo, form.PhotoMime)
		if err != nil {
			// The listing is still saved, just without the photo.
			slog.Warn("Could not resolve photo for storage", "title", form.Title, "error", err)
			s.appendNotification(models.Notification{
				Type:    models.NotificationError,
				Message: "La photo n'a pas pu être enregistrée. Votre livre a été mis en vente sans photo.",
			})
		} else {
			book.PhotoDataURI = dataURI
		}
	}

	id, err := s.storage.CreateBook(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("persist book: %w", err)
	}
	book.ID = id
	s.books = append(s.books, book)

	totalPrice := book.SellerPrice + s.serviceFee
	s.appendNotification(models.Notification{
		Type:        models.NotificationSuccess,
		Message:     fmt.Sprintf("Livre \"%s\" ajouté avec succès ! Le prix affiché sera de %.0fF CFA.", book.Title, totalPrice),
		BookDetails: &book,
	})

	if err := s.mailer.SendAdminNotification(notify.NewBookSubject(&book), notify.NewBookBody(&book, totalPrice)); err != nil {
		slog.Warn("Admin notification failed", "error", err)
	}

	matched := 0
	for i := range s.requests {
		req := &s.requests[i]
		if req.Status != models.RequestStatusPending || !keysMatch(req.Title, req.ClassLevel, req.Publisher, req.EditionYear, &book) {
			continue
		}

		s.appendNotification(models.Notification{
			Type:          models.NotificationMatch,
			Message:       fmt.Sprintf("Bonne nouvelle ! Le livre \"%s\" que vous avez demandé est maintenant disponible.", book.Title),
			BookDetails:   &book,
			TotalPrice:    totalPrice,
			ContactNumber: s.contactNumber,
			BuyerEmail:    req.BuyerEmail,
		})

		req.Status = models.RequestStatusNotified
		status := models.RequestStatusNotified
		if err := s.storage.UpdateBuyRequest(ctx, req.ID, storage.RequestUpdates{Status: &status}); err != nil {
			slog.Warn("Failed to persist request status", "request_id", req.ID, "error", err)
		}
		matched++
	}

	span.SetAttributes(attribute.Int("match.count", matched))
	slog.Info("Book listed", "book_id", book.ID, "title", book.Title, "matched_requests", matched)

	return &book, nil
}

// AddBuyRequest creates a buy request from a completed buying form. If an
// available book already matches the request's key, the first one found wins:
// a match notification is emitted and the request is persisted already
// notified. Otherwise an info acknowledgment is emitted and the request stays
// pending.
func (s *BookStore) AddBuyRequest(ctx context.Context, form models.BuyingForm) (*models.BuyRequest, *models.Book, error) {
	ctx, span := s.tracer.Start(ctx, "store.add_buy_request",
		trace.WithAttributes(attribute.String("request.title", form.Title)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	request := models.BuyRequest{
		Title:       form.Title,
		ClassLevel:  form.ClassLevel,
		Publisher:   form.Publisher,
		EditionYear: form.EditionYear,
		BuyerEmail:  form.BuyerEmail,
		BuyerPhone:  form.BuyerPhone,
		Status:      models.RequestStatusPending,
		CreatedAt:   time.Now(),
	}

	if err := s.mailer.SendAdminNotification(notify.NewRequestSubject(&request), notify.NewRequestBody(&request)); err != nil {
		slog.Warn("Admin notification failed", "error", err)
	}

	var matchedBook *models.Book
	for i := range s.books {
		book := &s.books[i]
		if book.Status == models.BookStatusAvailable && keysMatch(request.Title, request.ClassLevel, request.Publisher, request.EditionYear, book) {
			matchedBook = book
			break
		}
	}

	if matchedBook != nil {
		s.appendNotification(models.Notification{
			Type:          models.NotificationMatch,
			Message:       fmt.Sprintf("Bonne nouvelle ! Le livre \"%s\" que vous recherchez est disponible.", matchedBook.Title),
			BookDetails:   matchedBook,
			TotalPrice:    matchedBook.SellerPrice + s.serviceFee,
			ContactNumber: s.contactNumber,
			BuyerEmail:    request.BuyerEmail,
		})
		request.Status = models.RequestStatusNotified
	} else {
		s.appendNotification(models.Notification{
			Type:       models.NotificationInfo,
			Message:    fmt.Sprintf("Merci pour votre demande pour \"%s\". Nous vous contacterons par mail dès que ce livre sera disponible.", request.Title),
			BuyerEmail: request.BuyerEmail,
		})
	}

	id, err := s.storage.CreateBuyRequest(ctx, request)
	if err != nil {
		return nil, nil, fmt.Errorf("persist buy request: %w", err)
	}
	request.ID = id
	s.requests = append(s.requests, request)

	span.SetAttributes(attribute.Bool("match.found", matchedBook != nil))
	slog.Info("Buy request recorded", "request_id", request.ID, "title", request.Title, "status", string(request.Status))

	return &request, matchedBook, nil
}

// ListAvailableBooks returns all available books in insertion order.
func (s *BookStore) ListAvailableBooks() []models.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var available []models.Book
	for _, book := range s.books {
		if book.Status == models.BookStatusAvailable {
			available = append(available, book)
		}
	}
	return available
}

// Notifications returns the current queue contents in emission order.
func (s *BookStore) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := make([]models.Notification, len(s.notifications))
	copy(queue, s.notifications)
	return queue
}

// DrainNotifications atomically removes and returns the whole queue in
// emission order. Concurrent drains never see the same notification twice.
func (s *BookStore) DrainNotifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.notifications
	s.notifications = nil
	return drained
}

// ClearNotification removes one notification from the queue. It is
// idempotent if the notification was already removed.
func (s *BookStore) ClearNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// AddNotification enqueues a notification from outside the store, e.g. the
// conversation engine reporting a collaborator failure.
func (s *BookStore) AddNotification(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendNotification(n)
}

// appendNotification assigns an id and enqueues. Caller must hold the lock.
func (s *BookStore) appendNotification(n models.Notification) {
	n.ID = uuid.NewString()
	s.notifications = append(s.notifications, n)
}

// keysMatch implements the entire matching contract: exact case-insensitive
// equality on the three text fields, exact equality on the edition year.
// No fuzzy matching, no ranking.
func keysMatch(title, classLevel, publisher, editionYear string, book *models.Book) bool {
	return strings.EqualFold(title, book.Title) &&
		strings.EqualFold(classLevel, book.ClassLevel) &&
		strings.EqualFold(publisher, book.Publisher) &&
		editionYear == book.EditionYear
}

// resolvePhoto converts raw photo bytes into an embedded data URI.
func resolvePhoto(photo []byte, mimeType string) (string, error) {
	if len(photo) > maxPhotoBytes {
		return "", fmt.Errorf("photo too large: %d bytes", len(photo))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("unsupported photo type %q", mimeType)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(photo), nil
}
