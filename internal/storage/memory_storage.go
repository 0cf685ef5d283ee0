package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// MemoryStorage implements BookStorage using in-memory collections with
// best-effort JSON file persistence. It is the development and test backend;
// production uses FirestoreStorage.
type MemoryStorage struct {
	mu       sync.RWMutex
	books    []models.Book
	requests []models.BuyRequest
	dataFile string
}

// storageSnapshot is the on-disk representation of the storage contents.
type storageSnapshot struct {
	Books    []models.Book      `json:"books"`
	Requests []models.BuyRequest `json:"buyRequests"`
	SavedAt  time.Time          `json:"savedAt"`
}

// NewMemoryStorage creates a new in-memory storage instance persisting to
// dataDir. Existing data is loaded if present; load failures start fresh.
func NewMemoryStorage(dataDir string) *MemoryStorage {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// If we can't create the directory, use current directory.
		dataDir = "."
	}

	ms := &MemoryStorage{
		dataFile: filepath.Join(dataDir, "bibliotroc_data.json"),
	}

	if err := ms.loadFromFile(); err != nil {
		slog.Warn("Could not load persisted data, starting fresh", "file", ms.dataFile, "error", err)
	} else {
		slog.Info("Storage loaded", "file", ms.dataFile, "books", len(ms.books), "requests", len(ms.requests))
	}

	return ms
}

// CreateBook persists a new book and returns its assigned id.
func (ms *MemoryStorage) CreateBook(ctx context.Context, book models.Book) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	book.ID = uuid.NewString()
	ms.books = append(ms.books, book)

	if err := ms.saveToFile(); err != nil {
		slog.Warn("Failed to persist books to file", "error", err)
	}
	return book.ID, nil
}

// CreateBuyRequest persists a new buy request and returns its assigned id.
func (ms *MemoryStorage) CreateBuyRequest(ctx context.Context, request models.BuyRequest) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	request.ID = uuid.NewString()
	ms.requests = append(ms.requests, request)

	if err := ms.saveToFile(); err != nil {
		slog.Warn("Failed to persist buy requests to file", "error", err)
	}
	return request.ID, nil
}

// ListBooks returns the full book collection snapshot in insertion order.
func (ms *MemoryStorage) ListBooks(ctx context.Context) ([]models.Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	books := make([]models.Book, len(ms.books))
	copy(books, ms.books)
	return books, nil
}

// ListBuyRequests returns the full buy-request collection snapshot.
func (ms *MemoryStorage) ListBuyRequests(ctx context.Context) ([]models.BuyRequest, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	requests := make([]models.BuyRequest, len(ms.requests))
	copy(requests, ms.requests)
	return requests, nil
}

// UpdateBuyRequest applies a partial update to an existing request.
func (ms *MemoryStorage) UpdateBuyRequest(ctx context.Context, id string, updates RequestUpdates) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := range ms.requests {
		if ms.requests[i].ID == id {
			if updates.Status != nil {
				ms.requests[i].Status = *updates.Status
			}
			if err := ms.saveToFile(); err != nil {
				slog.Warn("Failed to persist buy requests to file", "error", err)
			}
			return nil
		}
	}
	return fmt.Errorf("buy request %s not found", id)
}

// Close persists the current contents.
func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.saveToFile()
}

// saveToFile writes the snapshot to disk. Caller must hold the lock.
func (ms *MemoryStorage) saveToFile() error {
	snapshot := storageSnapshot{
		Books:    ms.books,
		Requests: ms.requests,
		SavedAt:  time.Now(),
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(ms.dataFile, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// loadFromFile restores the snapshot from disk. Caller must hold the lock
// (or be the constructor).
func (ms *MemoryStorage) loadFromFile() error {
	data, err := os.ReadFile(ms.dataFile)
	if err != nil {
		return err
	}

	var snapshot storageSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	ms.books = snapshot.Books
	ms.requests = snapshot.Requests
	return nil
}
