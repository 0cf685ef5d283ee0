package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AMKLAZ/Bibliotrocs/internal/ai"
	"github.com/AMKLAZ/Bibliotrocs/internal/store"
)

// sessionEntry tracks a live conversation and its expiry.
type sessionEntry struct {
	conv      *Conversation
	expiresAt time.Time
}

// SessionManager owns the live conversations, expiring idle ones after a
// TTL. Expiry is sliding: every successful lookup extends the session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	store       *store.BookStore
	assistant   ai.Assistant
	typingDelay time.Duration
	ttl         time.Duration

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// NewSessionManager creates a SessionManager and starts its cleanup loop.
func NewSessionManager(bookStore *store.BookStore, assistant ai.Assistant, typingDelay, ttl, cleanupInterval time.Duration) *SessionManager {
	sm := &SessionManager{
		sessions:    make(map[string]*sessionEntry),
		store:       bookStore,
		assistant:   assistant,
		typingDelay: typingDelay,
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	sm.cleanupTicker = time.NewTicker(cleanupInterval)
	go sm.cleanupExpiredSessions()

	slog.Info("Session manager initialized",
		"ttl", ttl.String(),
		"cleanup_interval", cleanupInterval.String())

	return sm
}

// Create starts a new conversation session.
func (sm *SessionManager) Create() *Conversation {
	conv := NewConversation(sm.store, sm.assistant, sm.typingDelay)

	sm.mu.Lock()
	sm.sessions[conv.ID()] = &sessionEntry{
		conv:      conv,
		expiresAt: time.Now().Add(sm.ttl),
	}
	sm.mu.Unlock()

	slog.Debug("Session created", "session_id", conv.ID())
	return conv
}

// Get looks up a live session by id, extending its expiry on hit.
func (sm *SessionManager) Get(id string) (*Conversation, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	entry, exists := sm.sessions[id]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(sm.sessions, id)
		slog.Debug("Session expired", "session_id", id)
		return nil, false
	}

	entry.expiresAt = time.Now().Add(sm.ttl)
	return entry.conv, true
}

// Count returns the number of tracked sessions, expired ones included.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Stop stops the cleanup goroutine.
func (sm *SessionManager) Stop() {
	if sm.cleanupTicker != nil {
		sm.cleanupTicker.Stop()
	}
	close(sm.stopCleanup)
	slog.Info("Session manager stopped")
}

// cleanupExpiredSessions runs periodically to remove expired sessions.
func (sm *SessionManager) cleanupExpiredSessions() {
	for {
		select {
		case <-sm.cleanupTicker.C:
			sm.performCleanup()
		case <-sm.stopCleanup:
			return
		}
	}
}

// performCleanup removes expired sessions.
func (sm *SessionManager) performCleanup() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	expired := 0
	for id, entry := range sm.sessions {
		if now.After(entry.expiresAt) {
			delete(sm.sessions, id)
			expired++
		}
	}

	if expired > 0 {
		slog.Debug("Session cleanup completed",
			"expired_sessions", expired,
			"remaining_sessions", len(sm.sessions))
	}
}
