// Package upload implements chunked-upload reassembly: a session accumulates
// indexed chunks, possibly out of order, and commits the reassembled object to
// the content store on finalize.
package upload

import (
	"context"
	"sync"
	"time"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// SessionStatus tracks the per-session state machine.
type SessionStatus string

const (
	StatusInitialized SessionStatus = "initialized"
	StatusReceiving   SessionStatus = "receiving"
	StatusComplete    SessionStatus = "complete"
	StatusFinalized   SessionStatus = "finalized"
)

// Session is the transient state of one chunked upload. Sessions live in an
// explicit keyed store with TTL eviction, so abandoned uploads do not pile up
// and restarts do not leak ambient process state.
type Session struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"owner_id"`
	FileName       string        `json:"file_name"`
	DeclaredSize   int64         `json:"declared_size"`
	ContentType    string        `json:"content_type"`
	TargetPath     string        `json:"target_path"`
	TotalChunks    int           `json:"total_chunks"`
	ChunksReceived int           `json:"chunks_received"`
	Received       map[int]bool  `json:"received"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Progress reports chunk receipt for a session.
type Progress struct {
	SessionID      string  `json:"uploadId"`
	ChunksReceived int     `json:"chunksReceived"`
	TotalChunks    int     `json:"totalChunks"`
	Progress       float64 `json:"progress"`
}

// SessionStore is the keyed session store. Implementations evict sessions
// after their TTL elapses; a Get on an evicted or unknown session fails with
// ErrSessionNotFound.
type SessionStore interface {
	Put(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process SessionStore with TTL-based eviction.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	done     chan struct{}
	once     sync.Once
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore creates a session store evicting entries ttl after their
// last update.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, entry := range s.sessions {
				if now.After(entry.expiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Put stores the session and refreshes its TTL.
func (s *MemoryStore) Put(ctx context.Context, session *Session) error {
	copied := *session
	received := make(map[int]bool, len(session.Received))
	for k, v := range session.Received {
		received[k] = v
	}
	copied.Received = received

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &memoryEntry{
		session:   &copied,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, contentpipe.ErrSessionNotFound
	}

	copied := *entry.session
	received := make(map[int]bool, len(entry.session.Received))
	for k, v := range entry.session.Received {
		received[k] = v
	}
	copied.Received = received
	return &copied, nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close stops the eviction janitor.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}
