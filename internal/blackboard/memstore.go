package blackboard

import (
	"sync"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

// MemoryStore is an in-process Store backed by a mutex-guarded document.
// It offers the same exclusive read-modify-write contract as FileStore and is
// used for single-process runs and tests.
type MemoryStore struct {
	mu  sync.Mutex
	doc *Document
}

// NewMemoryStore creates an empty in-memory blackboard.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: NewDocument()}
}

// Read returns a deep copy of the current document, so callers never hold a
// mutable replica of live state.
func (s *MemoryStore) Read() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(), nil
}

// Append adds a message to the end of the log. A zero timestamp is set to now.
func (s *MemoryStore) Append(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.doc.Messages = append(s.doc.Messages, msg)
	return nil
}

// SetSharedData stores a value under key in the shared-data map.
func (s *MemoryStore) SetSharedData(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SharedData[key] = value
	return nil
}

// GetSharedData returns the value for key and whether it was present.
func (s *MemoryStore) GetSharedData(key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.SharedData[key]
	return v, ok, nil
}

func (s *MemoryStore) copyLocked() *Document {
	cp := &Document{
		Created:    s.doc.Created,
		Messages:   make([]models.Message, len(s.doc.Messages)),
		SharedData: make(map[string]any, len(s.doc.SharedData)),
	}
	copy(cp.Messages, s.doc.Messages)
	for k, v := range s.doc.SharedData {
		cp.SharedData[k] = v
	}
	return cp
}

// Verify MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
