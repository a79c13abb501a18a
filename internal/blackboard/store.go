// Package blackboard provides the durable shared document used by the
// orchestrator and all workers for coordination: an append-only message log
// plus a key/value shared-data map, mutated only under an exclusive lock.
package blackboard

import (
	"errors"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

// ErrLockTimeout indicates the store's exclusive lock could not be acquired
// within the bounded wait. It is retryable and distinct from document
// corruption, which the store repairs silently by reinitializing.
var ErrLockTimeout = errors.New("blackboard: lock acquisition timed out")

// Document is the persisted blackboard state.
// Messages is append-only: entries are never mutated or removed once written.
type Document struct {
	// Created is when the document was initialized.
	Created time.Time `json:"created"`
	// Messages is the ordered append-only log.
	Messages []models.Message `json:"messages"`
	// SharedData maps string keys to arbitrary JSON-serializable values.
	SharedData map[string]any `json:"shared_data"`
}

// NewDocument returns an empty document created now.
func NewDocument() *Document {
	return &Document{
		Created:    time.Now(),
		Messages:   []models.Message{},
		SharedData: make(map[string]any),
	}
}

// Store is the blackboard contract. All four operations are mutually
// exclusive with respect to each other across every concurrent caller.
type Store interface {
	// Read returns the current full document.
	Read() (*Document, error)
	// Append adds a message to the end of the log.
	Append(msg models.Message) error
	// SetSharedData stores a value under key in the shared-data map.
	SetSharedData(key string, value any) error
	// GetSharedData returns the value for key and whether it was present.
	GetSharedData(key string) (any, bool, error)
}

// AppendWithRetry appends a message, retrying lock timeouts up to attempts
// times. Callers performing a required coordination step use this and treat
// the final error as a task failure; best-effort callers may just log it.
func AppendWithRetry(s Store, msg models.Message, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = s.Append(msg)
		if err == nil || !errors.Is(err, ErrLockTimeout) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	return err
}

// Cursor tracks a reader's position in the message log. The store itself
// keeps no per-reader state.
type Cursor struct {
	next int
}

// Next returns messages appended since the last call, optionally filtered by
// type (empty string matches all), and advances the cursor past everything
// in doc regardless of filter.
func (c *Cursor) Next(doc *Document, typ models.MessageType) []models.Message {
	if c.next > len(doc.Messages) {
		// Document was reinitialized underneath us; start over.
		c.next = 0
	}
	var out []models.Message
	for _, m := range doc.Messages[c.next:] {
		if typ == "" || m.Type == typ {
			out = append(out, m)
		}
	}
	c.next = len(doc.Messages)
	return out
}
