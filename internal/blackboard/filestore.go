package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/overseer-dev/overseer/pkg/models"
)

// DefaultLockTimeout bounds how long a caller waits for the exclusive lock.
const DefaultLockTimeout = 10 * time.Second

// lockPollInterval is how often a blocked caller re-attempts the flock.
const lockPollInterval = 50 * time.Millisecond

// FileStore persists the blackboard as a JSON document on disk, guarded by a
// sibling lock file with exclusive flock semantics. Every mutation is a full
// read-modify-write cycle under the lock, so each write reflects a consistent
// prior read.
type FileStore struct {
	path        string
	lockPath    string
	lockTimeout time.Duration

	// mu serializes goroutines sharing this instance; flock serializes
	// against other processes.
	mu sync.Mutex
}

// NewFileStore creates a FileStore for the document at path. The lock file is
// path + ".lock". Parent directories are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: DefaultLockTimeout,
	}
}

// SetLockTimeout overrides the bounded wait for lock acquisition.
func (s *FileStore) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// Read returns the current full document.
func (s *FileStore) Read() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	return s.readLocked()
}

// Append adds a message to the end of the log. A zero timestamp is set to now.
func (s *FileStore) Append(msg models.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return s.mutate(func(doc *Document) {
		doc.Messages = append(doc.Messages, msg)
	})
}

// SetSharedData stores a value under key in the shared-data map.
func (s *FileStore) SetSharedData(key string, value any) error {
	return s.mutate(func(doc *Document) {
		doc.SharedData[key] = value
	})
}

// GetSharedData returns the value for key and whether it was present.
func (s *FileStore) GetSharedData(key string) (any, bool, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc.SharedData[key]
	return v, ok, nil
}

// mutate runs fn on the current document and writes the result back, all
// under the exclusive lock.
func (s *FileStore) mutate(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	fn(doc)
	return s.writeLocked(doc)
}

// acquireLock takes the exclusive flock on the sibling lock file, retrying
// non-blocking attempts until the bounded wait elapses.
func (s *FileStore) acquireLock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create blackboard directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(s.lockTimeout)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", s.lockPath, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w after %s", ErrLockTimeout, s.lockTimeout)
		}
		time.Sleep(lockPollInterval)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// readLocked loads the document. A missing or unparsable file is treated as
// empty and reinitialized rather than failing the caller.
func (s *FileStore) readLocked() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			doc := NewDocument()
			if werr := s.writeLocked(doc); werr != nil {
				return nil, werr
			}
			return doc, nil
		}
		return nil, fmt.Errorf("read blackboard: %w", err)
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		doc = NewDocument()
		if werr := s.writeLocked(doc); werr != nil {
			return nil, werr
		}
		return doc, nil
	}
	if doc.SharedData == nil {
		doc.SharedData = make(map[string]any)
	}
	if doc.Messages == nil {
		doc.Messages = []models.Message{}
	}
	return doc, nil
}

// writeLocked replaces the document file with the full serialized state.
func (s *FileStore) writeLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal blackboard: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write blackboard: %w", err)
	}
	return nil
}

// Verify FileStore implements Store at compile time.
var _ Store = (*FileStore)(nil)
