package blackboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "blackboard.json"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t)

	msgs := []models.Message{
		{AgentID: "orchestrator", Type: models.MessageInfo, Content: "starting"},
		{AgentID: "coder_1", Type: models.MessageResult, Content: "done"},
		{AgentID: "tester_1", Type: models.MessageError, Content: "flaky"},
	}
	for _, m := range msgs {
		if err := s.Append(m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.SetSharedData("progress", map[string]any{"total": 3}); err != nil {
		t.Fatalf("set shared data: %v", err)
	}

	doc, err := s.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(doc.Messages) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(doc.Messages))
	}
	for i, m := range msgs {
		got := doc.Messages[i]
		if got.AgentID != m.AgentID || got.Type != m.Type || got.Content != m.Content {
			t.Errorf("message %d = %+v, want %+v", i, got, m)
		}
		if got.Timestamp.IsZero() {
			t.Errorf("message %d has zero timestamp", i)
		}
	}
	if _, ok := doc.SharedData["progress"]; !ok {
		t.Error("expected shared data key to survive round trip")
	}
}

func TestFileStoreReinitializesCorruptDocument(t *testing.T) {
	s := newTestFileStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Read()
	if err != nil {
		t.Fatalf("read of corrupt document should reinitialize, got %v", err)
	}
	if len(doc.Messages) != 0 {
		t.Errorf("expected empty message log after reinit, got %d", len(doc.Messages))
	}
	if doc.Created.IsZero() {
		t.Error("expected created timestamp to be set on reinit")
	}
}

func TestFileStoreInitializesMissingDocument(t *testing.T) {
	s := newTestFileStore(t)
	doc, err := s.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Messages == nil || doc.SharedData == nil {
		t.Error("expected initialized empty document")
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("expected document file to exist after first read: %v", err)
	}
}

func TestFileStoreLockTimeoutIsDistinctError(t *testing.T) {
	s := newTestFileStore(t)
	s.SetLockTimeout(100 * time.Millisecond)

	// Hold the lock from "another caller".
	release, err := s.acquireLock()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	// Bypass the in-process mutex by contending from a second instance.
	s2 := NewFileStore(s.Path())
	s2.SetLockTimeout(100 * time.Millisecond)
	err = s2.Append(models.Message{AgentID: "a", Type: models.MessageInfo, Content: "x"})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	stores := []struct {
		name string
		s    Store
	}{
		{"memory", NewMemoryStore()},
		{"file", newTestFileStore(t)},
	}

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			const writers = 8
			const perWriter = 10

			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						msg := models.Message{
							AgentID: fmt.Sprintf("agent-%d", w),
							Type:    models.MessageInfo,
							Content: fmt.Sprintf("w%d-m%d", w, i),
						}
						if err := tc.s.Append(msg); err != nil {
							t.Errorf("append: %v", err)
							return
						}
					}
				}(w)
			}
			wg.Wait()

			doc, err := tc.s.Read()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(doc.Messages) != writers*perWriter {
				t.Fatalf("expected %d messages, got %d", writers*perWriter, len(doc.Messages))
			}
			seen := make(map[string]bool)
			for _, m := range doc.Messages {
				if seen[m.Content] {
					t.Fatalf("duplicate message %q", m.Content)
				}
				seen[m.Content] = true
			}
		})
	}
}

func TestCursorTracksReaderPosition(t *testing.T) {
	s := NewMemoryStore()
	var c Cursor

	_ = s.Append(models.Message{AgentID: "a", Type: models.MessageInfo, Content: "one"})
	_ = s.Append(models.Message{AgentID: "a", Type: models.MessageResult, Content: "two"})

	doc, _ := s.Read()
	got := c.Next(doc, "")
	if len(got) != 2 {
		t.Fatalf("first read: expected 2 messages, got %d", len(got))
	}

	got = c.Next(doc, "")
	if len(got) != 0 {
		t.Fatalf("re-read without new appends: expected 0, got %d", len(got))
	}

	_ = s.Append(models.Message{AgentID: "b", Type: models.MessageResult, Content: "three"})
	_ = s.Append(models.Message{AgentID: "b", Type: models.MessageInfo, Content: "four"})

	doc, _ = s.Read()
	got = c.Next(doc, models.MessageResult)
	if len(got) != 1 || got[0].Content != "three" {
		t.Fatalf("filtered read: expected [three], got %+v", got)
	}
}

func TestAppendWithRetryGivesUpAfterAttempts(t *testing.T) {
	s := newTestFileStore(t)
	s.SetLockTimeout(50 * time.Millisecond)

	release, err := s.acquireLock()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	s2 := NewFileStore(s.Path())
	s2.SetLockTimeout(50 * time.Millisecond)

	err = AppendWithRetry(s2, models.Message{AgentID: "a", Type: models.MessageResult, Content: "r"}, 2)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout after retries, got %v", err)
	}
}

func TestMemoryStoreReadIsACopy(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Append(models.Message{AgentID: "a", Type: models.MessageInfo, Content: "x"})

	doc, _ := s.Read()
	doc.Messages[0].Content = "tampered"
	doc.SharedData["sneaky"] = true

	doc2, _ := s.Read()
	if doc2.Messages[0].Content != "x" {
		t.Error("mutating a read copy must not affect the store")
	}
	if _, ok := doc2.SharedData["sneaky"]; ok {
		t.Error("mutating a read copy's shared data must not affect the store")
	}
}

func TestWatchNotifiesOnAppend(t *testing.T) {
	s := newTestFileStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := s.Append(models.Message{AgentID: "coder_1", Type: models.MessageInfo, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification after append")
	}
}
