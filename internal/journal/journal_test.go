package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileStore_RecordAndRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "transcript.jsonl")
	fs := NewFileStore(path)
	fs.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	if err := fs.Record(ctx, "user", "hi"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := fs.Record(ctx, "model", ""); err != nil {
		t.Fatalf("Record blank: %v", err)
	}
	if err := fs.Record(ctx, "model", "hello"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := fs.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	if entries[0].Role != "user" || entries[0].Text != "hi" || entries[1].Text != "hello" {
		t.Errorf("entries = %+v", entries)
	}
	if !entries[0].Timestamp.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("timestamp = %v", entries[0].Timestamp)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	t.Parallel()
	entries, err := NewFileStore(filepath.Join(t.TempDir(), "none.jsonl")).Entries()
	if err != nil || entries != nil {
		t.Errorf("Entries = (%v, %v), want (nil, nil)", entries, err)
	}
}

func TestFileStore_SkipsCorruptLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "t.jsonl")
	content := `{"role":"user","text":"a"}` + "\n" + "garbage\n" + `{"role":"model","text":"b"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := NewFileStore(path).Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileStore_ConcurrentWrites(t *testing.T) {
	t.Parallel()
	fs := NewFileStore(filepath.Join(t.TempDir(), "t.jsonl"))
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fs.Record(context.Background(), "user", "word")
		}()
	}
	wg.Wait()
	entries, _ := fs.Entries()
	if len(entries) != 25 {
		t.Errorf("len(entries) = %d, want 25", len(entries))
	}
}
