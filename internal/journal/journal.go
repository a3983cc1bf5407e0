// Package journal keeps a transcript of live sessions as append-only JSON
// lines in a local file.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single transcript fragment written to the journal.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
}

// FileStore persists transcript entries as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path. The file and
// its parent directory are created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the journal file path.
func (fs *FileStore) Path() string { return fs.path }

// Record appends one fragment. Blank fragments are skipped.
func (fs *FileStore) Record(_ context.Context, role, text string) error {
	if text == "" {
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(Entry{Timestamp: fs.now().UTC(), Role: role, Text: text})
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Entries reads the whole journal. A missing file yields no entries. Lines
// that cannot be parsed are skipped.
func (fs *FileStore) Entries() ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("journal: read: %w", err)
	}
	return out, nil
}
