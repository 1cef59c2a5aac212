package wellness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const checkInsKey = "check_ins"

// logFile is wellness_log.json as read from disk. Records stay raw so an
// append never re-encodes what is already there.
type logFile struct {
	records []json.RawMessage
	extra   map[string]json.RawMessage
}

// LogStore keeps every check-in in one JSON file. Appends are serialized
// and each rewrite goes to a temp file that is renamed over the log, so a
// crash never leaves a half-written log and concurrent sessions never lose
// an update. Existing records are copied through byte for byte.
type LogStore struct {
	path string
	mu   sync.Mutex
}

// NewLogStore opens the log at path, creating its directory if needed. The
// file itself is created on the first append.
func NewLogStore(path string) (*LogStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wellness: create log dir: %w", err)
	}
	return &LogStore{path: path}, nil
}

// Path returns the log file path.
func (s *LogStore) Path() string { return s.path }

func (s *LogStore) read() (logFile, error) {
	var lf logFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return lf, nil
	}
	if err != nil {
		return lf, fmt.Errorf("wellness: read log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return lf, nil
	}
	if err := json.Unmarshal(data, &lf.extra); err != nil {
		return lf, fmt.Errorf("wellness: decode log: %w", err)
	}
	if raw, ok := lf.extra[checkInsKey]; ok {
		if err := json.Unmarshal(raw, &lf.records); err != nil {
			return lf, fmt.Errorf("wellness: decode log: %w", err)
		}
		delete(lf.extra, checkInsKey)
	}
	return lf, nil
}

// encode lays the log out the way json.MarshalIndent would, except that
// records are written as found.
func (lf logFile) encode() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("{\n  \"" + checkInsKey + "\": [")
	for i, r := range lf.records {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("\n    ")
		b.Write(r)
	}
	if len(lf.records) > 0 {
		b.WriteString("\n  ")
	}
	b.WriteByte(']')

	keys := make([]string, 0, len(lf.extra))
	for k := range lf.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.WriteString(",\n  ")
		b.Write(name)
		b.WriteString(": ")
		b.Write(lf.extra[k])
	}
	b.WriteString("\n}\n")
	return b.Bytes(), nil
}

// Append adds c to the end of the log. A log that cannot be decoded is left
// untouched and an error is returned.
func (s *LogStore) Append(c CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.read()
	if err != nil {
		return err
	}
	rec, err := json.MarshalIndent(c, "    ", "  ")
	if err != nil {
		return fmt.Errorf("wellness: encode check-in: %w", err)
	}
	lf.records = append(lf.records, rec)

	data, err := lf.encode()
	if err != nil {
		return fmt.Errorf("wellness: encode log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".wellness-*.tmp")
	if err != nil {
		return fmt.Errorf("wellness: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("wellness: write log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wellness: write log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wellness: replace log: %w", err)
	}
	return nil
}

// List returns every check-in, oldest first.
func (s *LogStore) List() ([]CheckIn, error) {
	s.mu.Lock()
	lf, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]CheckIn, 0, len(lf.records))
	for i, r := range lf.records {
		var c CheckIn
		if err := json.Unmarshal(r, &c); err != nil {
			return nil, fmt.Errorf("wellness: decode check-in %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Last returns the most recent check-in, or nil when the log is empty.
func (s *LogStore) Last() (*CheckIn, error) {
	all, err := s.List()
	if err != nil || len(all) == 0 {
		return nil, err
	}
	last := all[len(all)-1]
	return &last, nil
}
