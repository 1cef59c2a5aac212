package barista

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrOrderNotFound is returned by Get for an unknown order ID.
var ErrOrderNotFound = errors.New("barista: order not found")

var orderIDPattern = regexp.MustCompile(`^\d{8}_\d{6}(_\d+)?$`)

// StoredOrder is an order with its ID, the timestamp part of the file name.
type StoredOrder struct {
	ID string `json:"id"`
	Order
}

// OrderStore keeps one JSON file per order in a directory.
type OrderStore struct {
	dir string
	mu  sync.Mutex
}

// NewOrderStore creates dir if needed.
func NewOrderStore(dir string) (*OrderStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("barista: create orders dir: %w", err)
	}
	return &OrderStore{dir: dir}, nil
}

// Dir returns the orders directory.
func (s *OrderStore) Dir() string { return s.dir }

// Save writes o as order_YYYYMMDD_HHMMSS.json and returns its ID, the
// YYYYMMDD_HHMMSS part. The file
// is written to a temp name first and then linked into place, so an existing
// order is never overwritten; a second order in the same second gets a
// numeric suffix.
func (s *OrderStore) Save(o Order) (string, error) {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", fmt.Errorf("barista: encode order: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".order-*.tmp")
	if err != nil {
		return "", fmt.Errorf("barista: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("barista: write order: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("barista: write order: %w", err)
	}

	base := o.Timestamp.Format("20060102_150405")
	for n := 1; ; n++ {
		id := base
		if n > 1 {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		err := os.Link(tmpPath, s.path(id))
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("barista: place order file: %w", err)
		}
	}
}

func (s *OrderStore) path(id string) string {
	return filepath.Join(s.dir, "order_"+id+".json")
}

// Get reads one order.
func (s *OrderStore) Get(id string) (*StoredOrder, error) {
	if !orderIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("barista: read order: %w", err)
	}

	so := &StoredOrder{ID: id}
	if err := json.Unmarshal(data, &so.Order); err != nil {
		return nil, fmt.Errorf("barista: decode order %s: %w", id, err)
	}
	return so, nil
}

// splitOrderID returns the timestamp part of id and its collision number;
// an ID without a suffix is number 1.
func splitOrderID(id string) (string, int) {
	const baseLen = len("20060102_150405")
	if len(id) <= baseLen+1 {
		return id, 1
	}
	n, err := strconv.Atoi(id[baseLen+1:])
	if err != nil {
		return id, 1
	}
	return id[:baseLen], n
}

// List returns every order, newest first. Unreadable files are skipped.
func (s *OrderStore) List() ([]StoredOrder, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("barista: list orders: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		id, hasPrefix := strings.CutPrefix(name, "order_")
		if ok && hasPrefix && !e.IsDir() && orderIDPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, ni := splitOrderID(ids[i])
		bj, nj := splitOrderID(ids[j])
		if bi != bj {
			return bi > bj
		}
		return ni > nj
	})

	orders := make([]StoredOrder, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(id)
		if err != nil {
			continue
		}
		orders = append(orders, *o)
	}
	return orders, nil
}
