package tutor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Concept is one teachable topic.
type Concept struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	SampleQuestion string `json:"sample_question"`
}

// Content is the read-only concept set loaded at startup.
type Content struct {
	concepts []Concept
}

// NewContent wraps concepts.
func NewContent(concepts ...Concept) *Content {
	return &Content{concepts: append([]Concept(nil), concepts...)}
}

// LoadContent reads a JSON array of concepts. A missing or unreadable file
// yields an empty set and a logged error; the tutor still runs. Entries
// without an id or title are skipped with a warning.
func LoadContent(path string, logger *slog.Logger) *Content {
	if logger == nil {
		logger = slog.Default()
	}

	concepts, err := readConcepts(path)
	if err != nil {
		logger.Error("failed to load tutor content", "path", path, "error", err)
		return NewContent()
	}
	valid := concepts[:0]
	for i, concept := range concepts {
		if strings.TrimSpace(concept.ID) == "" || strings.TrimSpace(concept.Title) == "" {
			logger.Warn("skipping tutor concept without id or title", "path", path, "index", i)
			continue
		}
		valid = append(valid, concept)
	}
	logger.Info("tutor content loaded", "path", path, "concepts", len(valid))
	return NewContent(valid...)
}

func readConcepts(path string) ([]Concept, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tutor: read content: %w", err)
	}
	var concepts []Concept
	if err := json.Unmarshal(data, &concepts); err != nil {
		return nil, fmt.Errorf("tutor: decode content: %w", err)
	}
	return concepts, nil
}

// All returns every concept in file order.
func (c *Content) All() []Concept {
	return append([]Concept(nil), c.concepts...)
}

// Len returns the number of concepts.
func (c *Content) Len() int { return len(c.concepts) }

// Lookup finds a concept whose id or title equals query, ignoring case and
// surrounding space. The first match in file order wins.
func (c *Content) Lookup(query string) (Concept, bool) {
	q := strings.TrimSpace(query)
	for _, concept := range c.concepts {
		if strings.EqualFold(concept.ID, q) || strings.EqualFold(concept.Title, q) {
			return concept, true
		}
	}
	return Concept{}, false
}

// Titles returns every concept title in file order.
func (c *Content) Titles() []string {
	titles := make([]string, len(c.concepts))
	for i, concept := range c.concepts {
		titles[i] = concept.Title
	}
	return titles
}

// NotFound is the reply for an unknown concept.
func (c *Content) NotFound() string {
	return "I couldn't find that concept. Available concepts are: " + strings.Join(c.Titles(), ", ") + "."
}
