package wellness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// ErrJournalNotConnected is returned when no Google account is linked.
var ErrJournalNotConnected = errors.New("wellness: journal not connected to Google")

// ErrInvalidState is returned for an OAuth callback whose state was not
// issued by AuthURL, was already used, or has expired.
var ErrInvalidState = errors.New("wellness: unknown or expired OAuth state")

// JournalTitle is the title of the document created on first sync.
const JournalTitle = "Wellness Journal"

const (
	journalTimeout = 30 * time.Second
	stateTTL       = 10 * time.Minute
)

// JournalConfig configures the Google Docs journal.
type JournalConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g. http://localhost:8080/api/journal/callback
	TokenPath    string

	// DocID is an existing document to append to. When empty a document is
	// created on the first sync and reused for the rest of the process.
	DocID string

	// Endpoint overrides the Docs API base URL.
	Endpoint string
}

// Journal mirrors each saved check-in into a Google Doc.
type Journal struct {
	config    *oauth2.Config
	tokenPath string
	endpoint  string
	logger    *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
	docID   string
	states  map[string]time.Time
}

// NewJournal creates a journal. A token saved by an earlier run is reused.
func NewJournal(cfg JournalConfig, logger *slog.Logger) (*Journal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("wellness: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for the journal")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/journal/callback"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = ".google_token.json"
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		endpoint:  cfg.Endpoint,
		logger:    logger,
		docID:     cfg.DocID,
		states:    make(map[string]time.Time),
	}

	if tok, err := j.loadToken(); err == nil {
		if err := j.useToken(tok); err != nil {
			logger.Warn("stored Google token unusable", "error", err)
		}
	}
	return j, nil
}

// Connected reports whether a usable token is present. An expired access
// token still counts when it can be refreshed.
func (j *Journal) Connected() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.token != nil && (j.token.Valid() || j.token.RefreshToken != "")
}

// DocID returns the document check-ins are appended to.
func (j *Journal) DocID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.docID
}

// AuthURL returns the Google consent page URL. Each URL carries a fresh
// state that the callback must return within stateTTL.
func (j *Journal) AuthURL() string {
	state := uuid.NewString()
	now := time.Now()

	j.mu.Lock()
	for s, expires := range j.states {
		if now.After(expires) {
			delete(j.states, s)
		}
	}
	j.states[state] = now.Add(stateTTL)
	j.mu.Unlock()

	return j.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// consumeState reports whether state was issued and is still live. A state
// is accepted once.
func (j *Journal) consumeState(state string) bool {
	if state == "" {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	expires, ok := j.states[state]
	delete(j.states, state)
	return ok && time.Now().Before(expires)
}

// Exchange completes the OAuth flow with the callback state and code and
// stores the token.
func (j *Journal) Exchange(ctx context.Context, state, code string) error {
	if !j.consumeState(state) {
		return ErrInvalidState
	}

	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	tok, err := j.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("wellness: exchange auth code: %w", err)
	}
	if err := j.useToken(tok); err != nil {
		return err
	}
	if err := j.saveToken(tok); err != nil {
		j.logger.Warn("failed to save Google token", "error", err)
	}
	return nil
}

// Disconnect forgets the token and removes it from disk.
func (j *Journal) Disconnect() error {
	j.mu.Lock()
	j.token = nil
	j.service = nil
	j.mu.Unlock()

	if err := os.Remove(j.tokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("wellness: remove token file: %w", err)
	}
	return nil
}

// Record appends c to the journal document, creating it when needed.
func (j *Journal) Record(ctx context.Context, c CheckIn) error {
	j.mu.RLock()
	service := j.service
	docID := j.docID
	j.mu.RUnlock()

	if service == nil {
		return ErrJournalNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	if docID == "" {
		doc, err := service.Documents.Create(&docs.Document{Title: JournalTitle}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("wellness: create journal doc: %w", err)
		}
		docID = doc.DocumentId
		j.mu.Lock()
		j.docID = docID
		j.mu.Unlock()
		j.logger.Info("journal document created", "doc_id", docID, "url", DocURL(docID))
	}

	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				EndOfSegmentLocation: &docs.EndOfSegmentLocation{},
				Text:                 FormatEntry(c),
			},
		}},
	}
	if _, err := service.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("wellness: append journal entry: %w", err)
	}
	return nil
}

// DocURL returns the edit URL of a Google Doc.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// FormatEntry renders a check-in as a journal entry.
func FormatEntry(c CheckIn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Timestamp.Format("Monday, January 2, 2006 3:04 PM"))
	fmt.Fprintf(&b, "Mood: %s\n", c.Mood)
	fmt.Fprintf(&b, "Energy: %s\n", c.Energy)
	if len(c.Objectives) > 0 {
		b.WriteString("Objectives:\n")
		for _, o := range c.Objectives {
			fmt.Fprintf(&b, "• %s\n", o)
		}
	}
	if c.Stressors != nil {
		fmt.Fprintf(&b, "Stressors: %s\n", *c.Stressors)
	}
	fmt.Fprintf(&b, "%s\n\n", c.Summary)
	return b.String()
}

// JournalStatus is the connection state shown on the dashboard.
type JournalStatus struct {
	Connected bool   `json:"connected"`
	DocID     string `json:"doc_id,omitempty"`
	DocURL    string `json:"doc_url,omitempty"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// Status returns the connection state.
func (j *Journal) Status() JournalStatus {
	st := JournalStatus{Connected: j.Connected()}
	if id := j.DocID(); id != "" {
		st.DocID = id
		st.DocURL = DocURL(id)
	}
	if !st.Connected {
		st.AuthURL = j.AuthURL()
	}
	return st
}

// useToken builds the Docs service around tok.
func (j *Journal) useToken(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("wellness: no token available")
	}

	ctx := context.Background()
	opts := []option.ClientOption{option.WithHTTPClient(j.config.Client(ctx, tok))}
	if j.endpoint != "" {
		opts = append(opts, option.WithEndpoint(j.endpoint))
	}
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("wellness: create docs service: %w", err)
	}

	j.mu.Lock()
	j.token = tok
	j.service = service
	j.mu.Unlock()
	return nil
}

func (j *Journal) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(j.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (j *Journal) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(j.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.tokenPath, data, 0o600)
}
