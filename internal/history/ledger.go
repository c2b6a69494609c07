package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ankit/closepilot/internal/domain"
)

// Ledger is the append-only record of successfully submitted deals,
// kept newest-first in a flat JSON file. Every query re-reads the whole
// file; volumes are small and the simplicity is worth it. The mutex is
// the only writer protection, so the file must not be shared between
// processes.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates a ledger backed by the given file path. The file is
// created on first append.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Append prepends a record so the file stays newest-first.
func (l *Ledger) Append(record domain.HistoryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return err
	}

	records = append([]domain.HistoryRecord{record}, records...)

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history: failed to create ledger directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("history: failed to encode ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("history: failed to write ledger: %w", err)
	}
	return nil
}

// All returns every record, newest first. A missing file is an empty
// ledger, not an error.
func (l *Ledger) All() ([]domain.HistoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Search returns records where every whitespace-separated query term
// matches, case-insensitively, somewhere in the record's field values.
// An empty query returns everything.
func (l *Ledger) Search(query string) ([]domain.HistoryRecord, error) {
	records, err := l.All()
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return records, nil
	}

	matched := make([]domain.HistoryRecord, 0, len(records))
	for _, record := range records {
		haystack := searchText(record)
		ok := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (l *Ledger) load() ([]domain.HistoryRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.HistoryRecord{}, nil
		}
		return nil, fmt.Errorf("history: failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return []domain.HistoryRecord{}, nil
	}

	var records []domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("history: corrupt ledger file: %w", err)
	}
	return records, nil
}

func searchText(record domain.HistoryRecord) string {
	parts := []string{
		record.OpportunityID,
		record.DealName,
		strconv.FormatFloat(record.Amount, 'f', -1, 64),
		record.ContactName,
		record.ContactEmail,
		record.EnvelopeID,
		record.SubmittedAt.Format("2006-01-02"),
	}
	return strings.ToLower(strings.Join(parts, " "))
}
