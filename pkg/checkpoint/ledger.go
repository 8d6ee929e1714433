package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"talksync/pkg/logger"
)

// LedgerFileName is hidden and carries no tracked extension, so it never
// competes in checkpoint resolution
const LedgerFileName = ".talksync-ledger.json"

// MaxAttempts is how many runs a failed record is retried before it is
// dropped from the ledger
const MaxAttempts = 5

const ledgerVersion = 1

// FailedRecord is a published message whose media could not be stored
type FailedRecord struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PublishedAt time.Time `json:"published_at"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	FirstFailed time.Time `json:"first_failed"`
	LastFailed  time.Time `json:"last_failed"`
}

// Ledger lists the pending failures of one member
type Ledger struct {
	Pending   map[string]FailedRecord `json:"pending"`
	UpdatedAt time.Time               `json:"updated_at"`
	Version   int                     `json:"version"`
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	return &Ledger{Pending: make(map[string]FailedRecord), Version: ledgerVersion}
}

// RecordFailure adds id or bumps its attempt count. It reports false when the
// record has now failed MaxAttempts times and was dropped.
func (l *Ledger) RecordFailure(id, msgType string, publishedAt time.Time, reason string, now time.Time) bool {
	rec, ok := l.Pending[id]
	if !ok {
		rec = FailedRecord{ID: id, Type: msgType, PublishedAt: publishedAt.UTC(), FirstFailed: now}
	}
	rec.Reason = reason
	rec.Attempts++
	rec.LastFailed = now

	if rec.Attempts >= MaxAttempts {
		delete(l.Pending, id)
		return false
	}
	l.Pending[id] = rec
	return true
}

// Clear removes id after it was stored successfully
func (l *Ledger) Clear(id string) {
	delete(l.Pending, id)
}

// Earliest returns the smallest publish time among pending records
func (l *Ledger) Earliest() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, rec := range l.Pending {
		if !found || rec.PublishedAt.Before(earliest) {
			earliest, found = rec.PublishedAt, true
		}
	}
	return earliest, found
}

// Records returns the pending records ordered by publish time
func (l *Ledger) Records() []FailedRecord {
	records := make([]FailedRecord, 0, len(l.Pending))
	for _, rec := range l.Pending {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].PublishedAt.Equal(records[j].PublishedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].PublishedAt.Before(records[j].PublishedAt)
	})
	return records
}

// LowerBound returns the earlier of the checkpoint time and the earliest
// pending failure
func LowerBound(checkpoint time.Time, l *Ledger) time.Time {
	if l == nil {
		return checkpoint
	}
	if earliest, ok := l.Earliest(); ok && earliest.Before(checkpoint) {
		return earliest
	}
	return checkpoint
}

// LedgerStore reads and writes the ledger of one member directory
type LedgerStore struct {
	path   string
	logger logger.Logger
}

// NewLedgerStore returns the store for memberDir
func NewLedgerStore(memberDir string, log logger.Logger) *LedgerStore {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &LedgerStore{
		path:   filepath.Join(memberDir, LedgerFileName),
		logger: log,
	}
}

// Path returns the ledger file location
func (s *LedgerStore) Path() string {
	return s.path
}

// Load reads the ledger. A missing file yields an empty ledger.
func (s *LedgerStore) Load() (*Ledger, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	ledger := NewLedger()
	if err := json.NewDecoder(file).Decode(ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	if ledger.Pending == nil {
		ledger.Pending = make(map[string]FailedRecord)
	}

	if len(ledger.Pending) > 0 {
		s.logger.DebugWithFields("Ledger loaded", map[string]interface{}{
			"pending": len(ledger.Pending),
			"path":    s.path,
		})
	}
	return ledger, nil
}

// Save writes the ledger atomically. An empty ledger removes the file.
func (s *LedgerStore) Save(ledger *Ledger) error {
	if len(ledger.Pending) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove ledger: %w", err)
		}
		return nil
	}

	ledger.UpdatedAt = time.Now().UTC()
	ledger.Version = ledgerVersion

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ledger); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close ledger file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	s.logger.DebugWithFields("Ledger saved", map[string]interface{}{
		"pending": len(ledger.Pending),
	})
	return nil
}
