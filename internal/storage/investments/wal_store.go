// Package investments tracks the charge-to-settlement lifecycle of each
// payment. Records are appended per state change; the latest record per
// charge id is the current state, so a charge whose asynchronous success
// event never arrives stays visible as awaiting.
package investments

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/basket/internal/domain"
)

const (
	segmentLimit    = 1000
	maxSegments     = 100
	recordKeyPrefix = "investment_"
)

// WALStore is the investment lifecycle log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the investments WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "investment_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init investments WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Record appends the current state of an investment.
func (s *WALStore) Record(record domain.InvestmentRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("investments store is not initialized")
	}
	if record.ChargeID == "" {
		return fmt.Errorf("investment record charge id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal investment record")
	}

	key := fmt.Sprintf("%s%s", recordKeyPrefix, record.ChargeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// latestByCharge folds the WAL into the current state per charge id.
func (s *WALStore) latestByCharge() (map[string]domain.InvestmentRecord, error) {
	latest := make(map[string]domain.InvestmentRecord)
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, recordKeyPrefix) {
			continue
		}
		var record domain.InvestmentRecord
		if err := json.Unmarshal(msg.Value, &record); err != nil {
			return nil, errors.Wrap(err, "decode investment record")
		}
		latest[record.ChargeID] = record
	}
	return latest, nil
}

// Get returns the current state of the investment with the given charge id.
func (s *WALStore) Get(chargeID string) (domain.InvestmentRecord, bool, error) {
	if s == nil || s.wal == nil {
		return domain.InvestmentRecord{}, false, errors.New("investments store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, err := s.latestByCharge()
	if err != nil {
		return domain.InvestmentRecord{}, false, err
	}

	record, ok := latest[chargeID]
	return record, ok, nil
}

// WithStatus returns all investments currently in the given status.
func (s *WALStore) WithStatus(status domain.InvestmentStatus) ([]domain.InvestmentRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("investments store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, err := s.latestByCharge()
	if err != nil {
		return nil, err
	}

	records := make([]domain.InvestmentRecord, 0)
	for _, record := range latest {
		if record.Status == status {
			records = append(records, record)
		}
	}

	return records, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("investments store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
