// Package redemptions persists completed redemptions in an append-only WAL.
package redemptions

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/basket/internal/domain"
)

const (
	segmentLimit   = 1000
	maxSegments    = 100
	entryKeyPrefix = "redemption_"
)

// WALStore is the append-only redemption log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the redemption WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "redemption_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init redemption WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes one redemption entry.
func (s *WALStore) Append(entry domain.RedemptionEntry) error {
	if s == nil || s.wal == nil {
		return errors.New("redemption store is not initialized")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal redemption entry")
	}

	key := fmt.Sprintf("%s%s_%s", entryKeyPrefix, entry.Email, uuid.New().String())

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// All returns every redemption entry in write order.
func (s *WALStore) All() ([]domain.RedemptionEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("redemption store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.RedemptionEntry, 0)
	for msg := range s.wal.Iterator() {
		var entry domain.RedemptionEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			return nil, errors.Wrap(err, "decode redemption entry")
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("redemption store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
