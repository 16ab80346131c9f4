// Package navhistory persists NAV snapshots in an append-only WAL.
package navhistory

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
	segmentLimit      = 1000
	maxSegments       = 100
	snapshotKeyPrefix = "nav_"
)

// WALStore holds the NAV snapshot history, one append-only record per
// fund per accounting cycle.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the NAV history WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "nav_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init NAV history WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes one NAV snapshot.
func (s *WALStore) Append(snapshot domain.NAVSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("NAV history store is not initialized")
	}
	if snapshot.FundID == "" {
		return fmt.Errorf("NAV snapshot fund id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal NAV snapshot")
	}

	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, snapshot.FundID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// Latest returns the most recent snapshot for the fund. The second return
// value is false when the fund has no NAV history yet.
func (s *WALStore) Latest(fundID string) (domain.NAVSnapshot, bool, error) {
	if s == nil || s.wal == nil {
		return domain.NAVSnapshot{}, false, errors.New("NAV history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, fundID)

	var latest domain.NAVSnapshot
	found := false
	for msg := range s.wal.Iterator() {
		if msg.Key != key {
			continue
		}
		var snapshot domain.NAVSnapshot
		if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
			return domain.NAVSnapshot{}, false, errors.Wrap(err, "decode NAV snapshot")
		}
		latest = snapshot
		found = true
	}

	return latest, found, nil
}

// Record is a NAV snapshot with its WAL index.
type Record struct {
	Index    uint64
	Snapshot domain.NAVSnapshot
}

// SnapshotsAfter returns all snapshots written after the provided index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("NAV history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.NAVSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode NAV snapshot")
		}
		records = append(records, Record{Index: idx, Snapshot: snapshot})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("NAV history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
