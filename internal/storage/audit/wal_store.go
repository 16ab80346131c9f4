// Package audit persists the rebalancing audit trail: volatility
// readings, executed rebalance actions and realized weight snapshots.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/basket/internal/domain"
)

const (
	segmentLimit        = 1000
	maxSegments         = 100
	volatilityKeyPrefix = "vol_"
	actionKeyPrefix     = "action_"
	weightsKeyPrefix    = "weights_"
)

// WALStore is the append-only rebalancing audit log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the audit WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "audit_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &WALStore{wal: wal}, nil
}

func (s *WALStore) append(key string, v any) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal audit record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// LogVolatility records one volatility reading.
func (s *WALStore) LogVolatility(reading domain.VolatilityReading) error {
	return s.append(volatilityKeyPrefix+uuid.New().String(), reading)
}

// LogAction records one executed rebalance trade.
func (s *WALStore) LogAction(action domain.RebalanceAction) error {
	key := fmt.Sprintf("%s%s_%s_%s", actionKeyPrefix, action.FundID, action.Asset, uuid.New().String())
	return s.append(key, action)
}

// LogWeights records the realized weights after a rebalance cycle.
func (s *WALStore) LogWeights(snapshot domain.WeightSnapshot) error {
	key := fmt.Sprintf("%s%s_%s", weightsKeyPrefix, snapshot.FundID, uuid.New().String())
	return s.append(key, snapshot)
}

// ActionsAfter returns rebalance actions written after the provided index.
func (s *WALStore) ActionsAfter(index uint64) ([]domain.RebalanceAction, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	actions := make([]domain.RebalanceAction, 0)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, actionKeyPrefix) {
			continue
		}
		var action domain.RebalanceAction
		if err := json.Unmarshal(payload, &action); err != nil {
			return nil, errors.Wrap(err, "decode rebalance action")
		}
		actions = append(actions, action)
	}

	return actions, nil
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
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
