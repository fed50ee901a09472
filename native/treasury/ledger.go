package treasury

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Storage abstracts the subset of state persistence required by the
// accounting ledger. Values are encoded by the implementation (RLP for the
// sqlite-backed store shipped with treasuryd).
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var ledgerKey = []byte("treasury/ledger")

// LedgerSnapshot carries the cumulative accounting totals. All counters are
// monotonically non-decreasing.
type LedgerSnapshot struct {
	TotalYieldProcessed   *big.Int
	TotalGovernanceBurned *big.Int
	TotalLiquidityCreated *big.Int
	LastExecutionTime     time.Time
	LastExecutionHeight   uint64
}

// Clone deep-copies the snapshot.
func (s *LedgerSnapshot) Clone() *LedgerSnapshot {
	if s == nil {
		return zeroSnapshot()
	}
	return &LedgerSnapshot{
		TotalYieldProcessed:   cloneBigInt(s.TotalYieldProcessed),
		TotalGovernanceBurned: cloneBigInt(s.TotalGovernanceBurned),
		TotalLiquidityCreated: cloneBigInt(s.TotalLiquidityCreated),
		LastExecutionTime:     s.LastExecutionTime,
		LastExecutionHeight:   s.LastExecutionHeight,
	}
}

func zeroSnapshot() *LedgerSnapshot {
	return &LedgerSnapshot{
		TotalYieldProcessed:   big.NewInt(0),
		TotalGovernanceBurned: big.NewInt(0),
		TotalLiquidityCreated: big.NewInt(0),
	}
}

// storedLedger is the persisted wire form. RLP has no signed or time types,
// so the execution timestamp is stored as Unix seconds.
type storedLedger struct {
	TotalYieldProcessed   *big.Int
	TotalGovernanceBurned *big.Int
	TotalLiquidityCreated *big.Int
	LastExecutionTime     uint64
	LastExecutionHeight   uint64
}

// Ledger tracks the cumulative execution totals in memory and mirrors them
// into the backing store. The in-memory snapshot is authoritative for the
// lifetime of the process; Load hydrates it once at construction.
type Ledger struct {
	mu       sync.RWMutex
	store    Storage
	snapshot *LedgerSnapshot
}

// NewLedger constructs a ledger over the backing store, hydrating any
// previously persisted totals.
func NewLedger(store Storage) (*Ledger, error) {
	ledger := &Ledger{store: store, snapshot: zeroSnapshot()}
	if store == nil {
		return ledger, nil
	}
	var stored storedLedger
	ok, err := store.KVGet(ledgerKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("treasury: load ledger: %w", err)
	}
	if ok {
		ledger.snapshot = &LedgerSnapshot{
			TotalYieldProcessed:   cloneBigInt(stored.TotalYieldProcessed),
			TotalGovernanceBurned: cloneBigInt(stored.TotalGovernanceBurned),
			TotalLiquidityCreated: cloneBigInt(stored.TotalLiquidityCreated),
			LastExecutionHeight:   stored.LastExecutionHeight,
		}
		if stored.LastExecutionTime > 0 {
			ledger.snapshot.LastExecutionTime = time.Unix(int64(stored.LastExecutionTime), 0).UTC()
		}
	}
	return ledger, nil
}

// Snapshot returns a copy of the current totals.
func (l *Ledger) Snapshot() *LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Clone()
}

// LastExecution returns the timestamp of the most recent completed pass.
func (l *Ledger) LastExecution() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.LastExecutionTime
}

// Apply folds one completed pass into the totals and persists the result.
// The in-memory totals update even when persistence fails so rate limiting
// and conservation checks never observe a stale ledger; the persistence
// error is surfaced for the caller to report.
func (l *Ledger) Apply(processed, burned, liquidity *big.Int, executedAt time.Time, height uint64) (*LedgerSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.snapshot.Clone()
	if processed != nil && processed.Sign() > 0 {
		next.TotalYieldProcessed.Add(next.TotalYieldProcessed, processed)
	}
	if burned != nil && burned.Sign() > 0 {
		next.TotalGovernanceBurned.Add(next.TotalGovernanceBurned, burned)
	}
	if liquidity != nil && liquidity.Sign() > 0 {
		next.TotalLiquidityCreated.Add(next.TotalLiquidityCreated, liquidity)
	}
	next.LastExecutionTime = executedAt.UTC()
	next.LastExecutionHeight = height
	l.snapshot = next

	if l.store == nil {
		return next.Clone(), nil
	}
	stored := storedLedger{
		TotalYieldProcessed:   cloneBigInt(next.TotalYieldProcessed),
		TotalGovernanceBurned: cloneBigInt(next.TotalGovernanceBurned),
		TotalLiquidityCreated: cloneBigInt(next.TotalLiquidityCreated),
		LastExecutionHeight:   next.LastExecutionHeight,
	}
	if !next.LastExecutionTime.IsZero() {
		stored.LastExecutionTime = uint64(next.LastExecutionTime.Unix())
	}
	if err := l.store.KVPut(ledgerKey, stored); err != nil {
		return next.Clone(), fmt.Errorf("treasury: persist ledger: %w", err)
	}
	return next.Clone(), nil
}
