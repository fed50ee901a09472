package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"embervault/native/treasury"
)

// Storage wraps the treasuryd persistence layer: an RLP-encoded key/value
// mirror for the engine ledger plus an execution history table.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("treasuryd storage path must be configured")

var _ treasury.Storage = (*Storage)(nil)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// KVGet loads and RLP-decodes the value stored under key. The boolean reports
// whether the key was present.
func (s *Storage) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRow(`SELECT value FROM kv_state WHERE key = ?`, string(key))
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query kv: %w", err)
	}
	if err := rlp.DecodeBytes(blob, out); err != nil {
		return false, fmt.Errorf("decode kv value: %w", err)
	}
	return true, nil
}

// KVPut RLP-encodes value and upserts it under key.
func (s *Storage) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	blob, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode kv value: %w", err)
	}
	if _, err := s.db.Exec(`
        INSERT INTO kv_state(key, value, updated_at)
        VALUES(?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET
            value=excluded.value,
            updated_at=CURRENT_TIMESTAMP
    `, string(key), blob); err != nil {
		return fmt.Errorf("save kv: %w", err)
	}
	return nil
}

// ExecutionRecord captures one completed (or degraded) execution pass.
type ExecutionRecord struct {
	ID               string
	ExecutedAt       time.Time
	Height           uint64
	TotalYield       string
	AmountToStable   string
	AmountBurned     string
	LiquidityCreated string
	AmountToStakers  string
	AmountCompounded string
	Strategy         string
	Regime           string
	Emergency        bool
	PartialFailures  int
}

// RecordExecution persists a completed pass and returns its identifier.
func (s *Storage) RecordExecution(ctx context.Context, result *treasury.ExecutionResult) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage not configured")
	}
	if result == nil {
		return "", fmt.Errorf("execution result required")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO executions(
            id, executed_at, height, total_yield, to_stable, burned,
            liquidity, to_stakers, compounded, strategy, regime, emergency,
            partial_failures, recorded_at
        ) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
    `, id, result.ExecutedAt.UTC().Unix(), result.Height,
		amountString(result.TotalYield), amountString(result.AmountToStable),
		amountString(result.AmountBurned), amountString(result.LiquidityCreated),
		amountString(result.AmountToStakers), amountString(result.AmountCompounded),
		result.Strategy.String(), result.Regime, boolInt(result.Emergency),
		len(result.Partials))
	if err != nil {
		return "", fmt.Errorf("insert execution: %w", err)
	}
	return id, nil
}

// RecentExecutions returns up to limit passes, most recent first.
func (s *Storage) RecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, executed_at, height, total_yield, to_stable, burned,
               liquidity, to_stakers, compounded, strategy, regime, emergency,
               partial_failures
        FROM executions
        ORDER BY executed_at DESC, recorded_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()
	records := make([]ExecutionRecord, 0, limit)
	for rows.Next() {
		var rec ExecutionRecord
		var executedAt int64
		var emergency int
		if err := rows.Scan(&rec.ID, &executedAt, &rec.Height, &rec.TotalYield,
			&rec.AmountToStable, &rec.AmountBurned, &rec.LiquidityCreated,
			&rec.AmountToStakers, &rec.AmountCompounded, &rec.Strategy,
			&rec.Regime, &emergency, &rec.PartialFailures); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if executedAt > 0 {
			rec.ExecutedAt = time.Unix(executedAt, 0).UTC()
		}
		rec.Emergency = emergency != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return records, nil
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const schema = `
CREATE TABLE IF NOT EXISTS kv_state (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    executed_at INTEGER NOT NULL,
    height INTEGER NOT NULL,
    total_yield TEXT NOT NULL,
    to_stable TEXT NOT NULL,
    burned TEXT NOT NULL,
    liquidity TEXT NOT NULL,
    to_stakers TEXT NOT NULL,
    compounded TEXT NOT NULL,
    strategy TEXT NOT NULL,
    regime TEXT NOT NULL,
    emergency INTEGER NOT NULL,
    partial_failures INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_executed_at ON executions(executed_at);
`
