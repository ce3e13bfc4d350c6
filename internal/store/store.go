// Package store persists trade receipts in a local sqlite database so past
// operations survive process restarts. A file lock serializes writers across
// processes sharing the same database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"aaveclient/internal/aave"
	clierr "aaveclient/internal/errors"
)

const lockTimeout = 5 * time.Second

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create trade store directory", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create trade lock directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open trade sqlite", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS trades (
			tx_hash TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			asset_symbol TEXT NOT NULL,
			confirmed_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_trades_operation_confirmed ON trades(operation, confirmed_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, clierr.Wrap(clierr.CodeInternal, "init trade schema", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(receipt *aave.TradeReceipt) error {
	if receipt == nil || strings.TrimSpace(receipt.TxHash) == "" {
		return clierr.New(clierr.CodeInternal, "save trade: missing transaction hash")
	}
	locked, err := s.lock.TryLockContext(context.Background(), lockTimeout)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "lock trade store", err)
	}
	if !locked {
		return clierr.New(clierr.CodeInternal, "lock trade store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(receipt)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "marshal trade", err)
	}
	confirmedAt := receipt.ConfirmedAtUnix
	if confirmedAt == 0 {
		confirmedAt = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO trades (tx_hash, operation, asset_symbol, confirmed_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO UPDATE SET
			operation=excluded.operation,
			asset_symbol=excluded.asset_symbol,
			confirmed_at=excluded.confirmed_at,
			payload=excluded.payload
	`, receipt.TxHash, string(receipt.Operation), receipt.AssetSymbol, confirmedAt, payload)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "save trade", err)
	}
	return nil
}

func (s *Store) Get(txHash string) (*aave.TradeReceipt, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM trades WHERE tx_hash = ?", txHash).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("trade not found: %s", txHash))
		}
		return nil, clierr.Wrap(clierr.CodeInternal, "read trade", err)
	}
	var receipt aave.TradeReceipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, clierr.Wrap(clierr.CodeDecode, "decode trade payload", err)
	}
	return &receipt, nil
}

// List returns the most recent trades, newest first, optionally filtered to
// one operation.
func (s *Store) List(operation string, limit int) ([]*aave.TradeReceipt, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(operation) == "" {
		rows, err = s.db.Query("SELECT payload FROM trades ORDER BY confirmed_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM trades WHERE operation = ? ORDER BY confirmed_at DESC LIMIT ?", operation, limit)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "list trades", err)
	}
	defer rows.Close()

	trades := make([]*aave.TradeReceipt, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "scan trade row", err)
		}
		var receipt aave.TradeReceipt
		if err := json.Unmarshal(payload, &receipt); err != nil {
			return nil, clierr.Wrap(clierr.CodeDecode, "decode trade row", err)
		}
		trades = append(trades, &receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "iterate trade rows", err)
	}
	return trades, nil
}
