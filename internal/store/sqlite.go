package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockdash/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ SymbolStore = (*SQLiteStore)(nil)

// SQLiteStore implements SymbolStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			market     TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			sector     TEXT NOT NULL DEFAULT '',
			first_date INTEGER NOT NULL DEFAULT 0,
			last_date  INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (market, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_sector ON symbols(market, sector)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// SymbolStore implementation
// ---------------------------------------------------------------------------

// UpsertSymbol inserts or replaces metadata for a symbol.
func (s *SQLiteStore) UpsertSymbol(ctx context.Context, info domain.SymbolInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO symbols (market, symbol, name, sector, first_date, last_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(market, symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			first_date = excluded.first_date,
			last_date = excluded.last_date,
			updated_at = excluded.updated_at`,
		string(info.Market), info.Symbol, info.Name, info.Sector,
		unixDay(info.FirstDate), unixDay(info.LastDate), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert symbol %s: %w", info.Symbol, err)
	}
	return nil
}

// GetSymbol retrieves metadata for a single symbol.
func (s *SQLiteStore) GetSymbol(ctx context.Context, market domain.Market, symbol string) (domain.SymbolInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT market, symbol, name, sector, first_date, last_date
		 FROM symbols WHERE market = ? AND symbol = ?`,
		string(market), symbol,
	)
	info, err := scanSymbol(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SymbolInfo{}, ErrNoData
	}
	return info, err
}

// ListSymbolInfo returns metadata for every symbol of a market.
func (s *SQLiteStore) ListSymbolInfo(ctx context.Context, market domain.Market) ([]domain.SymbolInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market, symbol, name, sector, first_date, last_date
		 FROM symbols WHERE market = ? ORDER BY symbol`,
		string(market),
	)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []domain.SymbolInfo
	for rows.Next() {
		info, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSymbol(r rowScanner) (domain.SymbolInfo, error) {
	var (
		info        domain.SymbolInfo
		market      string
		first, last int64
	)
	if err := r.Scan(&market, &info.Symbol, &info.Name, &info.Sector, &first, &last); err != nil {
		return domain.SymbolInfo{}, err
	}
	info.Market = domain.Market(market)
	if first > 0 {
		info.FirstDate = time.Unix(first, 0).UTC()
	}
	if last > 0 {
		info.LastDate = time.Unix(last, 0).UTC()
	}
	return info, nil
}

func unixDay(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return domain.Day(t).Unix()
}
