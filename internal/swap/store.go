package swap

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

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
)

// Record is the persisted trace of one swap run, saved at each state
// transition so the settlement can still be tracked after the process
// exits. Its quote id doubles as the single-consumption guard: a record
// that already holds a settlement id refuses re-execution.
type Record struct {
	QuoteID           string `json:"quote_id"`
	FlowKind          string `json:"flow_kind"`
	FromChainID       int64  `json:"from_chain_id"`
	ToChainID         int64  `json:"to_chain_id"`
	Account           string `json:"account"`
	InputToken        string `json:"input_token"`
	InputAmount       string `json:"input_amount"`
	SettlementID      string `json:"settlement_id,omitempty"`
	Status            string `json:"status"`
	OriginTxHash      string `json:"origin_tx_hash,omitempty"`
	DestinationTxHash string `json:"destination_tx_hash,omitempty"`
	ApprovalTxHash    string `json:"approval_tx_hash,omitempty"`
	Error             string `json:"error,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func NewRecord(quote bungee.Quote, account string) Record {
	now := time.Now().UTC().Format(time.RFC3339)
	return Record{
		QuoteID:     quote.QuoteID,
		FlowKind:    string(quote.FlowKind),
		FromChainID: quote.OriginChainID,
		ToChainID:   quote.DestinationChainID,
		Account:     account,
		InputToken:  quote.InputToken.Address,
		InputAmount: quote.InputAmount,
		Status:      string(StateQuoteReceived),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create swap store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create swap lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open swap sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS swaps (
			quote_id TEXT PRIMARY KEY,
			settlement_id TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_swaps_settlement ON swaps(settlement_id);",
		"CREATE INDEX IF NOT EXISTS idx_swaps_updated ON swaps(updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init swap schema: %w", err)
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

func (s *Store) Save(record Record) error {
	if strings.TrimSpace(record.QuoteID) == "" {
		return fmt.Errorf("save swap: missing quote id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock swap store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock swap store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal swap record: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(record.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(record.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO swaps (quote_id, settlement_id, status, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(quote_id) DO UPDATE SET
			settlement_id=excluded.settlement_id,
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, record.QuoteID, record.SettlementID, record.Status, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save swap: %w", err)
	}
	return nil
}

func (s *Store) Get(quoteID string) (Record, bool, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM swaps WHERE quote_id = ?", quoteID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read swap: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, false, fmt.Errorf("decode swap payload: %w", err)
	}
	return record, true, nil
}

func (s *Store) FindBySettlement(settlementID string) (Record, bool, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM swaps WHERE settlement_id = ? ORDER BY updated_at DESC LIMIT 1", settlementID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read swap: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, false, fmt.Errorf("decode swap payload: %w", err)
	}
	return record, true, nil
}

func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query("SELECT payload FROM swaps ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode swap row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}
	return records, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
