package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"

	"VaultTreasury/internal/model"
)

// SQLiteRecorder persists treasury history to a SQLite database. Amounts are
// stored as decimal text since they do not fit in an INTEGER column.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the service writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS treasury_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			op_id       TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			vault_index INTEGER,
			vault       TEXT,
			asset       TEXT,
			account     TEXT,
			amount      TEXT,
			secondary   TEXT,
			weight      TEXT,
			old_weight  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON treasury_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_op ON treasury_events(op_id)`,

		`CREATE TABLE IF NOT EXISTS yield_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			vault_index    INTEGER NOT NULL,
			vault          TEXT NOT NULL,
			principal      TEXT,
			value          TEXT,
			yield          TEXT,
			stable_balance TEXT,
			total_weight   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_yield_ts ON yield_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordEvent(evt *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO treasury_events
		(timestamp, op_id, event_type, vault_index, vault, asset, account,
		 amount, secondary, weight, old_weight)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.OpID, string(evt.Type), evt.Index,
		addrText(evt.Vault), addrText(evt.Asset), addrText(evt.Account),
		intText(evt.Amount), intText(evt.Secondary), intText(evt.Weight), intText(evt.OldWeight),
	)
	return err
}

func (r *SQLiteRecorder) RecordYield(snap *YieldSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := snap.At
	if at.IsZero() {
		at = time.Now()
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	for _, y := range snap.Yields {
		yieldText := ""
		if y.Yield != nil {
			yieldText = y.Yield.String()
		}
		_, err := tx.Exec(`INSERT INTO yield_snapshots
			(timestamp, vault_index, vault, principal, value, yield, stable_balance, total_weight)
			VALUES (?,?,?,?,?,?,?,?)`,
			at.Unix(), y.Index, y.VaultID.Hex(),
			intText(y.Principal), intText(y.Value), yieldText,
			intText(snap.StableBalance), intText(snap.TotalWeight),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecentEvents(limit int) ([]*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, op_id, event_type, vault_index, vault, asset, account,
		amount, secondary, weight, old_weight
		FROM treasury_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var (
			ts                                   int64
			evt                                  model.Event
			eventType, vault, asset, account     string
			amount, secondary, weight, oldWeight string
		)
		if err := rows.Scan(&ts, &evt.OpID, &eventType, &evt.Index, &vault, &asset, &account,
			&amount, &secondary, &weight, &oldWeight); err != nil {
			return nil, err
		}
		evt.At = time.Unix(ts, 0)
		evt.Type = model.EventType(eventType)
		evt.Vault, evt.Asset, evt.Account = parseAddr(vault), parseAddr(asset), parseAddr(account)
		if evt.Amount, err = parseInt(amount); err != nil {
			return nil, err
		}
		if evt.Secondary, err = parseInt(secondary); err != nil {
			return nil, err
		}
		if evt.Weight, err = parseInt(weight); err != nil {
			return nil, err
		}
		if evt.OldWeight, err = parseInt(oldWeight); err != nil {
			return nil, err
		}
		out = append(out, &evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func addrText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func parseAddr(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func intText(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func parseInt(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", s, err)
	}
	return v, nil
}
