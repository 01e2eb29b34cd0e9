package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"procurement-signals/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alerts (
  id        INTEGER PRIMARY KEY,
  ts        TEXT    NOT NULL,
  type      TEXT    NOT NULL,
  material  TEXT    NOT NULL,
  message   TEXT    NOT NULL,
  severity  TEXT    NOT NULL,
  read      INTEGER NOT NULL DEFAULT 0 CHECK (read IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);
CREATE TABLE IF NOT EXISTS alert_counter (
  singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
  next_id   INTEGER NOT NULL
);
INSERT OR IGNORE INTO alert_counter(singleton, next_id) VALUES (1, 1);
CREATE TABLE IF NOT EXISTS purchase_orders (
  number     TEXT    PRIMARY KEY,
  seq        INTEGER NOT NULL UNIQUE,
  status     TEXT    NOT NULL,
  created_at TEXT    NOT NULL,
  body       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_purchase_orders_status ON purchase_orders(status);
CREATE TABLE IF NOT EXISTS po_counter (
  singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
  next_seq  INTEGER NOT NULL
);
INSERT OR IGNORE INTO po_counter(singleton, next_seq) VALUES (1, 1001);
`

const (
	sqliteSelectColumns = `SELECT id, ts, type, material, message, severity, read FROM alerts`

	sqliteNextIDSQL     = `SELECT next_id FROM alert_counter WHERE singleton = 1`
	sqliteBumpIDSQL     = `UPDATE alert_counter SET next_id = ? WHERE singleton = 1`
	sqliteInsertSQL     = `INSERT INTO alerts(id, ts, type, material, message, severity, read) VALUES(?,?,?,?,?,?,?)`
	sqliteListSQL       = sqliteSelectColumns + ` ORDER BY id`
	sqliteListSinceSQL  = sqliteSelectColumns + ` WHERE ts >= ? ORDER BY id`
	sqliteSetReadSQL    = `UPDATE alerts SET read = 1 WHERE id = ?`
	sqliteExistsSQL     = `SELECT 1 FROM alerts WHERE id = ?`
	sqliteMarkAllSQL    = `UPDATE alerts SET read = 1 WHERE read = 0`
	sqlitePruneSQL      = `DELETE FROM alerts WHERE ts < ?`
	sqliteTrimSQL       = `DELETE FROM alerts WHERE id NOT IN (SELECT id FROM alerts ORDER BY id DESC LIMIT ?)`
	sqliteTimestampForm = "2006-01-02T15:04:05.000000000Z07:00"

	sqliteNextPOSeqSQL = `SELECT next_seq FROM po_counter WHERE singleton = 1`
	sqliteBumpPOSeqSQL = `UPDATE po_counter SET next_seq = ? WHERE singleton = 1`
	sqliteInsertPOSQL  = `INSERT INTO purchase_orders(number, seq, status, created_at, body) VALUES(?,?,?,?,?)`
	sqliteGetPOSQL     = `SELECT body FROM purchase_orders WHERE number = ?`
	sqliteListPOSQL    = `SELECT number, body FROM purchase_orders WHERE (? = '' OR status = ?) ORDER BY seq DESC LIMIT ?`
	sqliteUpdatePOSQL  = `UPDATE purchase_orders SET status = ?, body = ? WHERE number = ?`
)

// SQLiteStore keeps the alert log and purchase orders in a local sqlite file.
// The next alert id and purchase order sequence live in one-row counter tables
// so neither is reused after pruning.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (and creates when missing) the alert database at path.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单写者
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "alert_store_sqlite").Logger(),
	}, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// Append implements AlertStore.
func (s *SQLiteStore) Append(ctx context.Context, alert domain.Alert) (out domain.Alert, err error) {
	db, err := s.getDB()
	if err != nil {
		return domain.Alert{}, err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.Alert{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.QueryRowContext(ctx, sqliteNextIDSQL).Scan(&next); err != nil {
		return domain.Alert{}, fmt.Errorf("read alert counter: %w", err)
	}
	alert.ID = next

	if _, err = tx.ExecContext(ctx, sqliteInsertSQL,
		alert.ID,
		alert.Timestamp.UTC().Format(sqliteTimestampForm),
		string(alert.Type),
		alert.Material,
		alert.Message,
		string(alert.Severity),
		boolToInt(alert.Read),
	); err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, sqliteBumpIDSQL, next+1); err != nil {
		return domain.Alert{}, fmt.Errorf("bump alert counter: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.Alert{}, fmt.Errorf("commit append: %w", err)
	}
	return alert, nil
}

// List implements AlertStore.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Alert, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqliteListSQL)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return s.collect(rows)
}

// ListSince implements AlertStore.
func (s *SQLiteStore) ListSince(ctx context.Context, since time.Time) ([]domain.Alert, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqliteListSinceSQL, since.UTC().Format(sqliteTimestampForm))
	if err != nil {
		return nil, fmt.Errorf("list alerts since: %w", err)
	}
	return s.collect(rows)
}

// SetRead implements AlertStore.
func (s *SQLiteStore) SetRead(ctx context.Context, id int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	var one int
	if err := db.QueryRowContext(ctx, sqliteExistsSQL, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: alert %d", domain.ErrNotFound, id)
		}
		return fmt.Errorf("lookup alert: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSetReadSQL, id); err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return nil
}

// MarkAllRead implements AlertStore.
func (s *SQLiteStore) MarkAllRead(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqliteMarkAllSQL)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return affected(res)
}

// PruneBefore implements AlertStore.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqlitePruneSQL, cutoff.UTC().Format(sqliteTimestampForm))
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return affected(res)
}

// TrimTo implements AlertStore.
func (s *SQLiteStore) TrimTo(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqliteTrimSQL, keep)
	if err != nil {
		return 0, fmt.Errorf("trim alerts: %w", err)
	}
	return affected(res)
}

// Close implements AlertStore.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// collect scans rows, skipping records that no longer parse.
func (s *SQLiteStore) collect(rows *sql.Rows) ([]domain.Alert, error) {
	defer rows.Close()

	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		var a domain.Alert
		var ts, typ, sev string
		var read int
		if err := rows.Scan(&a.ID, &ts, &typ, &a.Material, &a.Message, &sev, &read); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		parsed, err := time.Parse(sqliteTimestampForm, ts)
		if err != nil {
			s.logger.Warn().Int64("alert_id", a.ID).Str("ts", ts).Msg("跳过时间戳无法解析的告警记录")
			continue
		}
		a.Timestamp = parsed
		a.Type = domain.AlertType(typ)
		a.Severity = domain.Severity(sev)
		a.Read = read == 1
		if err := a.Validate(); err != nil {
			s.logger.Warn().Int64("alert_id", a.ID).Str("type", typ).Str("severity", sev).Msg("跳过格式错误的告警记录")
			continue
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CreatePurchaseOrder implements PurchaseOrderStore.
func (s *SQLiteStore) CreatePurchaseOrder(ctx context.Context, build func(seq int64) (domain.PurchaseOrder, error)) (out domain.PurchaseOrder, err error) {
	db, err := s.getDB()
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("begin purchase order: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var seq int64
	if err = tx.QueryRowContext(ctx, sqliteNextPOSeqSQL).Scan(&seq); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("read purchase order counter: %w", err)
	}
	po, err := build(seq)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	body, err := json.Marshal(po)
	if err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("marshal purchase order: %w", err)
	}
	if _, err = tx.ExecContext(ctx, sqliteInsertPOSQL,
		po.Number,
		po.Seq,
		string(po.Status),
		po.CreatedAt.UTC().Format(sqliteTimestampForm),
		string(body),
	); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("insert purchase order: %w", err)
	}
	if _, err = tx.ExecContext(ctx, sqliteBumpPOSeqSQL, seq+1); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("bump purchase order counter: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("commit purchase order: %w", err)
	}
	return po, nil
}

// GetPurchaseOrder implements PurchaseOrderStore.
func (s *SQLiteStore) GetPurchaseOrder(ctx context.Context, number string) (domain.PurchaseOrder, error) {
	db, err := s.getDB()
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	var body string
	if err := db.QueryRowContext(ctx, sqliteGetPOSQL, number).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, number)
		}
		return domain.PurchaseOrder{}, fmt.Errorf("lookup purchase order: %w", err)
	}
	var po domain.PurchaseOrder
	if err := json.Unmarshal([]byte(body), &po); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("decode purchase order %s: %w", number, err)
	}
	return po, nil
}

// ListPurchaseOrders implements PurchaseOrderStore.
func (s *SQLiteStore) ListPurchaseOrders(ctx context.Context, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		// sqlite 中 LIMIT -1 表示不限
		limit = -1
	}
	rows, err := db.QueryContext(ctx, sqliteListPOSQL, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0)
	for rows.Next() {
		var number, body string
		if err := rows.Scan(&number, &body); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		var po domain.PurchaseOrder
		if err := json.Unmarshal([]byte(body), &po); err != nil {
			s.logger.Warn().Err(err).Str("po_number", number).Msg("跳过无法解析的采购单记录")
			continue
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdatePurchaseOrder implements PurchaseOrderStore.
func (s *SQLiteStore) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	body, err := json.Marshal(po)
	if err != nil {
		return fmt.Errorf("marshal purchase order: %w", err)
	}
	res, err := db.ExecContext(ctx, sqliteUpdatePOSQL, string(po.Status), string(body), po.Number)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, po.Number)
	}
	return nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
