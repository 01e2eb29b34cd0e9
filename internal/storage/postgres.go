package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"procurement-signals/internal/config"
	"procurement-signals/internal/domain"
)

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS procurement_alerts (
        id        BIGINT PRIMARY KEY,
        ts        TIMESTAMPTZ NOT NULL,
        type      TEXT NOT NULL,
        material  TEXT NOT NULL,
        message   TEXT NOT NULL,
        severity  TEXT NOT NULL,
        read      BOOLEAN NOT NULL DEFAULT FALSE
    );
    CREATE INDEX IF NOT EXISTS idx_procurement_alerts_ts ON procurement_alerts (ts);
    CREATE TABLE IF NOT EXISTS procurement_alert_counter (
        singleton SMALLINT PRIMARY KEY CHECK (singleton = 1),
        next_id   BIGINT NOT NULL
    );
    INSERT INTO procurement_alert_counter (singleton, next_id) VALUES (1, 1)
    ON CONFLICT (singleton) DO NOTHING;
    CREATE TABLE IF NOT EXISTS procurement_purchase_orders (
        number     TEXT PRIMARY KEY,
        seq        BIGINT NOT NULL UNIQUE,
        status     TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        body       JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_procurement_purchase_orders_status ON procurement_purchase_orders (status);
    CREATE TABLE IF NOT EXISTS procurement_po_counter (
        singleton SMALLINT PRIMARY KEY CHECK (singleton = 1),
        next_seq  BIGINT NOT NULL
    );
    INSERT INTO procurement_po_counter (singleton, next_seq) VALUES (1, 1001)
    ON CONFLICT (singleton) DO NOTHING;`

	allocateAlertIDSQL = `UPDATE procurement_alert_counter
    SET next_id = next_id + 1
    WHERE singleton = 1
    RETURNING next_id - 1;`

	insertAlertSQL = `INSERT INTO procurement_alerts (
        id,
        ts,
        type,
        material,
        message,
        severity,
        read
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listAlertsSQL = `SELECT
        id,
        ts,
        type,
        material,
        message,
        severity,
        read
    FROM procurement_alerts
    ORDER BY id;`

	listAlertsSinceSQL = `SELECT
        id,
        ts,
        type,
        material,
        message,
        severity,
        read
    FROM procurement_alerts
    WHERE ts >= $1
    ORDER BY id;`

	markAlertReadSQL = `UPDATE procurement_alerts SET read = TRUE WHERE id = $1;`

	markAllAlertsReadSQL = `UPDATE procurement_alerts SET read = TRUE WHERE read = FALSE;`

	deleteAlertsBeforeSQL = `DELETE FROM procurement_alerts WHERE ts < $1;`

	trimAlertsSQL = `DELETE FROM procurement_alerts
    WHERE id NOT IN (
        SELECT id FROM procurement_alerts ORDER BY id DESC LIMIT $1
    );`

	allocatePOSeqSQL = `UPDATE procurement_po_counter
    SET next_seq = next_seq + 1
    WHERE singleton = 1
    RETURNING next_seq - 1;`

	insertPurchaseOrderSQL = `INSERT INTO procurement_purchase_orders (
        number,
        seq,
        status,
        created_at,
        body
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	getPurchaseOrderSQL = `SELECT body FROM procurement_purchase_orders WHERE number = $1;`

	listPurchaseOrdersSQL = `SELECT
        number,
        body
    FROM procurement_purchase_orders
    WHERE ($1::text = '' OR status = $1::text)
    ORDER BY seq DESC
    LIMIT $2;`

	updatePurchaseOrderSQL = `UPDATE procurement_purchase_orders
    SET status = $2, body = $3
    WHERE number = $1;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore persists the alert log and purchase orders in PostgreSQL. Ids
// and order sequences come from one-row counter tables updated in the same
// transaction as the insert.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "alert_store_postgres").Logger(),
	}
}

// EnsureSchema creates the alert and purchase order tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return fmt.Errorf("ensure alert schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Append implements AlertStore.
func (s *PostgresStore) Append(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if scanErr := tx.QueryRow(ctx, allocateAlertIDSQL).Scan(&alert.ID); scanErr != nil {
			return fmt.Errorf("allocate alert id: %w", scanErr)
		}
		if _, execErr := tx.Exec(ctx, insertAlertSQL,
			alert.ID,
			alert.Timestamp.UTC(),
			string(alert.Type),
			alert.Material,
			alert.Message,
			string(alert.Severity),
			alert.Read,
		); execErr != nil {
			return fmt.Errorf("insert alert: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

// List implements AlertStore.
func (s *PostgresStore) List(ctx context.Context) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	return s.collect(rows)
}

// ListSince implements AlertStore.
func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listAlertsSinceSQL, since.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts since: %w", queryErr)
	}
	return s.collect(rows)
}

// SetRead implements AlertStore.
func (s *PostgresStore) SetRead(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markAlertReadSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark alert read: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: alert %d", domain.ErrNotFound, id)
	}
	return nil
}

// MarkAllRead implements AlertStore.
func (s *PostgresStore) MarkAllRead(ctx context.Context) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, markAllAlertsReadSQL)
	if execErr != nil {
		return 0, fmt.Errorf("mark all alerts read: %w", execErr)
	}
	return int(cmdTag.RowsAffected()), nil
}

// PruneBefore implements AlertStore.
func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, cutoff.UTC())
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return int(cmdTag.RowsAffected()), nil
}

// TrimTo implements AlertStore.
func (s *PostgresStore) TrimTo(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, trimAlertsSQL, keep)
	if execErr != nil {
		return 0, fmt.Errorf("trim alerts: %w", execErr)
	}
	return int(cmdTag.RowsAffected()), nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) collect(rows pgx.Rows) ([]domain.Alert, error) {
	defer rows.Close()

	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		if validateErr := alert.Validate(); validateErr != nil {
			s.logger.Warn().Int64("alert_id", alert.ID).Str("type", string(alert.Type)).Msg("跳过格式错误的告警记录")
			continue
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// CreatePurchaseOrder implements PurchaseOrderStore.
func (s *PostgresStore) CreatePurchaseOrder(ctx context.Context, build func(seq int64) (domain.PurchaseOrder, error)) (domain.PurchaseOrder, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	var po domain.PurchaseOrder
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var seq int64
		if scanErr := tx.QueryRow(ctx, allocatePOSeqSQL).Scan(&seq); scanErr != nil {
			return fmt.Errorf("allocate purchase order seq: %w", scanErr)
		}
		built, buildErr := build(seq)
		if buildErr != nil {
			return buildErr
		}
		body, marshalErr := json.Marshal(built)
		if marshalErr != nil {
			return fmt.Errorf("marshal purchase order: %w", marshalErr)
		}
		if _, execErr := tx.Exec(ctx, insertPurchaseOrderSQL,
			built.Number,
			built.Seq,
			string(built.Status),
			built.CreatedAt.UTC(),
			body,
		); execErr != nil {
			return fmt.Errorf("insert purchase order: %w", execErr)
		}
		po = built
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return po, nil
}

// GetPurchaseOrder implements PurchaseOrderStore.
func (s *PostgresStore) GetPurchaseOrder(ctx context.Context, number string) (domain.PurchaseOrder, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	var body []byte
	if scanErr := pool.QueryRow(ctx, getPurchaseOrderSQL, number).Scan(&body); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, number)
		}
		return domain.PurchaseOrder{}, fmt.Errorf("lookup purchase order: %w", scanErr)
	}
	var po domain.PurchaseOrder
	if err := json.Unmarshal(body, &po); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("decode purchase order %s: %w", number, err)
	}
	return po, nil
}

// ListPurchaseOrders implements PurchaseOrderStore.
func (s *PostgresStore) ListPurchaseOrders(ctx context.Context, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var limitArg any
	if limit > 0 {
		limitArg = int64(limit)
	}
	rows, queryErr := pool.Query(ctx, listPurchaseOrdersSQL, string(status), limitArg)
	if queryErr != nil {
		return nil, fmt.Errorf("list purchase orders: %w", queryErr)
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0)
	for rows.Next() {
		var (
			number string
			body   []byte
		)
		if err := rows.Scan(&number, &body); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		var po domain.PurchaseOrder
		if err := json.Unmarshal(body, &po); err != nil {
			s.logger.Warn().Err(err).Str("po_number", number).Msg("跳过无法解析的采购单记录")
			continue
		}
		orders = append(orders, po)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

// UpdatePurchaseOrder implements PurchaseOrderStore.
func (s *PostgresStore) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	body, err := json.Marshal(po)
	if err != nil {
		return fmt.Errorf("marshal purchase order: %w", err)
	}
	cmdTag, execErr := pool.Exec(ctx, updatePurchaseOrderSQL, po.Number, string(po.Status), body)
	if execErr != nil {
		return fmt.Errorf("update purchase order: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, po.Number)
	}
	return nil
}

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var (
		alert    domain.Alert
		typ, sev string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.Timestamp,
		&typ,
		&alert.Material,
		&alert.Message,
		&sev,
		&alert.Read,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Alert{}, domain.ErrNotFound
		}
		return domain.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	alert.Type = domain.AlertType(typ)
	alert.Severity = domain.Severity(sev)
	alert.Timestamp = alert.Timestamp.UTC()
	return alert, nil
}

var _ Store = (*PostgresStore)(nil)
