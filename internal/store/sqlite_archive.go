package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS orders_archive (
	order_id    TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	action      TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	price       TEXT,
	pricetype   TEXT NOT NULL,
	status      TEXT NOT NULL,
	archived_at DATETIME NOT NULL,
	PRIMARY KEY (order_id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_orders_archive_ts ON orders_archive(timestamp);
`

// ArchivedOrder 日切时从账本移出的订单记录
type ArchivedOrder struct {
	OrderID    string
	Timestamp  int64
	Symbol     string
	Action     string
	Quantity   int
	Price      string // 市价单为空
	PriceType  string
	Status     string
	ArchivedAt time.Time
}

// SQLiteArchive 保存历史交易日的订单记录。
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir archive dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

// Archive 批量写入；同一订单重复归档时覆盖。
func (a *SQLiteArchive) Archive(ctx context.Context, orders []ArchivedOrder) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO orders_archive
		(order_id, timestamp, symbol, action, quantity, price, pricetype, status, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range orders {
		var price interface{}
		if o.Price != "" {
			price = o.Price
		}
		archivedAt := o.ArchivedAt
		if archivedAt.IsZero() {
			archivedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			o.OrderID, o.Timestamp, o.Symbol, o.Action, o.Quantity,
			price, o.PriceType, o.Status, archivedAt.UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("archive order %s: %w", o.OrderID, err)
		}
	}
	return tx.Commit()
}

// List 按时间倒序返回最近 limit 条（limit<=0 表示全部）。
func (a *SQLiteArchive) List(ctx context.Context, limit int) ([]ArchivedOrder, error) {
	q := `SELECT order_id, timestamp, symbol, action, quantity, price, pricetype, status, archived_at
		FROM orders_archive ORDER BY timestamp DESC, order_id`
	var args []interface{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedOrder
	for rows.Next() {
		var (
			o     ArchivedOrder
			price sql.NullString
		)
		if err := rows.Scan(&o.OrderID, &o.Timestamp, &o.Symbol, &o.Action, &o.Quantity,
			&price, &o.PriceType, &o.Status, &o.ArchivedAt); err != nil {
			return nil, err
		}
		o.Price = price.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
