package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"esim-dashboard/config"
	"esim-dashboard/models"
	"esim-dashboard/utils"
)

const insertColumns = 6

// PostgresWriter persists a snapshot of the normalized product dataset.
// Each Write replaces the previous snapshot.
type PostgresWriter struct {
	db   *sql.DB
	cols config.Columns
}

// NewPostgresWriter opens a connection to PostgreSQL, retrying the initial
// ping, runs schema migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string, cols config.Columns, retry *utils.RetryConfig) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return NewPostgresWriterFromDB(db, cols)
}

// NewPostgresWriterFromDB wraps an open database handle and migrates the schema.
func NewPostgresWriterFromDB(db *sql.DB, cols config.Columns) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db, cols: cols}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS esim_products (
			id             SERIAL PRIMARY KEY,
			company        TEXT,
			price          NUMERIC(10,2),
			data_gb        NUMERIC(10,2),
			price_per_unit NUMERIC(12,4),
			coverage       TEXT,
			raw            JSONB        NOT NULL,
			created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_esim_products_company ON esim_products(company);
		CREATE INDEX IF NOT EXISTS idx_esim_products_price   ON esim_products(price);

		CREATE TABLE IF NOT EXISTS esim_snapshot_columns (
			position INTEGER PRIMARY KEY,
			name     TEXT NOT NULL
		);
	`)
	return err
}

// Write replaces the stored snapshot with ds inside a single transaction.
func (pw *PostgresWriter) Write(ds *models.Dataset) error {
	if ds.Len() == 0 {
		return nil
	}

	tx, err := pw.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM esim_products"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM esim_snapshot_columns"); err != nil {
		return fmt.Errorf("postgres: clear columns: %w", err)
	}
	if err := insertColumnOrder(tx, ds.Columns); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(ds.Rows); i += batchSize {
		end := i + batchSize
		if end > len(ds.Rows) {
			end = len(ds.Rows)
		}
		if err := pw.insertBatch(tx, ds.Rows[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertColumnOrder(tx *sql.Tx, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	valueStrings := make([]string, 0, len(columns))
	valueArgs := make([]interface{}, 0, len(columns)*2)
	for i, name := range columns {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d)", 2*i+1, 2*i+2))
		valueArgs = append(valueArgs, i, name)
	}

	query := "INSERT INTO esim_snapshot_columns (position, name) VALUES " + strings.Join(valueStrings, ",")
	if _, err := tx.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert columns: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(tx *sql.Tx, batch []models.Row) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*insertColumns)

	for idx, r := range batch {
		base := idx * insertColumns
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d::jsonb)",
				base+1, base+2, base+3, base+4, base+5, base+6))

		raw, err := encodeRow(r)
		if err != nil {
			return fmt.Errorf("postgres: encode row: %w", err)
		}
		valueArgs = append(valueArgs,
			textOrNull(r, pw.cols.Company),
			numberOrNull(r, pw.cols.Price),
			numberOrNull(r, pw.cols.Data),
			numberOrNull(r, pw.cols.PricePerUnit),
			textOrNull(r, pw.cols.Coverage),
			string(raw),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO esim_products (company, price, data_gb, price_per_unit, coverage, raw)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := tx.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll rebuilds the stored snapshot: rows in insertion order, columns in
// their original order.
func (pw *PostgresWriter) FetchAll() (*models.Dataset, error) {
	ds := models.NewDataset()

	cols, err := pw.db.Query(`SELECT name FROM esim_snapshot_columns ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch columns: %w", err)
	}
	defer cols.Close()
	for cols.Next() {
		var name string
		if err := cols.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan column: %w", err)
		}
		ds.Columns = append(ds.Columns, name)
	}
	if err := cols.Err(); err != nil {
		return nil, err
	}

	rows, err := pw.db.Query(`SELECT raw FROM esim_products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode row: %w", err)
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

// encodeRow stores the raw text of every present value.
func encodeRow(r models.Row) ([]byte, error) {
	fields := make(map[string]string, len(r))
	for k, c := range r {
		fields[k] = c.Text
	}
	return json.Marshal(fields)
}

func decodeRow(raw []byte) (models.Row, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	row := make(models.Row, len(fields))
	for k, v := range fields {
		row[k] = models.NewCell(v)
	}
	return row, nil
}

func textOrNull(r models.Row, col string) interface{} {
	if v, ok := r.Text(col); ok {
		return v
	}
	return nil
}

func numberOrNull(r models.Row, col string) interface{} {
	if v, ok := r.Number(col); ok {
		return v
	}
	return nil
}
