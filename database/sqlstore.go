package database

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "mysql" database/sql driver
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/multierr"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

const (
	identifiersQuery = "SELECT pk_oss_id FROM t_oss_id_purl_map WHERE pk_purl = ? ORDER BY pk_oss_id"
	cvesQuery        = "SELECT cve_id FROM t_origin_vulnerability WHERE oss_id = ? ORDER BY cve_id"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS t_oss_id_purl_map (
		pk_purl VARCHAR(512) NOT NULL,
		pk_oss_id VARCHAR(128) NOT NULL,
		PRIMARY KEY (pk_purl, pk_oss_id)
	)`,
	`CREATE TABLE IF NOT EXISTS t_origin_vulnerability (
		oss_id VARCHAR(128) NOT NULL,
		cve_id VARCHAR(64) NOT NULL,
		description TEXT
	)`,
}

// SQLStore answers the two-hop lookup from the t_oss_id_purl_map and
// t_origin_vulnerability tables of a MySQL or SQLite database.
type SQLStore struct {
	db          *sql.DB
	identifiers *sql.Stmt
	cves        *sql.Stmt
}

// OpenSQL opens a SQL vulnerability store. driver is "mysql" or "sqlite".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to connect to %s database: %w", driver, err), db.Close())
	}

	store, err := NewSQLStore(ctx, db)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return store, nil
}

// NewSQLStore prepares the lookup statements on an open database.
// The store takes ownership of db and closes it in Close.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	identifiers, err := db.PrepareContext(ctx, identifiersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare identifier lookup: %w", err)
	}
	cves, err := db.PrepareContext(ctx, cvesQuery)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to prepare CVE lookup: %w", err), identifiers.Close())
	}
	return &SQLStore{db: db, identifiers: identifiers, cves: cves}, nil
}

// EnsureSQLSchema creates the lookup tables when they do not exist
func EnsureSQLSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// IdentifiersFor returns the OSS ids mapped to purl
func (s *SQLStore) IdentifiersFor(ctx context.Context, purl string) ([]string, error) {
	return queryColumn(ctx, s.identifiers, purl)
}

// CVEsFor returns the CVE ids recorded for ossID
func (s *SQLStore) CVEsFor(ctx context.Context, ossID string) ([]string, error) {
	return queryColumn(ctx, s.cves, ossID)
}

// Close releases the prepared statements and the database handle
func (s *SQLStore) Close() error {
	return multierr.Combine(s.identifiers.Close(), s.cves.Close(), s.db.Close())
}

func queryColumn(ctx context.Context, stmt *sql.Stmt, arg string) ([]string, error) {
	rows, err := stmt.QueryContext(ctx, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid && v.String != "" {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}
