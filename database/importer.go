package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/sbom-enricher/config"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ImportStats counts the records written by an import
type ImportStats struct {
	Mappings        int
	Vulnerabilities int
}

// Import loads the records of an offline database into the store selected by cfg.
// Records already present are left alone, so importing the same file twice is harmless.
func Import(ctx context.Context, cfg config.VulnDBConfig, db *enricher.OfflineDB, logger *zap.Logger) (ImportStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case config.DriverArango:
		store, err := Connect(ctx, cfg, logger)
		if err != nil {
			return ImportStats{}, err
		}
		return store.Import(ctx, db)
	case config.DriverMySQL, config.DriverSQLite:
		sqlDB, err := sql.Open(cfg.Driver, cfg.DSN())
		if err != nil {
			return ImportStats{}, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
		}
		stats, err := ImportSQL(ctx, sqlDB, db)
		return stats, multierr.Append(err, sqlDB.Close())
	default:
		return ImportStats{}, fmt.Errorf("cannot import into a %q vulnerability store", cfg.Driver)
	}
}

// Import creates the purl2oss and oss2cve collections when needed and upserts the
// mappings and vulnerabilities into them
func (s *ArangoStore) Import(ctx context.Context, db *enricher.OfflineDB) (ImportStats, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return ImportStats{}, err
	}

	mappings := make([]model.OssPurlMapping, len(db.Mappings))
	for i, m := range db.Mappings {
		m.ObjType = model.ObjTypeOssPurlMapping
		mappings[i] = m
	}
	vulns := make([]model.OssVulnerability, len(db.Vulnerabilities))
	for i, v := range db.Vulnerabilities {
		v.ObjType = model.ObjTypeOssVulnerability
		vulns[i] = v
	}

	var stats ImportStats
	var err error

	stats.Mappings, err = s.upsert(ctx, `
		FOR m IN @docs
			UPSERT { purl: m.purl, oss_id: m.oss_id }
			INSERT m
			UPDATE {} IN purl2oss
			RETURN OLD ? 0 : 1
	`, mappings)
	if err != nil {
		return stats, fmt.Errorf("failed to import purl mappings: %w", err)
	}

	stats.Vulnerabilities, err = s.upsert(ctx, `
		FOR v IN @docs
			UPSERT { oss_id: v.oss_id, cve_id: v.cve_id }
			INSERT v
			UPDATE {} IN oss2cve
			RETURN OLD ? 0 : 1
	`, vulns)
	if err != nil {
		return stats, fmt.Errorf("failed to import vulnerabilities: %w", err)
	}

	s.logger.Info("Import finished", zap.Int("mappings", stats.Mappings), zap.Int("vulnerabilities", stats.Vulnerabilities))
	return stats, nil
}

// upsert runs an UPSERT query over docs and returns how many documents were inserted
func (s *ArangoStore) upsert(ctx context.Context, query string, docs interface{}) (int, error) {
	cursor, err := s.conn.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"docs": docs},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	inserted := 0
	for cursor.HasMore() {
		var n int
		if _, err := cursor.ReadDocument(ctx, &n); err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

// ImportSQL creates the lookup tables when needed and inserts the records that are
// not present yet, in a single transaction.
func ImportSQL(ctx context.Context, sqlDB *sql.DB, db *enricher.OfflineDB) (stats ImportStats, err error) {
	if err := EnsureSQLSchema(ctx, sqlDB); err != nil {
		return stats, err
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to start import: %w", err)
	}
	done := false
	defer func() {
		if !done {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for _, m := range db.Mappings {
		added, err := insertMissing(ctx, tx,
			"SELECT COUNT(*) FROM t_oss_id_purl_map WHERE pk_purl = ? AND pk_oss_id = ?",
			"INSERT INTO t_oss_id_purl_map (pk_purl, pk_oss_id) VALUES (?, ?)",
			[]interface{}{m.Purl, m.OssID}, m.Purl, m.OssID)
		if err != nil {
			return stats, fmt.Errorf("failed to import mapping %s: %w", m.Purl, err)
		}
		if added {
			stats.Mappings++
		}
	}

	for _, v := range db.Vulnerabilities {
		added, err := insertMissing(ctx, tx,
			"SELECT COUNT(*) FROM t_origin_vulnerability WHERE oss_id = ? AND cve_id = ?",
			"INSERT INTO t_origin_vulnerability (oss_id, cve_id, description) VALUES (?, ?, ?)",
			[]interface{}{v.OssID, v.CveID}, v.OssID, v.CveID, v.Description)
		if err != nil {
			return stats, fmt.Errorf("failed to import vulnerability %s: %w", v.CveID, err)
		}
		if added {
			stats.Vulnerabilities++
		}
	}

	done = true
	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("failed to commit import: %w", err)
	}
	return stats, nil
}

func insertMissing(ctx context.Context, tx *sql.Tx, existsQuery, insertQuery string, key []interface{}, values ...interface{}) (bool, error) {
	var count int
	if err := tx.QueryRowContext(ctx, existsQuery, key...).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, insertQuery, values...); err != nil {
		return false, err
	}
	return true, nil
}
