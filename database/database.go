// Package database - Vulnerability store backends: ArangoDB, MySQL/SQLite and the offline file
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"github.com/ortelius/sbom-enricher/config"
	"github.com/ortelius/sbom-enricher/enricher"
	"go.uber.org/zap"
)

// Collections holding the two hops of the lookup
const (
	PurlCollection = "purl2oss" // {purl, oss_id}
	CVECollection  = "oss2cve"  // {oss_id, cve_id, description}
)

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxField   string
}

var indexes = []indexConfig{
	{Collection: PurlCollection, IdxName: "purl2oss_purl", IdxField: "purl"},
	{Collection: CVECollection, IdxName: "oss2cve_oss_id", IdxField: "oss_id"},
}

// Open opens the vulnerability store selected by cfg.Driver
func Open(ctx context.Context, cfg config.VulnDBConfig, logger *zap.Logger) (enricher.VulnStore, error) {
	var store enricher.VulnStore
	var err error

	switch cfg.Driver {
	case config.DriverArango:
		store, err = Connect(ctx, cfg, logger)
	case config.DriverMySQL, config.DriverSQLite:
		store, err = OpenSQL(ctx, cfg.Driver, cfg.DSN())
	case config.DriverOffline:
		store, err = enricher.LoadOfflineStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported vulnerability store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Opener returns an enricher.OpenFunc bound to cfg
func Opener(cfg config.VulnDBConfig, logger *zap.Logger) enricher.OpenFunc {
	return func(ctx context.Context) (enricher.VulnStore, error) {
		return Open(ctx, cfg, logger)
	}
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Connect connects to ArangoDB, retrying with exponential backoff until cfg.ConnectTimeout
// has elapsed. The collections are not touched; see EnsureSchema.
func Connect(ctx context.Context, cfg config.VulnDBConfig, logger *zap.Logger) (*ArangoStore, error) {
	const initialInterval = 1 * time.Second
	const maxInterval = 10 * time.Second

	if logger == nil {
		logger = zap.NewNop()
	}

	var client arangodb.Client

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = cfg.ConnectTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 30 * time.Second // zero would retry forever
	}

	err := backoff.RetryNotify(func() error {
		logger.Debug("Attempting to connect to ArangoDB", zap.String("endpoint", cfg.Endpoint()))
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.Endpoint()})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Password))

		client = arangodb.NewClient(conn)

		// Ask the version of the server
		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.Error(err), zap.Duration("next", next))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ArangoDB at %s: %w", cfg.Endpoint(), err)
	}

	var options arangodb.GetDatabaseOptions
	db, err := client.GetDatabase(ctx, cfg.Name, &options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	conn := DBConnection{
		Database:    db,
		Collections: make(map[string]arangodb.Collection),
	}
	return &ArangoStore{conn: conn, logger: logger}, nil
}

// EnsureSchema creates the lookup collections and their indexes when they are missing.
// Only imports call it; lookups run against the existing collections.
func (s *ArangoStore) EnsureSchema(ctx context.Context) error {
	for _, name := range []string{PurlCollection, CVECollection} {
		col, err := ensureCollection(ctx, s.conn.Database, name, s.logger)
		if err != nil {
			return err
		}
		s.conn.Collections[name] = col
	}
	return ensureIndexes(ctx, s.conn, s.logger)
}

func ensureCollection(ctx context.Context, db arangodb.Database, name string, logger *zap.Logger) (arangodb.Collection, error) {
	exists, err := db.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
	}

	if exists {
		var options arangodb.GetCollectionOptions
		col, err := db.GetCollection(ctx, name, &options)
		if err != nil {
			return nil, fmt.Errorf("failed to use collection %s: %w", name, err)
		}
		return col, nil
	}

	logger.Info("Creating collection", zap.String("collection", name))
	col, err := db.CreateCollectionV2(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return col, nil
}

func ensureIndexes(ctx context.Context, conn DBConnection, logger *zap.Logger) error {
	False := false

	for _, idx := range indexes {
		found := false

		if existing, err := conn.Collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range existing {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if found {
			continue
		}

		indexOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &False,
			Sparse: &False,
			Name:   idx.IdxName,
		}

		logger.Info("Creating index", zap.String("collection", idx.Collection), zap.String("index", idx.IdxName))
		if _, _, err := conn.Collections[idx.Collection].EnsurePersistentIndex(ctx, []string{idx.IdxField}, &indexOptions); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.IdxName, err)
		}
	}
	return nil
}
