package database

import (
	"context"

	"github.com/arangodb/go-driver/v2/arangodb"
	"go.uber.org/zap"
)

// ArangoStore answers the two-hop lookup from the purl2oss and oss2cve collections
type ArangoStore struct {
	conn   DBConnection
	logger *zap.Logger
}

// IdentifiersFor returns the OSS ids mapped to purl, sorted
func (s *ArangoStore) IdentifiersFor(ctx context.Context, purl string) ([]string, error) {
	query := `
		FOR m IN purl2oss
			FILTER m.purl == @purl AND m.oss_id != null AND m.oss_id != ""
			COLLECT id = m.oss_id
			RETURN id
	`
	return s.queryStrings(ctx, query, map[string]interface{}{"purl": purl})
}

// CVEsFor returns the CVE ids recorded for ossID, sorted
func (s *ArangoStore) CVEsFor(ctx context.Context, ossID string) ([]string, error) {
	query := `
		FOR v IN oss2cve
			FILTER v.oss_id == @oss_id AND v.cve_id != null AND v.cve_id != ""
			COLLECT cve = v.cve_id
			RETURN cve
	`
	return s.queryStrings(ctx, query, map[string]interface{}{"oss_id": ossID})
}

// Close releases the store. The HTTP connection holds no resources that need closing.
func (s *ArangoStore) Close() error {
	return nil
}

func (s *ArangoStore) queryStrings(ctx context.Context, query string, bindVars map[string]interface{}) ([]string, error) {
	cursor, err := s.conn.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var results []string
	for cursor.HasMore() {
		var value string
		if _, err := cursor.ReadDocument(ctx, &value); err != nil {
			return nil, err
		}
		results = append(results, value)
	}

	s.logger.Debug("query finished", zap.Any("bind_vars", bindVars), zap.Int("results", len(results)))
	return results, nil
}
