// Package graphql provides the GraphQL schema definition and resolvers
// for querying the vulnerability store by purl.
package graphql

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/util"
	"go.uber.org/zap"
)

// PurlType defines the GraphQL object for a parsed package URL
var PurlType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Purl",
	Fields: graphql.Fields{
		"purl":      &graphql.Field{Type: graphql.String},
		"base_purl": &graphql.Field{Type: graphql.String},
		"type":      &graphql.Field{Type: graphql.String},
		"namespace": &graphql.Field{Type: graphql.String},
		"name":      &graphql.Field{Type: graphql.String},
		"version":   &graphql.Field{Type: graphql.String},
	},
})

// VulnerabilityType defines the GraphQL object for a CVE found for a purl
var VulnerabilityType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Vulnerability",
	Fields: graphql.Fields{
		"cve_id":      &graphql.Field{Type: graphql.String},
		"description": &graphql.Field{Type: graphql.String},
		"source":      &graphql.Field{Type: graphql.String},
		"package":     &graphql.Field{Type: graphql.String},
		"version":     &graphql.Field{Type: graphql.String},
		"full_purl":   &graphql.Field{Type: graphql.String},
	},
})

// resolver opens the store for the duration of one field resolution
type resolver struct {
	open   enricher.OpenFunc
	logger *zap.Logger
}

func (r *resolver) withStore(ctx context.Context, fn func(enricher.VulnStore) (interface{}, error)) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", enricher.ErrStoreUnavailable, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			r.logger.Warn("failed to close vulnerability store", zap.Error(cerr))
		}
	}()
	return fn(store)
}

func resolvePurl(purl string) (map[string]interface{}, error) {
	parsed, err := util.ParsePURL(purl)
	if err != nil {
		return nil, err
	}
	base, err := util.GetBasePURL(purl)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"purl":      purl,
		"base_purl": base,
		"type":      parsed.Type,
		"namespace": parsed.Namespace,
		"name":      parsed.Name,
		"version":   parsed.Version,
	}, nil
}

func (r *resolver) resolveVulnerabilities(ctx context.Context, purl string) (interface{}, error) {
	parsed, err := util.ParsePURL(purl)
	if err != nil {
		return nil, err
	}

	return r.withStore(ctx, func(store enricher.VulnStore) (interface{}, error) {
		cves, err := enricher.Lookup(ctx, store, purl)
		if err != nil {
			return nil, err
		}

		name := parsed.Name
		if parsed.Namespace != "" {
			name = parsed.Namespace + "/" + parsed.Name
		}

		vulnerabilities := make([]map[string]interface{}, 0, len(cves))
		for _, cve := range cves {
			vulnerabilities = append(vulnerabilities, map[string]interface{}{
				"cve_id":      cve,
				"description": enricher.VulnerabilityDescription,
				"source":      enricher.VulnerabilitySourceName,
				"package":     name,
				"version":     parsed.Version,
				"full_purl":   purl,
			})
		}
		return vulnerabilities, nil
	})
}

func (r *resolver) resolveIdentifiers(ctx context.Context, purl string) (interface{}, error) {
	if _, err := util.ParsePURL(purl); err != nil {
		return nil, err
	}
	return r.withStore(ctx, func(store enricher.VulnStore) (interface{}, error) {
		ids, err := store.IdentifiersFor(ctx, purl)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		return ids, nil
	})
}

// CreateSchema generates and returns the configured GraphQL schema for the API.
// Every resolver that needs the vulnerability store opens it with open and closes it when done.
func CreateSchema(open enricher.OpenFunc, logger *zap.Logger) (graphql.Schema, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &resolver{open: open, logger: logger}

	purlArgs := graphql.FieldConfigArgument{
		"purl": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}

	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"purl": &graphql.Field{
				Type: PurlType,
				Args: purlArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return resolvePurl(p.Args["purl"].(string))
				},
			},
			"vulnerabilities": &graphql.Field{
				Type: graphql.NewList(VulnerabilityType),
				Args: purlArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.resolveVulnerabilities(p.Context, p.Args["purl"].(string))
				},
			},
			"identifiers": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Args: purlArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.resolveIdentifiers(p.Context, p.Args["purl"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
