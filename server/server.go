// Package server exposes the SBOM pipeline over HTTP: lockfile scanning, re-enrichment of
// existing documents and a GraphQL endpoint for purl lookups.
package server

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/sbom-enricher/enricher"
	gqlschema "github.com/ortelius/sbom-enricher/graphql"
	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/report"
	"github.com/ortelius/sbom-enricher/sbom"
	"github.com/ortelius/sbom-enricher/scanner"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var contentTypes = map[string]string{
	report.FormatJSON:  fiber.MIMEApplicationJSONCharsetUTF8,
	report.FormatXML:   fiber.MIMEApplicationXMLCharsetUTF8,
	report.FormatCSV:   "text/csv; charset=utf-8",
	report.FormatTable: fiber.MIMETextPlainCharsetUTF8,
}

// Server holds the fiber app and the pipeline it serves
type Server struct {
	app     *fiber.App
	scanner *scanner.Scanner
	logger  *zap.Logger
}

// New creates the fiber app with its middleware and routes.
// open is used by the GraphQL resolvers; sc must be configured with an enricher for
// enrichment requests to succeed.
func New(sc *scanner.Scanner, open enricher.OpenFunc, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	schema, err := gqlschema.CreateSchema(open, log)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "sbom-enricher API v1.0",
		BodyLimit:             50 * 1024 * 1024, // 50MB limit for lockfile and SBOM uploads
		ReadTimeout:           time.Second * 60,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	s := &Server{app: app, scanner: sc, logger: log}

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
		})
	})

	api := app.Group("/api/v1")
	api.Post("/sbom/npm", s.PostNpmLockfile)
	api.Post("/enrich", s.PostEnrich)
	api.Post("/graphql", GraphQLHandler(schema, log))

	return s, nil
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", addr))
		s.logger.Info("GraphQL endpoint available at /api/v1/graphql")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down server")
	return multierr.Append(s.app.ShutdownWithContext(shutdownCtx), <-errCh)
}

// PostNpmLockfile builds an SBOM from the package-lock.json in the request body.
// Query parameters: enrich=false skips the vulnerability lookup, format selects the output.
func (s *Server) PostNpmLockfile(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(model.ScanResponse{
			Success: false,
			Message: "lockfile content is required",
		})
	}

	enrich := strings.ToLower(c.Query("enrich")) != "false"
	doc, err := s.scanner.ScanLockfileBytes(c.UserContext(), c.Body(), "", enrich)
	return s.respond(c, doc, err)
}

// PostEnrich attaches vulnerabilities to the CycloneDX JSON document in the request body
func (s *Server) PostEnrich(c *fiber.Ctx) error {
	doc, err := sbom.ReadJSON(bytes.NewReader(c.Body()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ScanResponse{
			Success: false,
			Message: "Invalid SBOM: " + err.Error(),
		})
	}

	err = s.scanner.Enrich(c.UserContext(), doc)
	return s.respond(c, doc, err)
}

func (s *Server) respond(c *fiber.Ctx, doc *model.SBOM, err error) error {
	if err != nil {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		if errors.Is(err, enricher.ErrStoreUnavailable) {
			// the document is still valid without vulnerabilities
			return c.Status(fiber.StatusServiceUnavailable).JSON(model.ScanResponse{
				Success: false,
				Message: err.Error(),
				SBOM:    doc,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(model.ScanResponse{
			Success: false,
			Message: err.Error(),
		})
	}

	format := strings.ToLower(c.Query("format", report.FormatJSON))
	if format == report.FormatJSON {
		return c.JSON(model.ScanResponse{
			Success: true,
			Message: "SBOM generated",
			SBOM:    doc,
		})
	}

	r, err := report.Get(format)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ScanResponse{
			Success: false,
			Message: err.Error(),
		})
	}
	var buf bytes.Buffer
	if err := r.Write(&buf, doc); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(model.ScanResponse{
			Success: false,
			Message: err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, contentTypes[format])
	return c.Send(buf.Bytes())
}

// GraphQLHandler handles GraphQL requests
func GraphQLHandler(schema graphql.Schema, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var params struct {
			Query         string                 `json:"query"`
			OperationName string                 `json:"operationName"`
			Variables     map[string]interface{} `json:"variables"`
		}

		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"errors": []map[string]interface{}{
					{
						"message": "Invalid request body",
					},
				},
			})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  params.Query,
			VariableValues: params.Variables,
			OperationName:  params.OperationName,
			Context:        c.UserContext(),
		})

		if len(result.Errors) > 0 {
			log.Warn("GraphQL errors", zap.Any("errors", result.Errors))
		}

		return c.JSON(result)
	}
}
