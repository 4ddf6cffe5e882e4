package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/nao1215/yieldpage/internal/model"
)

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// GraphSink stores the link graph in Neo4j: one (:Page {url}) node per record
// and a LINKS_TO relationship to every outgoing link.
type GraphSink struct {
	driver DriverSessioner
	logger *slog.Logger
}

// NewGraphSink connects to the Neo4j server at uri.
func NewGraphSink(ctx context.Context, uri, user, password string, logger *slog.Logger) (*GraphSink, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j at %s: %w", uri, err)
	}
	return NewGraphSinkWithDriver(&neo4jDriver{driver: driver}, logger), nil
}

// NewGraphSinkWithDriver builds a sink on a custom driver (tests).
func NewGraphSinkWithDriver(driver DriverSessioner, logger *slog.Logger) *GraphSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphSink{driver: driver, logger: logger}
}

// Emit implements Sink.
func (g *GraphSink) Emit(ctx context.Context, rec *model.PageRecord) error {
	query, params := buildPageQuery(rec)

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			g.logger.Warn("neo4j session close failed", "error", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to write page %s to neo4j: %w", rec.URL, err)
	}
	return nil
}

// Close closes the driver.
func (g *GraphSink) Close() error {
	return g.driver.Close(context.Background())
}

func buildPageQuery(rec *model.PageRecord) (string, map[string]any) {
	query := "MERGE (p:Page {url: $url}) " +
		"SET p.run_id = $run_id, p.depth = $depth, p.outcome = $outcome, " +
		"p.status_code = $status_code, p.title = $title, p.content_hash = $content_hash, " +
		"p.error = $error, p.fetched_at = $fetched_at " +
		"WITH p UNWIND $links AS link " +
		"MERGE (t:Page {url: link}) " +
		"MERGE (p)-[r:LINKS_TO]->(t) " +
		"SET r.run_id = $run_id"

	links := rec.Links
	if links == nil {
		links = []string{}
	}
	params := map[string]any{
		"url":          rec.URL,
		"run_id":       rec.RunID,
		"depth":        rec.Depth,
		"outcome":      rec.Outcome.String(),
		"status_code":  rec.StatusCode,
		"title":        rec.Title,
		"content_hash": rec.ContentHash,
		"error":        rec.Error,
		"fetched_at":   rec.FetchedAt.UTC(),
		"links":        links,
	}
	return query, params
}
