package cypher

import (
	"context"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Record is one row of a query result, keyed by projection name.
type Record = map[string]any

// Querier runs a single query inside an already-open transaction. Both the
// pull executor and action apply functions speak this interface, which keeps
// them testable without a live store.
type Querier interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Config holds the Neo4j connection configuration.
type Config struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LoadConfig reads a YAML connection configuration from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cypher: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cypher: parse config: %w", err)
	}
	if cfg.URI == "" {
		return cfg, fmt.Errorf("cypher: config is missing uri")
	}
	return cfg, nil
}

// Driver wraps the Neo4j driver with transaction helpers and query logging.
type Driver struct {
	drv neo4j.DriverWithContext
	db  string
	log *zap.Logger
}

// Open connects to the store and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	drv, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("cypher: creating driver: %w", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("cypher: connecting to store: %w", err)
	}
	return &Driver{drv: drv, db: cfg.Database, log: logger}, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close(ctx context.Context) error {
	return d.drv.Close(ctx)
}

// ReadTx runs fn inside one read transaction.
func (d *Driver) ReadTx(ctx context.Context, fn func(tx Querier) error) error {
	session := d.drv.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.db,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)
	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(managedTx{tx: tx, log: d.log})
	})
	return err
}

// WriteTx runs fn inside one write transaction. The whole transaction rolls
// back if fn returns an error; there is no partial-commit path.
func (d *Driver) WriteTx(ctx context.Context, fn func(tx Querier) error) error {
	session := d.drv.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.db,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(managedTx{tx: tx, log: d.log})
	})
	return err
}

// managedTx adapts a managed Neo4j transaction to the Querier interface.
type managedTx struct {
	tx  neo4j.ManagedTransaction
	log *zap.Logger
}

// Run implements Querier.
func (t managedTx) Run(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	t.log.Debug("cypher: run",
		zap.String("query", query),
		zap.Int("params", len(params)),
	)
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("cypher: run: %w", err)
	}
	var records []Record
	for result.Next(ctx) {
		records = append(records, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("cypher: result: %w", err)
	}
	return records, nil
}
