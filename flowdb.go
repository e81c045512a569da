// Package flowdb is an embeddable relational analytic database with a
// dataflow-oriented query language.
//
// The core is a multi-version concurrency control (MVCC) key-value
// store, an optimistic transaction manager with serializable-snapshot
// isolation, a materialized catalog with time-travel lookups, a
// change-data-capture log, and a columnar execution engine consuming
// those layers through a pull-based operator pipeline.
//
// # Basic Usage
//
//	db, _ := flowdb.Open(flowdb.Options{})
//	defer db.Close()
//
//	ctx := context.Background()
//	root := flowdb.Identity{Principal: "root"}
//
//	db.CommandAs(ctx, root, `create namespace c`, flowdb.Params{})
//	db.CommandAs(ctx, root, `create table c.e {id: int4, name: utf8}`, flowdb.Params{})
//	db.CommandAs(ctx, root, `from [{id: 1, name: "A"}, {id: 2, name: "B"}] insert c.e`, flowdb.Params{})
//
//	results, _ := db.QueryAs(ctx, root, `from c.e sort id`, flowdb.Params{})
//
// # Persistence
//
// Pass a storage mode to keep data across restarts; restart recovers
// the database to the last committed version:
//
//	db, _ := flowdb.Open(flowdb.Options{Mode: "sqlite", Path: "flow.db"})
//
// # Change Data Capture
//
// Subscribers receive post-commit events in commit order:
//
//	sub := db.Subscribe("replicator", 256)
//	for e := range sub.C { ... }
package flowdb

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/config"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/engine"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/log"
	"github.com/SimonWaldherr/flowDB/internal/metrics"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
	"github.com/SimonWaldherr/flowDB/internal/rql"
	"github.com/SimonWaldherr/flowDB/internal/storage"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

// Re-exports for callers that only import the root package.
type (
	// Columns is a named, row-aligned result set.
	Columns = columnar.Columns
	// Value is a dynamically typed scalar.
	Value = columnar.Value
	// Params carries positional and named statement parameters.
	Params = engine.Params
	// Diagnostic is the structured error every call returns.
	Diagnostic = diag.Diagnostic
	// Subscription is an ordered CDC event stream.
	Subscription = txn.Subscription
	// PostCommit is one CDC event.
	PostCommit = txn.PostCommit
)

// Identity carries the authorization principal of a session.
type Identity struct {
	Principal string
}

// Options configures Open.
type Options struct {
	// Mode is memory (default), sqlite, or bolt.
	Mode string
	// Path is the database file for persistent modes.
	Path string
	// BatchSize caps storage range pages.
	BatchSize int
	// StatementTimeout bounds each statement's wall clock; zero means
	// no timeout. Cancellation is observed at batch boundaries.
	StatementTimeout time.Duration
	// Logger overrides the default (disabled) logger.
	Logger *log.Logger
}

// DB is one database instance.
type DB struct {
	backend storage.Backend
	store   *mvcc.Store
	manager *txn.Manager
	catalog *catalog.Catalog
	funcs   *engine.Registry
	virtual *engine.VirtualRegistry
	stats   *metrics.Set
	logger  log.Logger
	timeout time.Duration
}

// Open creates or reopens a database.
func Open(opts Options) (*DB, error) {
	mode, err := storage.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(storage.Config{Mode: mode, Path: opts.Path, BatchSize: opts.BatchSize})
	if err != nil {
		return nil, err
	}

	logger := log.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	stats := metrics.NewSet()
	store := mvcc.NewStore(backend)
	manager := txn.NewManager(store, stats)
	if err := manager.Recover(); err != nil {
		backend.Close()
		return nil, err
	}
	cat := catalog.New(manager)
	if err := cat.Materialize(); err != nil {
		manager.Close()
		backend.Close()
		return nil, err
	}

	db := &DB{
		backend: backend,
		store:   store,
		manager: manager,
		catalog: cat,
		funcs:   engine.NewRegistry(),
		virtual: engine.NewVirtualRegistry(),
		stats:   stats,
		logger:  log.Component(logger, "flowdb"),
		timeout: opts.StatementTimeout,
	}
	db.logger.Info().
		Str("mode", mode.String()).
		Uint64("version", manager.LastCommitted()).
		Msg("database open")
	return db, nil
}

// OpenFromConfig opens a database from a loaded configuration.
func OpenFromConfig(cfg config.Config, logger log.Logger) (*DB, error) {
	return Open(Options{
		Mode:             cfg.Storage.Mode,
		Path:             cfg.Storage.Path,
		BatchSize:        cfg.Storage.BatchSize,
		StatementTimeout: time.Duration(cfg.Server.StatementTimeoutMs) * time.Millisecond,
		Logger:           &logger,
	})
}

// Close shuts the event bus down and closes storage.
func (db *DB) Close() error {
	db.manager.Close()
	return db.backend.Close()
}

// MetricsRegistry exposes the Prometheus registry for scraping.
func (db *DB) MetricsRegistry() *prometheus.Registry { return db.stats.Registry() }

// Subscribe registers a CDC subscriber with a bounded queue. A
// subscriber that falls behind is dropped with a fatal diagnostic.
func (db *DB) Subscribe(name string, buffer int) *Subscription {
	return db.manager.Bus().Subscribe(name, buffer)
}

// Functions exposes the scalar function registry.
func (db *DB) Functions() *engine.Registry { return db.funcs }

// RegisterVirtualTable adds a virtual table to the system namespace.
func (db *DB) RegisterVirtualTable(t engine.VirtualTable) {
	db.virtual.Register(t)
}

// LastCommitted returns the current last committed version.
func (db *DB) LastCommitted() uint64 { return db.manager.LastCommitted() }

// QueryAs executes read-only statements at a snapshot and returns one
// result set per statement. Write stages and DDL are rejected.
func (db *DB) QueryAs(ctx context.Context, identity Identity, statement string, params Params) ([]Columns, error) {
	return db.run(ctx, identity, statement, params, true)
}

// CommandAs executes statements inside one command transaction; all
// statements commit atomically or not at all.
func (db *DB) CommandAs(ctx context.Context, identity Identity, statements string, params Params) ([]Columns, error) {
	return db.run(ctx, identity, statements, params, false)
}

func (db *DB) run(ctx context.Context, identity Identity, src string, params Params, readOnly bool) ([]Columns, error) {
	if identity.Principal == "" {
		return nil, errMissingIdentity()
	}
	started := time.Now()
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	stmts, err := rql.Parse(src)
	if err != nil {
		return nil, err
	}

	cmd := db.manager.BeginCommand()
	cat := db.catalog.Begin(cmd)
	rt := &engine.Runtime{
		Ctx:     ctx,
		Cmd:     cmd,
		Cat:     cat,
		Catalog: db.catalog,
		Store:   db.store,
		Params:  params,
		Funcs:   db.funcs,
		Virtual: db.virtual,
	}

	var results []Columns
	for _, stmt := range stmts {
		out, err := db.runStatement(rt, stmt, readOnly)
		if err != nil {
			cmd.Rollback()
			cat.Rollback()
			return nil, diag.From(err).WithStatement(src)
		}
		results = append(results, out)
	}

	if readOnly {
		cmd.Rollback()
		cat.Rollback()
	} else {
		version, err := cmd.Commit()
		if err != nil {
			cat.Rollback()
			return nil, diag.From(err).WithStatement(src)
		}
		cat.Commit(version)
	}
	db.stats.QueryLatency.Observe(time.Since(started).Seconds())
	return results, nil
}

func (db *DB) runStatement(rt *engine.Runtime, stmt rql.Statement, readOnly bool) (Columns, error) {
	switch s := stmt.(type) {
	case *rql.CreateNamespaceStmt:
		if readOnly {
			return Columns{}, errReadOnly("create namespace")
		}
		ns, err := rt.Cat.CreateNamespace(s.Name)
		if err != nil {
			return Columns{}, err
		}
		return ddlResult("created", fmt.Sprintf("namespace %s", ns.Name)), nil

	case *rql.CreateTableStmt:
		if readOnly {
			return Columns{}, errReadOnly("create table")
		}
		ns, err := rt.Cat.ResolveNamespace(s.Namespace)
		if err != nil {
			return Columns{}, err
		}
		if ns == nil {
			return Columns{}, diag.New(diag.CatalogUnresolvedName, "unknown namespace %q", s.Namespace)
		}
		cols := make([]catalog.ColumnDef, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = catalog.ColumnDef{Name: c.Name, Type: c.Type, AutoIncr: c.Auto}
		}
		table, err := rt.Cat.CreateTable(ns.ID, s.Name, cols)
		if err != nil {
			return Columns{}, err
		}
		return ddlResult("created", fmt.Sprintf("table %s.%s", s.Namespace, table.Name)), nil

	case *rql.CreateViewStmt:
		if readOnly {
			return Columns{}, errReadOnly("create view")
		}
		ns, err := rt.Cat.ResolveNamespace(s.Namespace)
		if err != nil {
			return Columns{}, err
		}
		if ns == nil {
			return Columns{}, diag.New(diag.CatalogUnresolvedName, "unknown namespace %q", s.Namespace)
		}
		id, err := db.catalog.AllocateID()
		if err != nil {
			return Columns{}, err
		}
		view := &catalog.ViewDef{ID: id, Namespace: ns.ID, Name: s.Name, Query: s.Query}
		if err := rt.Cat.Create(view); err != nil {
			return Columns{}, err
		}
		return ddlResult("created", fmt.Sprintf("view %s.%s", s.Namespace, s.Name)), nil

	case *rql.DropStmt:
		if readOnly {
			return Columns{}, errReadOnly("drop")
		}
		return db.runDrop(rt, s)

	case *rql.PipelineStmt:
		op, err := rql.Bind(rt, s)
		if err != nil {
			return Columns{}, err
		}
		if readOnly && isWriteOperator(op) {
			return Columns{}, errReadOnly("write pipeline")
		}
		return engine.Drive(rt, op)
	}
	return Columns{}, diag.New(diag.Internal, "unhandled statement %T", stmt)
}

func (db *DB) runDrop(rt *engine.Runtime, s *rql.DropStmt) (Columns, error) {
	if s.Kind == "namespace" {
		ns, err := rt.Cat.ResolveNamespace(s.Name)
		if err != nil {
			return Columns{}, err
		}
		if ns == nil {
			return Columns{}, diag.New(diag.CatalogNotFound, "unknown namespace %q", s.Name)
		}
		if err := rt.Cat.Delete(ns); err != nil {
			return Columns{}, err
		}
		return ddlResult("dropped", "namespace "+s.Name), nil
	}

	ns, err := rt.Cat.ResolveNamespace(s.Namespace)
	if err != nil {
		return Columns{}, err
	}
	if ns == nil {
		return Columns{}, diag.New(diag.CatalogUnresolvedName, "unknown namespace %q", s.Namespace)
	}
	table, err := rt.Cat.ResolveTable(ns.ID, s.Name)
	if err != nil {
		return Columns{}, err
	}
	if table == nil {
		return Columns{}, diag.New(diag.CatalogNotFound, "unknown table %q.%q", s.Namespace, s.Name)
	}
	if err := rt.Cat.Delete(table); err != nil {
		return Columns{}, err
	}
	// Physically drop the table's rows; Drop deltas never reach CDC.
	start, end := keycode.RowPrefix(table.ID)
	it := rt.Cmd.Range(start, end)
	for it.Next() {
		if err := rt.Cmd.Drop(it.Entry().Key); err != nil {
			return Columns{}, err
		}
	}
	if err := it.Err(); err != nil {
		return Columns{}, err
	}
	return ddlResult("dropped", fmt.Sprintf("table %s.%s", s.Namespace, s.Name)), nil
}

func errMissingIdentity() error {
	return diag.New(diag.QueryPermissionDenied, "missing identity principal").
		WithHelp("authenticate before issuing statements")
}

func errReadOnly(what string) error {
	return diag.New(diag.QueryPermissionDenied, "%s is not allowed in a query", what).
		WithHelp("use the command endpoint for writes and DDL")
}

func isWriteOperator(op engine.Operator) bool {
	switch op.(type) {
	case *engine.Insert, *engine.Update, *engine.Delete:
		return true
	}
	return false
}

func ddlResult(column, value string) Columns {
	out := columnar.NewColumns(columnar.Headers{{Name: column, Type: columnar.TypeUtf8}})
	out.AppendRow(columnar.NewUtf8(value))
	return out
}
