package rql

import (
	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/engine"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
)

// SystemNamespace is the reserved namespace of virtual tables.
const SystemNamespace = "system"

// Bind resolves a parsed pipeline against the catalog at the
// transaction's read version and builds the operator tree.
func Bind(rt *engine.Runtime, stmt *PipelineStmt) (engine.Operator, error) {
	if len(stmt.Stages) == 0 {
		return nil, diag.New(diag.QueryParse, "empty pipeline")
	}
	var (
		root      engine.Operator
		lastTable string
	)
	for i, stage := range stmt.Stages {
		switch s := stage.(type) {
		case *FromTable:
			if i != 0 {
				return nil, diag.New(diag.QueryParse, "from must open the pipeline")
			}
			if s.Namespace == SystemNamespace {
				root = &engine.VirtualScan{Name: s.Name}
				lastTable = s.Name
				continue
			}
			source, err := bindSource(rt, s.Namespace, s.Name)
			if err != nil {
				return nil, err
			}
			root = source
			lastTable = s.Name

		case *FromInline:
			if i != 0 {
				return nil, diag.New(diag.QueryParse, "inline rows must open the pipeline")
			}
			root = &engine.InlineData{Rows: s.Rows}

		case *FilterStage:
			root = &engine.Filter{Input: root, Predicates: s.Predicates}

		case *MapStage:
			root = &engine.Map{Input: root, Exprs: s.Exprs}

		case *ExtendStage:
			root = &engine.Extend{Input: root, Exprs: s.Exprs}

		case *SortStage:
			root = &engine.Sort{Input: root, Keys: s.Keys}

		case *TakeStage:
			root = &engine.Take{Input: root, N: s.N}

		case *DistinctStage:
			root = &engine.Distinct{Input: root, Columns: s.Columns}

		case *AggregateStage:
			root = &engine.Aggregate{Input: root, Keys: s.Keys, Aggs: s.Aggs}

		case *JoinStage:
			sub, err := Bind(rt, s.Sub)
			if err != nil {
				return nil, err
			}
			alias := s.Alias
			if alias == "" {
				if ft, ok := s.Sub.Stages[0].(*FromTable); ok {
					alias = ft.Name
				} else {
					alias = "right"
				}
			}
			root = &engine.Join{
				Kind:       s.Kind,
				Left:       root,
				Right:      sub,
				Predicates: s.Predicates,
				LeftAlias:  lastTable,
				RightAlias: alias,
			}

		case *SinkStage:
			table, err := resolveTable(rt, s.Namespace, s.Name)
			if err != nil {
				return nil, err
			}
			switch s.Kind {
			case "insert":
				root = &engine.Insert{Input: root, Table: table}
			case "update":
				root = &engine.Update{Input: root, Table: table}
			case "delete":
				root = &engine.Delete{Input: root, Table: table}
			}

		default:
			return nil, diag.New(diag.Internal, "unhandled stage %T", stage)
		}
	}
	return root, nil
}

// bindSource resolves a scan source: a base table, falling back to a
// view whose stored pipeline is parsed and bound in place.
func bindSource(rt *engine.Runtime, nsName, name string) (engine.Operator, error) {
	ns, err := namespaceOf(rt, nsName)
	if err != nil {
		return nil, err
	}
	table, err := rt.Cat.ResolveTable(ns.ID, name)
	if err != nil {
		return nil, err
	}
	if table != nil {
		return &engine.TableScan{Table: table}, nil
	}
	view, err := rt.Cat.FindByName(keycode.KindView, ns.ID, name)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, diag.New(diag.CatalogNotFound, "unknown table %q in namespace %q", name, nsName).
			WithLabel("no such table")
	}
	def := view.(*catalog.ViewDef)
	stmts, err := Parse(def.Query)
	if err != nil {
		return nil, diag.New(diag.Internal, "stored view %q does not parse", name).WithCause(err)
	}
	pipeline, ok := stmts[0].(*PipelineStmt)
	if !ok || len(stmts) != 1 {
		return nil, diag.New(diag.Internal, "stored view %q is not a single pipeline", name)
	}
	return Bind(rt, pipeline)
}

func namespaceOf(rt *engine.Runtime, nsName string) (*catalog.NamespaceDef, error) {
	ns, err := rt.Cat.ResolveNamespace(nsName)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, diag.New(diag.CatalogUnresolvedName, "unknown namespace %q", nsName).
			WithLabel("no such namespace").
			WithHelp("create it with: create namespace " + nsName)
	}
	return ns, nil
}

func resolveTable(rt *engine.Runtime, nsName, name string) (*catalog.TableDef, error) {
	ns, err := namespaceOf(rt, nsName)
	if err != nil {
		return nil, err
	}
	table, err := rt.Cat.ResolveTable(ns.ID, name)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, diag.New(diag.CatalogNotFound, "unknown table %q in namespace %q", name, nsName).
			WithLabel("no such table")
	}
	return table, nil
}
