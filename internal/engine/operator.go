// Package engine executes pull-based operator trees over columnar
// batches. The root operator is driven until it reports exhaustion;
// every operator pulls one batch at a time from its input, so a
// producer never buffers ahead of its consumer.
//
// Operators take batches by value and return new batches; column
// buffers are never shared mutably across operators.
package engine

import (
	"context"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

// DefaultBatchRows is the row cap per batch a scan produces.
const DefaultBatchRows = 1024

// Params carries statement parameters: positional, named, or both.
type Params struct {
	Positional []columnar.Value
	Named      map[string]columnar.Value
}

// Runtime is the evaluation context threaded through the operator
// tree: the transaction, the catalog view bound to it, parameters, and
// the cancellation context checked at batch boundaries.
type Runtime struct {
	Ctx       context.Context
	Cmd       *txn.Command
	Cat       *catalog.Tx
	Catalog   *catalog.Catalog
	Store     *mvcc.Store
	Params    Params
	Funcs     *Registry
	Virtual   *VirtualRegistry
	BatchRows int
}

// batchRows returns the configured batch size.
func (rt *Runtime) batchRows() int {
	if rt.BatchRows <= 0 {
		return DefaultBatchRows
	}
	return rt.BatchRows
}

// checkCancelled surfaces context cancellation as a timeout diagnostic.
// Execution is cooperative: operators call this once per batch.
func (rt *Runtime) checkCancelled() error {
	if rt.Ctx == nil {
		return nil
	}
	select {
	case <-rt.Ctx.Done():
		return diag.New(diag.TxnTimeout, "statement cancelled: %v", rt.Ctx.Err()).
			WithHelp("raise the statement timeout or reduce the working set")
	default:
		return nil
	}
}

// Operator is one node of the execution tree.
type Operator interface {
	// Init is called once before the first Next.
	Init(rt *Runtime) error

	// Next returns the next batch, or nil when exhausted.
	Next(rt *Runtime) (*columnar.Batch, error)

	// Headers returns the output schema: available after Init for
	// operators that know it up front, after the first Next otherwise.
	Headers() columnar.Headers
}

// Drive pulls the operator to exhaustion, concatenating all batches.
func Drive(rt *Runtime, op Operator) (columnar.Columns, error) {
	if err := op.Init(rt); err != nil {
		return columnar.Columns{}, err
	}
	var (
		out     columnar.Columns
		started bool
	)
	for {
		batch, err := op.Next(rt)
		if err != nil {
			return columnar.Columns{}, err
		}
		if batch == nil {
			break
		}
		if !started {
			out = columnar.NewColumns(batch.Headers())
			started = true
		}
		if err := out.AppendBatch(batch); err != nil {
			return columnar.Columns{}, err
		}
	}
	if !started {
		if h := op.Headers(); h != nil {
			out = columnar.NewColumns(h)
		}
	}
	return out, nil
}
