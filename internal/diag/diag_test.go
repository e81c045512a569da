package diag

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := New(TxnConflict, "transaction conflict on key %q", "user/1")
	if CodeOf(err) != TxnConflict {
		t.Errorf("expected TXN_001, got %s", CodeOf(err))
	}
	if !Is(err, TxnConflict) {
		t.Error("Is should match the top-level code")
	}
}

func TestCauseChain(t *testing.T) {
	inner := New(CastFailure, "cannot cast utf8 to int4")
	outer := New(QuerySchemaMismatch, "insert rejected").WithCause(inner)

	if !Is(outer, CastFailure) {
		t.Error("Is should walk the cause chain")
	}
	if CodeOf(outer) != QuerySchemaMismatch {
		t.Errorf("top code should win, got %s", CodeOf(outer))
	}
}

func TestWireShape(t *testing.T) {
	d := New(CatalogNotFound, "table not found").
		WithFragment(Fragment{Text: "c.missing", Line: 1, Column: 6}).
		WithLabel("unknown table").
		WithHelp("create the table first").
		WithNote("namespace c exists")

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"code", "message", "fragment", "label", "help", "notes"} {
		if _, ok := back[field]; !ok {
			t.Errorf("wire format missing %q", field)
		}
	}
}

func TestRenderCaret(t *testing.T) {
	d := New(QueryParse, "unexpected token").
		WithFragment(Fragment{Text: "sortt", Line: 1, Column: 11}).
		WithLabel("did you mean sort?").
		WithStatement("from c.e | sortt id")

	out := DefaultRenderer{}.Render(d)
	if !strings.Contains(out, "line 1, column 11") {
		t.Errorf("missing location: %s", out)
	}
	if !strings.Contains(out, "~~~~~") {
		t.Errorf("missing caret underline: %s", out)
	}
}

func TestRenderNested(t *testing.T) {
	d := New(TxnAborted, "statement failed").
		WithCause(New(SequenceExhausted, "int4 sequence exhausted"))
	out := DefaultRenderer{}.Render(d)
	if !strings.Contains(out, "Caused by:") || !strings.Contains(out, "SEQ_001") {
		t.Errorf("nested cause not rendered: %s", out)
	}
}
