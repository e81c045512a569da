package importer

import (
	"context"
	"strings"
	"testing"

	flowdb "github.com/SimonWaldherr/flowDB"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

var root = flowdb.Identity{Principal: "root"}

func openDB(t *testing.T) *flowdb.DB {
	t.Helper()
	db, err := flowdb.Open(flowdb.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.CommandAs(context.Background(), root, "create namespace imp", flowdb.Params{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInferColumnTypes(t *testing.T) {
	sample := [][]string{
		{"1", "2.5", "true", "hello", "2024-01-01"},
		{"2", "3", "false", "world", "2024-01-02"},
		{"", "4.1", "true", "", "null"},
	}
	types := inferColumnTypes(sample, 5, Options{}.withDefaults())
	want := []columnar.Type{
		columnar.TypeInt4,
		columnar.TypeFloat8,
		columnar.TypeBool,
		columnar.TypeUtf8,
		columnar.TypeDateTime,
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("column %d = %s, want %s", i, types[i], w)
		}
	}
}

func TestSanitizeColumnName(t *testing.T) {
	cases := map[string]string{
		"First Name": "first_name",
		"CAPS":       "caps",
		"x-y.z":      "x_y_z",
	}
	for in, want := range cases {
		if got := sanitizeColumnName(in, 0); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeColumnName("9lives", 3); got != "col_3" {
		t.Errorf("leading digit = %q", got)
	}
}

func TestImportCSV(t *testing.T) {
	db := openDB(t)
	csvData := strings.Join([]string{
		"id,name,score,active",
		"1,ada,9.5,true",
		"2,bob,7.25,false",
		"3,cy,,true",
	}, "\n")

	res, err := ImportCSV(context.Background(), db, root, strings.NewReader(csvData), Options{
		Namespace:   "imp",
		Table:       "people",
		CreateTable: true,
		HasHeader:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 3 || !res.Created {
		t.Fatalf("result = %+v", res)
	}

	out, err := db.QueryAs(context.Background(), root, "from imp.people sort id", flowdb.Params{})
	if err != nil {
		t.Fatal(err)
	}
	rows := out[0]
	if rows.RowCount() != 3 {
		t.Fatalf("rows = %d", rows.RowCount())
	}
	if rows.Column("name").Data.Str(0) != "ada" {
		t.Errorf("row 0 = %v", rows.Row(0))
	}
	if rows.Column("score").Data.Get(2).Defined() {
		t.Error("empty score must import as undefined")
	}
}

func TestImportCSVBatches(t *testing.T) {
	db := openDB(t)
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 25; i++ {
		b.WriteString("1\n")
	}
	res, err := ImportCSV(context.Background(), db, root, strings.NewReader(b.String()), Options{
		Namespace:   "imp",
		Table:       "batched",
		CreateTable: true,
		HasHeader:   true,
		BatchRows:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 25 {
		t.Errorf("rows = %d", res.Rows)
	}
}

func TestImportJSONL(t *testing.T) {
	db := openDB(t)
	data := strings.Join([]string{
		`{"id": 1, "name": "ada", "score": 9.5}`,
		`{"id": 2, "name": "bob", "score": 7}`,
		`{"id": 3, "name": null}`,
	}, "\n")

	res, err := ImportJSONL(context.Background(), db, root, strings.NewReader(data), Options{
		Namespace:   "imp",
		Table:       "events",
		CreateTable: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 3 {
		t.Fatalf("rows = %d", res.Rows)
	}

	out, err := db.QueryAs(context.Background(), root, "from imp.events sort id", flowdb.Params{})
	if err != nil {
		t.Fatal(err)
	}
	rows := out[0]
	if rows.Column("id").Data.Get(0).Int != 1 {
		t.Errorf("row 0 = %v", rows.Row(0))
	}
	if rows.Column("name").Data.Get(2).Defined() {
		t.Error("null name must import as undefined")
	}
}
