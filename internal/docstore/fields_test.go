package docstore

import (
	"testing"
	"time"
)

func TestFieldsAccessors(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := Fields{
		"name":    "Ana",
		"count":   int64(7),
		"float":   3.0,
		"active":  true,
		"when":    ts,
		"whenStr": ts.Format(time.RFC3339),
		"list":    []any{"a", 1, "b"},
	}
	if f.String("name") != "Ana" || f.String("count") != "7" {
		t.Fatalf("unexpected string conversions: %q %q", f.String("name"), f.String("count"))
	}
	if f.Int64("float") != 3 || f.Int("count") != 7 || f.Int64("missing") != 0 {
		t.Fatalf("unexpected numeric conversions")
	}
	if !f.Bool("active") || f.Bool("name") {
		t.Fatalf("unexpected bool conversions")
	}
	if !f.Time("when").Equal(ts) || !f.Time("whenStr").Equal(ts) || !f.Time("name").IsZero() {
		t.Fatalf("unexpected time conversions")
	}
	if got := f.Strings("list"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected list conversion: %v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Fields{"nested": map[string]any{"k": "v"}, "list": []string{"x"}}
	c := orig.Clone()
	c["nested"].(map[string]any)["k"] = "changed"
	c["list"].([]string)[0] = "y"
	if orig["nested"].(map[string]any)["k"] != "v" || orig["list"].([]string)[0] != "x" {
		t.Fatalf("clone shares state with original: %v", orig)
	}
}

func TestPaths(t *testing.T) {
	cases := []struct {
		path string
		doc  bool
		coll bool
	}{
		{"citas", false, true},
		{"citas/abc", true, false},
		{"chats/c1/messages", false, true},
		{"chats/c1/messages/m1", true, false},
		{"", false, false},
		{"/citas", false, false},
		{"citas//abc", false, false},
	}
	for _, tc := range cases {
		if IsDocumentPath(tc.path) != tc.doc || IsCollectionPath(tc.path) != tc.coll {
			t.Errorf("path %q: doc=%v coll=%v", tc.path, IsDocumentPath(tc.path), IsCollectionPath(tc.path))
		}
	}
	col, id, err := Split("chats/c1/messages/m1")
	if err != nil || col != "chats/c1/messages" || id != "m1" {
		t.Fatalf("unexpected split: %s %s %v", col, id, err)
	}
}
