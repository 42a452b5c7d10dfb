package rag

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

// fakeEmbedder returns a fixed result and counts calls.
type fakeEmbedder struct {
	vecs  [][]float32
	err   error
	calls int
	got   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.got = texts
	return f.vecs, f.err
}

// fakeSession records the last search request.
type fakeSession struct {
	records  []Record
	err      error
	searches int
	last     SearchRequest
}

func (f *fakeSession) Columns(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeSession) Search(_ context.Context, req SearchRequest) ([]Record, error) {
	f.searches++
	f.last = req
	return f.records, f.err
}

func (f *fakeSession) Release() error { return nil }

func TestQueryEmbedder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		emb     *fakeEmbedder
		dims    int
		wantLen int
	}{
		{name: "ok", emb: &fakeEmbedder{vecs: [][]float32{{1, 2, 3}}}, dims: 3, wantLen: 3},
		{name: "no dimension check", emb: &fakeEmbedder{vecs: [][]float32{{1, 2}}}, wantLen: 2},
		{name: "error", emb: &fakeEmbedder{err: errors.New("429 rate limited")}, dims: 3},
		{name: "wrong dimensionality", emb: &fakeEmbedder{vecs: [][]float32{{1, 2}}}, dims: 3},
		{name: "no vectors", emb: &fakeEmbedder{}, dims: 3},
		{name: "empty vector", emb: &fakeEmbedder{vecs: [][]float32{{}}}, dims: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := NewQueryEmbedder(tc.emb, tc.dims)
			if err != nil {
				t.Fatal(err)
			}
			got := q.Embed(context.Background(), "Query: q")
			if len(got) != tc.wantLen {
				t.Errorf("len = %d, want %d", len(got), tc.wantLen)
			}
			if tc.emb.calls != 1 {
				t.Errorf("embed calls = %d, want exactly 1", tc.emb.calls)
			}
		})
	}
}

func TestNewQueryEmbedderRequiresEmbedder(t *testing.T) {
	t.Parallel()
	if _, err := NewQueryEmbedder(nil, 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRetrieverDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(RetrieverConfig{}); err == nil {
		t.Fatal("expected error for empty table")
	}
	r, err := NewRetriever(RetrieverConfig{Table: "sitreps_2024"})
	if err != nil {
		t.Fatal(err)
	}
	if r.TopK() != 5 || r.cfg.EmbeddingColumn != "embedding" || r.cfg.Distance != DistanceCosine {
		t.Errorf("defaults = %+v", r.cfg)
	}
	if r.Table() != "sitreps_2024" {
		t.Errorf("Table() = %q", r.Table())
	}
}

func TestRetrieverSearch_EmptyVectorSkipsStore(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(RetrieverConfig{Table: "sitreps_2024"})
	sess := &fakeSession{records: []Record{{Columns: []string{"a"}, Values: []any{1}}}}

	if got := r.Search(context.Background(), sess, nil, nil, []string{"a"}); len(got) != 0 {
		t.Fatalf("got %d records, want 0", len(got))
	}
	if sess.searches != 0 {
		t.Fatalf("store contacted %d times, want 0", sess.searches)
	}
}

func TestRetrieverSearch_ProjectsKnownColumnsInCatalogOrder(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(RetrieverConfig{Table: "sitreps_2024", TopK: 5})
	sess := &fakeSession{}
	catalog := []string{"timestamp", "description", "severity"}

	r.Search(context.Background(), sess, []float32{1}, []string{"description", "timestamp", "bogus"}, catalog)

	if want := []string{"timestamp", "description"}; !reflect.DeepEqual(sess.last.Columns, want) {
		t.Errorf("projection = %v, want %v", sess.last.Columns, want)
	}
	if sess.last.Limit != 5 || sess.last.Table != "sitreps_2024" || sess.last.EmbeddingColumn != "embedding" {
		t.Errorf("request = %+v", sess.last)
	}
}

func TestRetrieverSearch_AllUnknownProjectsStar(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(RetrieverConfig{Table: "t"})
	sess := &fakeSession{}
	r.Search(context.Background(), sess, []float32{1}, []string{"nope", "embedding"}, []string{"a", "embedding"})

	if sess.last.Columns != nil {
		t.Errorf("projection = %v, want nil (every column)", sess.last.Columns)
	}
}

func TestRetrieverSearch_SortsStablyAndCaps(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(RetrieverConfig{Table: "t", TopK: 3})
	sess := &fakeSession{records: []Record{
		{Columns: []string{"id"}, Values: []any{"a"}, Distance: 0.4},
		{Columns: []string{"id"}, Values: []any{"b"}, Distance: 0.1},
		{Columns: []string{"id"}, Values: []any{"c"}, Distance: 0.4},
		{Columns: []string{"id"}, Values: []any{"d"}, Distance: 0.2},
		{Columns: []string{"id"}, Values: []any{"e"}, Distance: 0.9},
	}}

	got := r.Search(context.Background(), sess, []float32{1}, nil, []string{"id"})
	var ids []any
	for _, rec := range got {
		ids = append(ids, rec.Values[0])
	}
	if want := []any{"b", "d", "a"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatalf("records not in non-decreasing distance order: %v", got)
		}
	}
}

func TestRetrieverSearch_StoreErrorIsNoResults(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(RetrieverConfig{Table: "t"})
	sess := &fakeSession{err: errors.New("relation does not exist")}
	if got := r.Search(context.Background(), sess, []float32{1}, nil, []string{"a"}); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestProject(t *testing.T) {
	t.Parallel()

	catalog := []string{"timestamp", "description", "severity", "embedding"}
	tests := []struct {
		name        string
		requested   []string
		wantKept    []string
		wantDropped []string
	}{
		{name: "empty", requested: nil},
		{name: "subset", requested: []string{"severity", "timestamp"}, wantKept: []string{"timestamp", "severity"}},
		{name: "duplicates", requested: []string{"severity", "severity"}, wantKept: []string{"severity"}},
		{name: "unknown", requested: []string{"x", "x", "severity"}, wantKept: []string{"severity"}, wantDropped: []string{"x"}},
		{name: "embedding never projected", requested: []string{"embedding", ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			kept, dropped := Project(tc.requested, catalog, "embedding")
			if !reflect.DeepEqual(kept, tc.wantKept) {
				t.Errorf("kept = %v, want %v", kept, tc.wantKept)
			}
			if !reflect.DeepEqual(dropped, tc.wantDropped) {
				t.Errorf("dropped = %v, want %v", dropped, tc.wantDropped)
			}
		})
	}
}

func TestRecordMarshalJSONKeepsColumnOrder(t *testing.T) {
	t.Parallel()

	rec := Record{
		Columns:  []string{"timestamp", "description", "severity"},
		Values:   []any{"2024-05-01", "ransomware", int64(4)},
		Distance: 0.2,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":"2024-05-01","description":"ransomware","severity":4}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}

	empty, _ := json.Marshal(Record{})
	if string(empty) != `{}` {
		t.Fatalf("empty record json = %s", empty)
	}
}

func TestParseDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Distance
		op      string
		wantErr bool
	}{
		{in: "", want: DistanceCosine, op: "<=>"},
		{in: "Cosine", want: DistanceCosine, op: "<=>"},
		{in: "l2", want: DistanceL2, op: "<->"},
		{in: " inner ", want: DistanceInner, op: "<#>"},
		{in: "manhattan", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDistance(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDistance(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want || got.Operator() != tc.op {
			t.Errorf("ParseDistance(%q) = %q (%s), %v", tc.in, got, got.Operator(), err)
		}
	}
}
