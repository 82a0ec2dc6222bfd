package vectorstore

import (
	"context"
	"errors"
	"testing"
)

func testStore(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory(2)
	ctx := context.Background()
	// Unit vectors at known angles to the x axis.
	add := func(id string, v []float32) {
		if err := m.Add(ctx, id, v); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	add("x", []float32{1, 0})
	add("y", []float32{0, 1})
	add("neg", []float32{-1, 0})
	add("diag", []float32{1, 1})
	return m
}

func TestSimilarOrdering(t *testing.T) {
	m := testStore(t)
	results, err := m.Similar(context.Background(), []float32{1, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	// cosine: x=1, diag=0.707, y=0, neg=-1 -> scores 2, 1.707, 1, 0.
	wantOrder := []string{"x", "diag", "y", "neg"}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Fatalf("result %d = %s, want %s (all: %v)", i, results[i].ID, want, results)
		}
	}
	if results[0].Score != 2 {
		t.Errorf("identical vector score = %v, want 2", results[0].Score)
	}
	if results[3].Score != 0 {
		t.Errorf("opposite vector score = %v, want 0", results[3].Score)
	}
}

func TestSimilarTieBreaksByID(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	m.Add(ctx, "b", []float32{1, 0})
	m.Add(ctx, "a", []float32{2, 0}) // same direction, same cosine
	results, err := m.Similar(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("tie break order = %v, want a then b", results)
	}
}

func TestSimilarFilter(t *testing.T) {
	m := testStore(t)
	results, err := m.Similar(context.Background(), []float32{1, 0}, 4, WithIDFilter([]string{"y", "neg"}))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "y" || results[1].ID != "neg" {
		t.Errorf("filtered results = %v, want y then neg", results)
	}
}

func TestDimensionMismatch(t *testing.T) {
	m := testStore(t)
	if _, err := m.Similar(context.Background(), []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Similar = %v, want ErrDimensionMismatch", err)
	}
	if err := m.Add(context.Background(), "bad", []float32{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add = %v, want ErrDimensionMismatch", err)
	}
}

// An empty collection, including the dim-0 store built from an index
// without embeddings, matches nothing instead of rejecting the query
// dimension.
func TestSimilarEmptyCollection(t *testing.T) {
	for _, dim := range []int{0, 2} {
		m := NewMemory(dim)
		results, err := m.Similar(context.Background(), []float32{1, 0}, 5)
		if err != nil {
			t.Errorf("dim %d: Similar = %v, want no error", dim, err)
		}
		if len(results) != 0 {
			t.Errorf("dim %d: results = %v, want none", dim, results)
		}
	}
}

func TestSimilarByText(t *testing.T) {
	m := testStore(t)
	embedder := embedderFunc(func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	})
	results, err := SimilarByText(context.Background(), m, embedder, "anything", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "x" {
		t.Errorf("SimilarByText = %v, want x", results)
	}
}

type embedderFunc func(texts []string) ([][]float32, error)

func (f embedderFunc) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return f(texts)
}
