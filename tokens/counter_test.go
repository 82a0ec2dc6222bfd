package tokens

import "testing"

// newTestCounter skips when the encoding tables cannot be fetched, so the
// suite passes offline.
func newTestCounter(t *testing.T) *Encoder {
	t.Helper()
	c, err := NewCounter(DefaultEncoding)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	return c
}

func TestCount(t *testing.T) {
	c := newTestCounter(t)

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("hello world"); got != 2 {
		t.Errorf("Count(\"hello world\") = %d, want 2", got)
	}
}

func TestCountMemoized(t *testing.T) {
	c := newTestCounter(t)

	s := "-----Entities-----\n"
	first := c.Count(s)
	second := c.Count(s)
	if first != second {
		t.Errorf("memoized count differs: %d then %d", first, second)
	}
}

func TestUnknownEncoding(t *testing.T) {
	if _, err := NewCounter("no_such_encoding"); err == nil {
		t.Error("NewCounter accepted an unknown encoding")
	}
}
