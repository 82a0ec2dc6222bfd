// Package tokens provides deterministic token counting against a named
// byte-pair encoding. Every context-packing decision in the engine goes
// through a Counter, so Count must be cheap and thread-safe.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts model tokens in a string.
type Counter interface {
	Count(s string) int
}

// Encoder is a Counter backed by a tiktoken BPE encoding.
//
// Counts for short strings are memoized: section headers and column rows
// are re-counted on every packing pass, and the BPE walk dominates packer
// cost without the cache.
type Encoder struct {
	enc  *tiktoken.Tiktoken
	memo sync.Map // string -> int
}

// memoLimit bounds the length of memoized strings so the cache stays
// proportional to the set of repeated headers, not the corpus.
const memoLimit = 128

// NewCounter creates an Encoder for the named encoding. Unknown encoding
// names are an error; callers treat that as a fatal configuration problem.
func NewCounter(encoding string) (*Encoder, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	return &Encoder{enc: enc}, nil
}

// Count returns the number of tokens in s.
func (e *Encoder) Count(s string) int {
	if len(s) <= memoLimit {
		if n, ok := e.memo.Load(s); ok {
			return n.(int)
		}
		n := len(e.enc.Encode(s, nil, nil))
		e.memo.Store(s, n)
		return n
	}
	return len(e.enc.Encode(s, nil, nil))
}
