package model

import "errors"

var (
	// ErrBadData is returned when the index violates a structural
	// invariant (duplicate entity title, duplicate (community, level)
	// report, dangling relationship endpoint on a strict load).
	ErrBadData = errors.New("graphrag: invalid graph data")

	// ErrDimensionMismatch is returned when embedding vectors sharing a
	// logical space have different dimensions.
	ErrDimensionMismatch = errors.New("graphrag: embedding dimension mismatch")
)
