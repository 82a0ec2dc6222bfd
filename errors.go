package graphrag

import (
	"errors"

	"github.com/brunobiangulo/graphrag/model"
)

var (
	// ErrInvalidConfig is returned for invalid configuration values
	// (bad proportions, unknown encoding, missing vector store).
	ErrInvalidConfig = errors.New("graphrag: invalid configuration")

	// ErrBadData is returned when the loaded graph violates a structural
	// invariant (duplicate entity title, duplicate community report).
	ErrBadData = model.ErrBadData

	// ErrDimensionMismatch is returned when embedding vectors sharing a
	// logical space differ in dimension.
	ErrDimensionMismatch = model.ErrDimensionMismatch

	// ErrVectorStore is returned when the vector store is unavailable
	// after the client retry policy is exhausted.
	ErrVectorStore = errors.New("graphrag: vector store unavailable")

	// ErrLLM is returned for non-retryable model errors.
	ErrLLM = errors.New("graphrag: LLM request failed")

	// ErrMalformedModelJSON is returned when the model produces JSON that
	// cannot be parsed where a prompt demanded structured output.
	ErrMalformedModelJSON = errors.New("graphrag: malformed model JSON")

	// ErrUnknownMethod is returned for a search method outside
	// {local, global, drift}.
	ErrUnknownMethod = errors.New("graphrag: unknown search method")

	// ErrStreamingUnsupported is returned when streaming is requested for
	// a method that has no streaming form.
	ErrStreamingUnsupported = errors.New("graphrag: streaming not supported for this method")
)
