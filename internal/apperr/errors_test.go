package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("ingest: %w", Validation(CodeUnsupportedFormat, "file type %q is not supported", ".exe"))

	assert.True(t, errors.Is(err, &Error{Kind: KindValidation}))
	assert.True(t, errors.Is(err, &Error{Kind: KindValidation, Code: CodeUnsupportedFormat}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation, Code: CodeUnknownTable}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}

func TestDuplicateCarriesExistingID(t *testing.T) {
	err := Duplicate("doc-1")
	assert.Equal(t, KindDuplicateContent, err.Kind)
	assert.Equal(t, "doc-1", err.Details["document_id"])
	assert.True(t, IsUserError(err))
}

func TestFromExternal(t *testing.T) {
	timeout := FromExternal(fmt.Errorf("post: %w", context.DeadlineExceeded), KindEmbedding, CodeEmbeddingFailed, "embedding query")
	require.NotNil(t, timeout)
	assert.Equal(t, KindExternalTimeout, timeout.Kind)
	assert.Equal(t, CodeTimeout, timeout.Code)

	other := FromExternal(errors.New("connection refused"), KindEmbedding, CodeEmbeddingFailed, "embedding query")
	assert.Equal(t, KindEmbedding, other.Kind)
	assert.Contains(t, other.Error(), "connection refused")

	already := NotFound("document %s not found", "d1")
	assert.Same(t, already, FromExternal(already, KindEmbedding, CodeEmbeddingFailed, "x"))

	assert.Nil(t, FromExternal(nil, KindEmbedding, CodeEmbeddingFailed, "x"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindConflict, KindOf(Conflict(CodeIndexingActive, "busy")))
	assert.False(t, IsUserError(Wrap(errors.New("x"), KindIndexWrite, CodeIndexWriteFailed, "write")))
}
