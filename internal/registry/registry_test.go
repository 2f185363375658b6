package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, "doc-1", "كتاب الأدب")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "كتاب الأدب", doc.DisplayName)
	assert.Equal(t, StatusPending, doc.EmbeddingStatus)
	assert.True(t, doc.IsSelected)

	missing, err := store.GetDocument(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "book")
	require.NoError(t, err)

	// pending -> completed skips processing and must be rejected
	err = store.SetStatus(ctx, "doc-1", StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, store.SetStatus(ctx, "doc-1", StatusProcessing))
	require.NoError(t, store.SetStatus(ctx, "doc-1", StatusCompleted))

	// terminal states are final
	err = store.SetStatus(ctx, "doc-1", StatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProcessingCanFail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "book")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "doc-1", StatusProcessing))
	require.NoError(t, store.SetStatus(ctx, "doc-1", StatusFailed))
}

func TestFinishDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "book")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "doc-1", StatusProcessing))
	require.NoError(t, store.FinishDocument(ctx, "doc-1", 42, StatusCompleted))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, doc.EmbeddingStatus)
	assert.Equal(t, 42, doc.ChunksCount)
}

func TestSetTotalPagesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "book")
	require.NoError(t, err)
	require.NoError(t, store.SetTotalPages(ctx, "doc-1", 120))
	require.NoError(t, store.SetTotalPages(ctx, "doc-1", 999))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 120, doc.TotalPages)
}

func TestSelection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "a")
	require.NoError(t, err)
	_, err = store.CreateDocument(ctx, "doc-2", "b")
	require.NoError(t, err)

	require.NoError(t, store.SetSelected(ctx, "doc-1", false))

	selected, err := store.ListSelected(ctx)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "doc-2", selected[0].ID)

	all, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, "doc-1", "a")
	require.NoError(t, err)
	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}
