package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRefresher(store *fakeUpserter) *Refresher {
	return NewRefresher(&fakeEmbedder{}, store, DefaultPartialRefreshThreshold, nil)
}

func TestRefreshEmpty(t *testing.T) {
	store := &fakeUpserter{}
	r := newTestRefresher(store)

	result, err := r.Refresh(context.Background(), "stale_documents", nil)
	require.NoError(t, err)

	assert.Equal(t, RefreshNone, result.RefreshType)
	assert.Equal(t, 0, result.UpdatedDocuments)
	assert.Equal(t, "completed", result.Status)
	assert.Empty(t, store.batches)
}

func TestRefreshPartialUpsertsOneAtATime(t *testing.T) {
	store := &fakeUpserter{}
	r := newTestRefresher(store)

	chunks := []Chunk{
		{ID: "c1", Content: "alpha", Metadata: Metadata{DocID: "d1"}},
		{ID: "c2", Content: "beta", Metadata: Metadata{DocID: "d2"}},
	}

	result, err := r.Refresh(context.Background(), RefreshReasonHallucination, chunks)
	require.NoError(t, err)

	assert.Equal(t, RefreshPartial, result.RefreshType)
	assert.Equal(t, 2, result.UpdatedDocuments)
	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 1)
	assert.Len(t, store.batches[1], 1)
	assert.Equal(t, "c1", store.batches[0][0].ID)
	assert.Equal(t, "alpha", store.batches[0][0].Content)
	assert.Equal(t, "d1", store.batches[0][0].Metadata.DocID)
}

func TestRefreshFullBatchesSingleUpsert(t *testing.T) {
	store := &fakeUpserter{}
	r := newTestRefresher(store)

	chunks := []Chunk{
		{ID: "c1", Content: "alpha"},
		{ID: "c2", Content: "beta"},
		{ID: "c3", Content: "gamma"},
	}

	result, err := r.Refresh(context.Background(), "stale_documents", chunks)
	require.NoError(t, err)

	assert.Equal(t, RefreshFull, result.RefreshType)
	assert.Equal(t, 3, result.UpdatedDocuments)
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
}

func TestRefreshSkipsChunksMissingIDOrContent(t *testing.T) {
	store := &fakeUpserter{}
	r := newTestRefresher(store)

	chunks := []Chunk{
		{ID: "c1", Content: "alpha"},
		{ID: "", Content: "no id"},
		{ID: "c3", Content: ""},
		{ID: "c4", Content: "delta"},
	}

	// Refresh type is decided by input size, not by how many survive the skip.
	result, err := r.Refresh(context.Background(), "stale_documents", chunks)
	require.NoError(t, err)

	assert.Equal(t, RefreshFull, result.RefreshType)
	assert.Equal(t, 2, result.UpdatedDocuments)
	assert.Equal(t, 2, store.totalVectors())
}

func TestRefreshTypeBoundaries(t *testing.T) {
	tests := []struct {
		count int
		want  RefreshType
	}{
		{0, RefreshNone},
		{1, RefreshPartial},
		{2, RefreshPartial},
		{3, RefreshFull},
		{5, RefreshFull},
	}

	for _, tt := range tests {
		store := &fakeUpserter{}
		r := newTestRefresher(store)

		chunks := make([]Chunk, tt.count)
		for i := range chunks {
			chunks[i] = Chunk{ID: string(rune('a' + i)), Content: "text"}
		}

		result, err := r.Refresh(context.Background(), "stale_documents", chunks)
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.RefreshType, "count=%d", tt.count)
	}
}

func TestRefreshUpsertFailurePropagates(t *testing.T) {
	store := &fakeUpserter{err: errors.New("vector store unavailable")}
	r := newTestRefresher(store)

	_, err := r.Refresh(context.Background(), "stale_documents", []Chunk{{ID: "c1", Content: "alpha"}})
	assert.Error(t, err)
}
