package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/domain"
)

func TestRank_ScoreThenOrder(t *testing.T) {
	results := []domain.SearchResult{
		{Score: 0.5, Order: 0},
		{Score: 0.9, Order: 3},
		{Score: 0.9, Order: 1},
		{Score: 0.1, Order: 2},
	}
	Rank(results)

	var orders []int
	for _, r := range results {
		orders = append(orders, r.Order)
	}
	assert.Equal(t, []int{1, 3, 0, 2}, orders)
}

func TestMetadataRoundTrip(t *testing.T) {
	rec := domain.Record{
		Chunk:   domain.Chunk{DocumentID: "a", ChunkID: "a:2", Source: "a.pdf", Index: 2},
		Summary: "sum",
	}
	ch, summary, order, err := FromMetadata(Metadata(rec, 7), "body")
	require.NoError(t, err)
	assert.Equal(t, 7, order)
	assert.Equal(t, "sum", summary)
	assert.Equal(t, "body", ch.Text)
	assert.Equal(t, "a:2", ch.ChunkID)
	assert.Equal(t, 2, ch.Index)

	_, _, _, err = FromMetadata(map[string]string{KeyIndex: "x"}, "")
	assert.Error(t, err)
}

func TestCheckDimension(t *testing.T) {
	recs := []domain.Record{{Vector: []float32{1, 2}}, {Vector: []float32{1}}}
	assert.ErrorIs(t, CheckDimension(recs, 2), ErrDimensionMismatch)
	assert.NoError(t, CheckDimension(recs[:1], 2))
}
