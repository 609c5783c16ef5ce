package realtime

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

func postAt(ts int64, addr byte) model.Post {
	return model.Post{Address: solana.PublicKey{addr}, Timestamp: ts}
}

func timestamps(posts []model.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.Timestamp
	}
	return out
}

func TestWatermarkAdmitsStrictlyNewerAscending(t *testing.T) {
	w := NewWatermark(100)

	got := w.Admit([]model.Post{postAt(300, 1), postAt(100, 2), postAt(200, 3), postAt(50, 4)})
	assert.Equal(t, []int64{200, 300}, timestamps(got))
	assert.EqualValues(t, 300, w.Value())

	// 同一条帖子再次轮询到不会重复投递
	assert.Empty(t, w.Admit([]model.Post{postAt(300, 1)}))
	assert.EqualValues(t, 300, w.Value())
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	w := NewWatermark(0)
	batches := [][]model.Post{
		{postAt(10, 1), postAt(30, 2)},
		{postAt(20, 3)},
		{postAt(30, 4), postAt(31, 5)},
		{},
		{postAt(5, 6)},
	}
	last := w.Value()
	delivered := map[solana.PublicKey]bool{}
	for _, b := range batches {
		for _, p := range w.Admit(b) {
			assert.False(t, delivered[p.Address], "redelivered %s", p.Address)
			delivered[p.Address] = true
		}
		assert.GreaterOrEqual(t, w.Value(), last)
		last = w.Value()
	}
	assert.EqualValues(t, 31, last)
	assert.Len(t, delivered, 3)
}

func TestWatermarkDropsDuplicatesWithinBatch(t *testing.T) {
	w := NewWatermark(0)
	got := w.Admit([]model.Post{postAt(10, 1), postAt(10, 1), postAt(10, 2)})
	assert.Len(t, got, 2)
}

func TestWatermarkRaise(t *testing.T) {
	w := NewWatermark(50)
	w.Raise(40)
	assert.EqualValues(t, 50, w.Value())
	w.Raise(60)
	assert.EqualValues(t, 60, w.Value())
}
