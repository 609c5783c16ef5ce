package realtime

import (
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

// Watermark 记录当前会话已投递的最大时间戳，只增不减
type Watermark struct {
	mu   sync.Mutex
	mark int64
}

func NewWatermark(start int64) *Watermark {
	return &Watermark{mark: start}
}

// Admit returns the posts strictly newer than the mark, oldest first, and
// advances the mark to the newest one. Posts sharing a timestamp with an
// admitted post in the same batch are kept.
func (w *Watermark) Admit(posts []model.Post) []model.Post {
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := make([]model.Post, 0, len(posts))
	seen := make(map[solana.PublicKey]struct{}, len(posts))
	high := w.mark
	for _, p := range posts {
		if p.Timestamp <= w.mark {
			continue
		}
		if _, dup := seen[p.Address]; dup {
			continue
		}
		seen[p.Address] = struct{}{}
		fresh = append(fresh, p)
		if p.Timestamp > high {
			high = p.Timestamp
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Timestamp < fresh[j].Timestamp })
	w.mark = high
	return fresh
}

func (w *Watermark) Value() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mark
}

// Raise moves the mark up to v; a lower v is ignored.
func (w *Watermark) Raise(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v > w.mark {
		w.mark = v
	}
}
