package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const defaultSubscriberBuffer = 64

// Subscriber 一个实时订阅者；C 在 Unsubscribe 或 Hub.Close 后关闭
type Subscriber struct {
	ID string
	C  <-chan model.Post

	send chan model.Post
}

// Hub 把新帖子分发给所有订阅者，发送不阻塞，缓冲满时丢弃
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: map[string]*Subscriber{}, buffer: buffer}
}

func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan model.Post, h.buffer)
	sub := &Subscriber{ID: uuid.NewString(), C: ch, send: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.send)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Broadcast(posts ...model.Post) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		for _, p := range posts {
			select {
			case sub.send <- p:
			default:
				logger.Warn("subscriber buffer full, dropping post",
					zap.String("subscriber", sub.ID),
					zap.String("post", p.Address.String()),
				)
			}
		}
	}
}

// Close 关闭所有订阅者通道，之后的订阅立即得到已关闭的通道
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.send)
	}
}
