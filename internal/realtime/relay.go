package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const DefaultRelayChannel = "solcials:posts:live"

// Relay shares newly admitted posts between processes over redis pub/sub.
// Each process tags its own messages so it ignores its echo.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
}

type relayEnvelope struct {
	Origin string       `json:"origin"`
	Posts  []model.Post `json:"posts"`
}

func NewRelay(client *redis.Client, channel, origin string) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Relay{client: client, channel: channel, origin: origin}
}

func (r *Relay) Channel() string { return r.channel }

func (r *Relay) Publish(ctx context.Context, posts []model.Post) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Posts: posts})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run 订阅频道直到 ctx 结束，收到其他进程的帖子时调用 fn
func (r *Relay) Run(ctx context.Context, fn func([]model.Post)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// 先等订阅确认再消费
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Debug("relay payload dropped", zap.Error(err))
				continue
			}
			if env.Origin == r.origin || len(env.Posts) == 0 {
				continue
			}
			fn(env.Posts)
		}
	}
}
