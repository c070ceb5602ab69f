package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"dropmail/internal/domain"
	"dropmail/internal/storage/redis"
)

// Bridge 订阅 Redis 上的新邮件频道，把其它实例发布的事件转发进
// 本地 Hub，使多实例部署下每个实例都能推送全部投递事件。
type Bridge struct {
	hub   *Hub
	cache *redis.Cache
	log   *zap.Logger
}

// NewBridge 创建 Redis 到 Hub 的事件桥接器。
func NewBridge(hub *Hub, cache *redis.Cache, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{hub: hub, cache: cache, log: logger}
}

// Run 持续消费订阅消息，直到 ctx 取消或订阅中断。
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.cache.SubscribeNewMail()
	defer sub.Close()

	b.log.Info("redis notification bridge started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}

			local := strings.TrimPrefix(msg.Channel, "new_mail:")

			var message domain.Message
			if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
				b.log.Warn("failed to decode new mail event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}

			b.hub.NotifyNewMail(local, &message)
		}
	}
}
