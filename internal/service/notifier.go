package service

import (
	"go.uber.org/zap"

	"dropmail/internal/domain"
	"dropmail/internal/storage/redis"
)

// RedisNotifier 把新邮件事件发布到 Redis 频道，多实例部署时由
// WebSocket 桥接器订阅转发。发布失败只记日志，不影响投递结果。
type RedisNotifier struct {
	cache  *redis.Cache
	logger *zap.Logger
}

// NewRedisNotifier 创建基于 Redis 发布订阅的通知器。
func NewRedisNotifier(cache *redis.Cache, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{cache: cache, logger: logger}
}

// NotifyNewMail 发布一条新邮件事件。
func (n *RedisNotifier) NotifyNewMail(local string, message *domain.Message) {
	if err := n.cache.PublishNewMail(local, message); err != nil {
		n.logger.Warn("failed to publish new mail event",
			zap.String("local", local),
			zap.Error(err),
		)
	}
}
