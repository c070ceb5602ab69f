package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dropmail/internal/domain"
)

// Cache Redis 缓存实现，负责读路径缓存和新邮件发布订阅
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 邮件列表缓存 ==========

// CacheMessageList 缓存某个本地部分的邮件列表
func (c *Cache) CacheMessageList(local string, messages []domain.Message, ttl time.Duration) error {
	key := fmt.Sprintf("messages:%s", local)
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedMessageList 获取缓存的邮件列表
func (c *Cache) GetCachedMessageList(local string) ([]domain.Message, error) {
	key := fmt.Sprintf("messages:%s", local)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("message list not found in cache")
		}
		return nil, err
	}

	var messages []domain.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ========== 单封邮件缓存 ==========

// CacheMessage 缓存单封邮件
func (c *Cache) CacheMessage(local string, message *domain.Message, ttl time.Duration) error {
	key := fmt.Sprintf("message:%s:%s", local, message.ID)
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedMessage 获取缓存的单封邮件
func (c *Cache) GetCachedMessage(local, messageID string) (*domain.Message, error) {
	key := fmt.Sprintf("message:%s:%s", local, messageID)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("message not found in cache")
		}
		return nil, err
	}

	var message domain.Message
	if err := json.Unmarshal([]byte(data), &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// InvalidateMessages 删除某个本地部分的邮件列表缓存
//
// 新邮件落库后列表已变化，必须失效；单封邮件内容不可变，保留至过期。
func (c *Cache) InvalidateMessages(local string) error {
	key := fmt.Sprintf("messages:%s", local)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 发布订阅 ==========

// PublishNewMail 发布新邮件通知
func (c *Cache) PublishNewMail(local string, message *domain.Message) error {
	channel := fmt.Sprintf("new_mail:%s", local)
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.client.Publish(c.ctx, channel, data).Err()
}

// SubscribeNewMail 订阅全部邮箱的新邮件通知
//
// 返回的 PubSub 由调用方负责关闭。
func (c *Cache) SubscribeNewMail() *redis.PubSub {
	return c.client.PSubscribe(c.ctx, "new_mail:*")
}

// ========== 工具方法 ==========

// Ping 检查 Redis 连接
func (c *Cache) Ping() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
