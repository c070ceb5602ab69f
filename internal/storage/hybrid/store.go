package hybrid

import (
	"fmt"
	"time"

	"dropmail/internal/domain"
	"dropmail/internal/storage/postgres"
	"dropmail/internal/storage/redis"
)

// 读路径缓存的过期时间，投递后会主动失效，这里只兜底
const cacheTTL = 30 * time.Second

// Store 混合存储实现，结合关系数据库和 Redis
type Store struct {
	postgres *postgres.Store
	redis    *redis.Cache
}

// NewStore 创建混合存储实例 (PostgreSQL)
func NewStore(postgresDSN, redisAddr, redisPassword string, redisDB int) (*Store, error) {
	return NewStoreWithType("postgres", postgresDSN, redisAddr, redisPassword, redisDB)
}

// NewStoreWithType 创建混合存储实例（指定数据库类型）
func NewStoreWithType(dbType, dsn, redisAddr, redisPassword string, redisDB int) (*Store, error) {
	var dbStore *postgres.Store
	var err error

	// 根据数据库类型创建存储
	switch dbType {
	case "mysql":
		dbStore, err = postgres.NewMySQLStore(dsn)
	case "postgres", "postgresql":
		dbStore, err = postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", dbType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 初始化 Redis
	redisCache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		postgres: dbStore,
		redis:    redisCache,
	}, nil
}

// Cache 返回底层 Redis 缓存，供发布订阅通道复用同一连接
func (s *Store) Cache() *redis.Cache {
	return s.redis
}

// ========== Mailbox Repository ==========

// ResolveOrCreateMailbox 按本地部分取回或创建邮箱
//
// 解析必须直达数据库，原子创建语义不允许经过缓存。
func (s *Store) ResolveOrCreateMailbox(local string) (*domain.Mailbox, error) {
	return s.postgres.ResolveOrCreateMailbox(local)
}

// CreateMailbox 显式创建邮箱
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	// 写操作直达数据库
	return s.postgres.CreateMailbox(mailbox)
}

// GetMailboxByLocal 按本地部分查询邮箱
func (s *Store) GetMailboxByLocal(local string) (*domain.Mailbox, error) {
	// 邮箱解析不缓存，避免与原子创建产生过期视图
	return s.postgres.GetMailboxByLocal(local)
}

// ListMailboxes 返回全部邮箱
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	// 列表查询直接从数据库获取（不缓存）
	return s.postgres.ListMailboxes()
}

// DeleteExpiredMailboxes 删除所有过期的邮箱，返回删除数量
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	// 直接从数据库删除，残留缓存靠 TTL 过期
	return s.postgres.DeleteExpiredMailboxes()
}

// DeleteMailboxesOlderThan 删除早于给定时间创建的邮箱
func (s *Store) DeleteMailboxesOlderThan(cutoff time.Time) (int, error) {
	return s.postgres.DeleteMailboxesOlderThan(cutoff)
}

// ========== Message Repository ==========

// SaveMessage 保存邮件并失效对应邮箱的列表缓存
func (s *Store) SaveMessage(message *domain.Message) error {
	// 保存到数据库
	if err := s.postgres.SaveMessage(message); err != nil {
		return err
	}

	local := domain.LocalPart(message.ToAddr)

	// 预热单封邮件缓存，失败不影响主流程
	s.redis.CacheMessage(local, message, cacheTTL)

	// 删除邮件列表缓存（因为列表已变化）
	s.redis.InvalidateMessages(local)

	return nil
}

// ListMessages 返回某个本地部分下的全部邮件
func (s *Store) ListMessages(local string) ([]domain.Message, error) {
	// 先尝试从 Redis 获取
	if messages, err := s.redis.GetCachedMessageList(local); err == nil {
		return messages, nil
	}

	// 从数据库获取
	messages, err := s.postgres.ListMessages(local)
	if err != nil {
		return nil, err
	}

	// 缓存到 Redis
	s.redis.CacheMessageList(local, messages, cacheTTL)

	return messages, nil
}

// GetMessage 获取单封邮件
func (s *Store) GetMessage(local, messageID string) (*domain.Message, error) {
	// 先尝试从 Redis 获取
	if message, err := s.redis.GetCachedMessage(local, messageID); err == nil {
		return message, nil
	}

	// 从数据库获取
	message, err := s.postgres.GetMessage(local, messageID)
	if err != nil {
		return nil, err
	}

	// 缓存到 Redis
	s.redis.CacheMessage(local, message, cacheTTL)

	return message, nil
}

// DeleteMessagesOlderThan 删除早于给定时间接收的邮件
func (s *Store) DeleteMessagesOlderThan(cutoff time.Time) (int, error) {
	return s.postgres.DeleteMessagesOlderThan(cutoff)
}

// ========== 工具方法 ==========

// Close 关闭存储连接
func (s *Store) Close() error {
	// 关闭数据库连接
	if err := s.postgres.Close(); err != nil {
		return err
	}

	// 关闭 Redis 连接
	return s.redis.Close()
}

// Health 健康检查
func (s *Store) Health() error {
	if err := s.postgres.Health(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.redis.Ping(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
