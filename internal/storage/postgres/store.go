package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"dropmail/internal/domain"
	"dropmail/internal/storage"
)

// Store 关系型数据库存储实现，支持 PostgreSQL 与 MySQL。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn))
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn))
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	// 配置 GORM
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	// 连接数据库
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Mailbox{},
		&domain.Message{},
	)
}

// ========== Mailbox Repository ==========

// ResolveOrCreateMailbox 按本地部分取出邮箱，不存在时创建。
// 写入走唯一索引上的 ON CONFLICT DO NOTHING，随后统一回读，
// 并发首投同一 local 时也只会产生一行。
func (s *Store) ResolveOrCreateMailbox(local string) (*domain.Mailbox, error) {
	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Local:     local,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local"}},
		DoNothing: true,
	}).Create(mailbox).Error
	if err != nil {
		return nil, err
	}

	return s.GetMailboxByLocal(local)
}

// CreateMailbox 显式创建邮箱，local 已被占用时返回 ErrMailboxExists。
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local"}},
		DoNothing: true,
	}).Create(mailbox)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxExists
	}
	return nil
}

// GetMailboxByLocal 根据本地部分获取邮箱
func (s *Store) GetMailboxByLocal(local string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("local = ?", local).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// ListMailboxes 返回全部邮箱的快照
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.Order("created_at DESC").Find(&mailboxes).Error
	return mailboxes, err
}

// DeleteExpiredMailboxes 删除所有已到期的邮箱及其邮件，返回删除数量
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	var count int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// 先删邮件再删邮箱，不依赖外键级联
		expired := tx.Model(&domain.Mailbox{}).Select("id").
			Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		if err := tx.Where("mailbox_id IN (?)", expired).Delete(&domain.Message{}).Error; err != nil {
			return err
		}

		result := tx.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		count = result.RowsAffected
		return nil
	})

	return int(count), err
}

// DeleteMailboxesOlderThan 删除创建于 cutoff 之前的邮箱及其邮件，返回删除数量
func (s *Store) DeleteMailboxesOlderThan(cutoff time.Time) (int, error) {
	var count int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		aged := tx.Model(&domain.Mailbox{}).Select("id").
			Where("created_at < ?", cutoff)
		if err := tx.Where("mailbox_id IN (?)", aged).Delete(&domain.Message{}).Error; err != nil {
			return err
		}

		result := tx.Where("created_at < ?", cutoff).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		count = result.RowsAffected
		return nil
	})

	return int(count), err
}

// ========== Message Repository ==========

// SaveMessage 落库一封新邮件，只追加
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Create(message).Error
}

// ListMessages 返回某个本地部分下的全部邮件，按接收时间倒序。
// 邮箱不存在时返回空列表。
func (s *Store) ListMessages(local string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.
		Select("messages.*").
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Where("mailboxes.local = ?", local).
		Order("messages.received_at DESC").
		Find(&messages).Error
	return messages, err
}

// GetMessage 获取单封邮件，按本地部分限定归属
func (s *Store) GetMessage(local, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.
		Select("messages.*").
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Where("messages.id = ? AND mailboxes.local = ?", messageID, local).
		First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// DeleteMessagesOlderThan 删除接收于 cutoff 之前的邮件，返回删除数量
func (s *Store) DeleteMessagesOlderThan(cutoff time.Time) (int, error) {
	result := s.db.Where("received_at < ?", cutoff).Delete(&domain.Message{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接是否可用
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
