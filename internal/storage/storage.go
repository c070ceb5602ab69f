package storage

import (
	"errors"
	"time"

	"dropmail/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱未找到错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMessageNotFound 邮件未找到错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrMailboxExists 邮箱已存在错误
	ErrMailboxExists = errors.New("mailbox already exists")
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	// ResolveOrCreateMailbox 按本地部分取出邮箱，不存在时创建。
	// 对同一 local 的并发调用必须收敛到同一行：实现要求基于唯一索引的
	// 原子 upsert（冲突即放弃写入并回读），不允许先查后插。
	ResolveOrCreateMailbox(local string) (*domain.Mailbox, error)
	// CreateMailbox 显式创建邮箱，local 已被占用时返回 ErrMailboxExists。
	CreateMailbox(mailbox *domain.Mailbox) error
	GetMailboxByLocal(local string) (*domain.Mailbox, error)
	ListMailboxes() ([]domain.Mailbox, error)
	// DeleteExpiredMailboxes 删除已到期邮箱，返回删除数量。
	DeleteExpiredMailboxes() (int, error)
	// DeleteMailboxesOlderThan 删除创建于 cutoff 之前的邮箱，返回删除数量。
	DeleteMailboxesOlderThan(cutoff time.Time) (int, error)
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	// SaveMessage 落库一封新邮件，只追加，不做去重。
	SaveMessage(message *domain.Message) error
	// ListMessages 返回某个本地部分下的全部邮件，按接收时间倒序；
	// 邮箱不存在时返回空列表而不是错误。
	ListMessages(local string) ([]domain.Message, error)
	GetMessage(local, messageID string) (*domain.Message, error)
	// DeleteMessagesOlderThan 删除接收于 cutoff 之前的邮件，返回删除数量。
	DeleteMessagesOlderThan(cutoff time.Time) (int, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	MessageRepository

	// 工具方法
	Close() error
	Health() error
}
