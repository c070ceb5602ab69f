package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dropmail/internal/domain"
	"dropmail/internal/storage"
)

// Store 使用内存保存邮箱与邮件数据，用于开发模式与测试。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox            // mailboxID -> mailbox
	byLocal   map[string]string                     // local -> mailboxID
	messages  map[string]map[string]*domain.Message // mailboxID -> messageID -> message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		byLocal:   make(map[string]string),
		messages:  make(map[string]map[string]*domain.Message),
	}
}

// ========== Mailbox Repository ==========

// ResolveOrCreateMailbox 按本地部分取出邮箱，不存在时创建。
// 查找与创建在同一把写锁内完成，与数据库实现提供同样的原子性。
func (s *Store) ResolveOrCreateMailbox(local string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byLocal[local]; ok {
		mb := *s.mailboxes[id]
		return &mb, nil
	}

	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Local:     local,
		CreatedAt: time.Now().UTC(),
	}
	s.mailboxes[mailbox.ID] = mailbox
	s.byLocal[local] = mailbox.ID

	mb := *mailbox
	return &mb, nil
}

// CreateMailbox 显式创建邮箱，local 已被占用时返回 ErrMailboxExists。
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byLocal[mailbox.Local]; ok {
		return storage.ErrMailboxExists
	}

	mb := *mailbox
	s.mailboxes[mb.ID] = &mb
	s.byLocal[mb.Local] = mb.ID
	return nil
}

// GetMailboxByLocal 根据本地部分获取邮箱。
func (s *Store) GetMailboxByLocal(local string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLocal[local]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mb := *s.mailboxes[id]
	return &mb, nil
}

// ListMailboxes 返回全部邮箱的快照，按创建时间倒序。
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		result = append(result, *mb)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteExpiredMailboxes 删除所有已到期的邮箱及其邮件，返回删除数量。
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for id, mb := range s.mailboxes {
		if mb.Expired(now) {
			s.deleteMailboxLocked(id)
			count++
		}
	}
	return count, nil
}

// DeleteMailboxesOlderThan 删除创建于 cutoff 之前的邮箱及其邮件，返回删除数量。
func (s *Store) DeleteMailboxesOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, mb := range s.mailboxes {
		if mb.CreatedAt.Before(cutoff) {
			s.deleteMailboxLocked(id)
			count++
		}
	}
	return count, nil
}

func (s *Store) deleteMailboxLocked(id string) {
	if mb, ok := s.mailboxes[id]; ok {
		delete(s.byLocal, mb.Local)
	}
	delete(s.mailboxes, id)
	delete(s.messages, id)
}

// ========== Message Repository ==========

// SaveMessage 落库一封新邮件。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[message.MailboxID]; !ok {
		return storage.ErrMailboxNotFound
	}

	if _, ok := s.messages[message.MailboxID]; !ok {
		s.messages[message.MailboxID] = make(map[string]*domain.Message)
	}
	msg := *message
	s.messages[message.MailboxID][message.ID] = &msg
	return nil
}

// ListMessages 返回某个本地部分下的全部邮件，按接收时间倒序。
// 邮箱不存在时返回空列表。
func (s *Store) ListMessages(local string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLocal[local]
	if !ok {
		return []domain.Message{}, nil
	}

	msgMap := s.messages[id]
	result := make([]domain.Message, 0, len(msgMap))
	for _, msg := range msgMap {
		result = append(result, *msg)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// GetMessage 获取单封邮件，按本地部分限定归属。
func (s *Store) GetMessage(local, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLocal[local]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	message, ok := s.messages[id][messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	msg := *message
	return &msg, nil
}

// DeleteMessagesOlderThan 删除接收于 cutoff 之前的邮件，返回删除数量。
func (s *Store) DeleteMessagesOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msgMap := range s.messages {
		for id, msg := range msgMap {
			if msg.ReceivedAt.Before(cutoff) {
				delete(msgMap, id)
				count++
			}
		}
	}
	return count, nil
}

// Close 关闭存储，内存实现无需清理。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储是否可用。
func (s *Store) Health() error {
	return nil
}
