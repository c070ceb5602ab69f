package service

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"dropmail/internal/domain"
	"dropmail/internal/monitoring"
	"dropmail/internal/storage"
)

// MailboxService 封装邮箱相关业务操作。
type MailboxService struct {
	store      storage.Store
	domain     string
	defaultTTL time.Duration
	metrics    *monitoring.Metrics
}

// NewMailboxService 创建邮箱业务服务。
// defaultTTL 是未显式指定 ttl_hours 时的默认生存时间，0 表示不过期。
func NewMailboxService(store storage.Store, serviceDomain string, defaultTTL time.Duration, metrics *monitoring.Metrics) *MailboxService {
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}

	return &MailboxService{
		store:      store,
		domain:     strings.ToLower(serviceDomain),
		defaultTTL: defaultTTL,
		metrics:    metrics,
	}
}

// Domain 返回服务接收域名，用于拼出完整邮箱地址。
func (s *MailboxService) Domain() string {
	return s.domain
}

// CreateMailboxInput 定义创建邮箱所需的输入。
type CreateMailboxInput struct {
	Local    string // 可选，留空则生成随机本地部分
	TTLHours int    // 可选，>0 时设置到期时间
}

// Create 显式创建新邮箱。
// 本地部分已被占用时返回 storage.ErrMailboxExists。
func (s *MailboxService) Create(input CreateMailboxInput) (*domain.Mailbox, error) {
	local := domain.NormalizeLocalPart(input.Local)
	if local == "" {
		local = generateRandomLocal()
	} else if err := domain.ValidateLocalPart(local); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Local:     local,
		CreatedAt: now,
	}

	switch {
	case input.TTLHours > 0:
		expires := now.Add(time.Duration(input.TTLHours) * time.Hour)
		mailbox.ExpiresAt = &expires
	case s.defaultTTL > 0:
		expires := now.Add(s.defaultTTL)
		mailbox.ExpiresAt = &expires
	}

	if err := s.store.CreateMailbox(mailbox); err != nil {
		return nil, err
	}

	s.metrics.RecordMailboxCreated()
	return mailbox, nil
}

// List 返回全部邮箱快照，按创建时间倒序。
func (s *MailboxService) List() ([]domain.Mailbox, error) {
	return s.store.ListMailboxes()
}

// generateRandomLocal 生成随机的 12 位本地部分。
func generateRandomLocal() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}
