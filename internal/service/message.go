package service

import (
	"dropmail/internal/domain"
	"dropmail/internal/storage"
)

// MessageService 封装邮件读取逻辑，供 HTTP 层消费。
type MessageService struct {
	store storage.Store
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(store storage.Store) *MessageService {
	return &MessageService{store: store}
}

// List 列出指定本地部分下的全部邮件，按接收时间倒序。
// 邮箱不存在时返回空列表。
func (s *MessageService) List(local string) ([]domain.Message, error) {
	return s.store.ListMessages(domain.NormalizeLocalPart(local))
}

// Get 获取单封邮件详情，不存在时返回 storage.ErrMessageNotFound。
func (s *MessageService) Get(local, messageID string) (*domain.Message, error) {
	return s.store.GetMessage(domain.NormalizeLocalPart(local), messageID)
}
