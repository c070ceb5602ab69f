package domain

import (
	"time"
)

// Mailbox 表示一个一次性邮箱的业务实体。
// Local 是全局唯一的寻址键，完整地址由 Local 加服务域名拼出。
type Mailbox struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Local     string     `json:"local" gorm:"type:varchar(255);uniqueIndex:idx_mailboxes_local"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Address 返回该邮箱在指定域名下的完整地址。
func (m *Mailbox) Address(domain string) string {
	return m.Local + "@" + domain
}

// Expired 判断邮箱在给定时间点是否已到期。
// 到期只影响清理任务，读取路径不做过滤。
func (m *Mailbox) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}
