package domain

import "time"

// Message 表示投递到某个邮箱的一封邮件，落库后不可变。
// FromAddr 可以为空（退信等场景的空发件人），BodyHTML 只有在
// 原始邮件携带 HTML 部分时才会设置。
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID  string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	FromAddr   *string   `json:"fromAddr,omitempty" gorm:"type:varchar(255)"`
	ToAddr     string    `json:"toAddr" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	BodyText   string    `json:"bodyText" gorm:"type:text"`
	BodyHTML   *string   `json:"bodyHtml,omitempty" gorm:"type:text"`
	Raw        string    `json:"raw" gorm:"type:text"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index:idx_messages_received_at,sort:desc"`

	Mailbox Mailbox `json:"-" gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE"`
}
