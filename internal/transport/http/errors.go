package httptransport

import (
	"dropmail/internal/domain"
	"dropmail/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Mailbox 错误
	domain.ErrInvalidLocalPart: "邮箱本地部分格式无效",
	domain.ErrLocalPartTooLong: "邮箱本地部分过长",
	storage.ErrMailboxExists:   "邮箱地址已被占用",
	storage.ErrMailboxNotFound: "邮箱不存在",

	// Message 错误
	storage.ErrMessageNotFound: "邮件不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 邮箱相关
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxListFailed   = "获取邮箱列表失败"

	// 邮件相关
	MsgMessageListFailed = "获取邮件列表失败"
	MsgMessageGetFailed  = "获取邮件详情失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
