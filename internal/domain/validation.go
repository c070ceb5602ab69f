package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
)

// 验证常量
const (
	// RFC 5321 对本地部分的长度限制
	MaxLocalPartLength = 64
)

// 本地部分只允许小写字母、数字和少量安全符号
var localPartRegex = regexp.MustCompile(`^[a-z0-9._+-]+$`)

// NormalizeLocalPart 将本地部分统一为小写并去掉首尾空白。
func NormalizeLocalPart(local string) string {
	return strings.ToLower(strings.TrimSpace(local))
}

// LocalPart 截取地址中第一个 @ 之前的本地部分。
// 地址中没有 @ 时返回整个字符串。
func LocalPart(addr string) string {
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// ValidateLocalPart 验证邮箱本地部分，调用前应先归一化。
// 只约束显式建箱入口；投递路径按到达的地址原样落库。
func ValidateLocalPart(local string) error {
	if local == "" {
		return ErrInvalidLocalPart
	}
	if len(local) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(local) {
		return ErrInvalidLocalPart
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return ErrInvalidLocalPart
	}
	if strings.Contains(local, "..") {
		return ErrInvalidLocalPart
	}
	return nil
}
