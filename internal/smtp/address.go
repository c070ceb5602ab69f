package smtp

import (
	"errors"
	"strings"
)

// ErrMalformedAddress 表示命令行中找不到尖括号包裹的地址。
var ErrMalformedAddress = errors.New("malformed address")

// ExtractAddress 提取命令行中第一对尖括号之间的地址并转为小写。
//
// 空地址（<>）是合法的，用于退信等空发件人场景。
// 括号内的内容不做语法校验，域名匹配是唯一的准入门槛。
func ExtractAddress(line string) (string, error) {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start == -1 || end == -1 || end < start {
		return "", ErrMalformedAddress
	}
	return strings.ToLower(line[start+1 : end]), nil
}
