package smtp

import (
	"bytes"
	"fmt"
	"strings"
)

// State 表示一次会话所处的协议阶段。
type State int

const (
	StateStart State = iota
	StateGreeted
	StateSenderSet
	StateRecipientsSet
	StateCollecting
	StateClosed
)

// String 返回状态的可读名称，用于日志。
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateGreeted:
		return "greeted"
	case StateSenderSet:
		return "sender_set"
	case StateRecipientsSet:
		return "recipients_set"
	case StateCollecting:
		return "collecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deliverer 在一次事务收齐正文后接收投递请求。
//
// 实现必须可以被多条连接并发调用。返回错误时对端收到临时失败应答，
// 不会产生任何持久化副作用以外的状态。
type Deliverer interface {
	Deliver(from string, recipients []string, raw []byte) error
}

// Session 单条连接的命令状态机。
//
// 每条连接独享一个实例，内部不加锁。输入按行喂给 HandleLine，
// 正文阶段的行按原始字节累积，终止行本身不计入正文。
type Session struct {
	domain    string
	maxSize   int64
	deliverer Deliverer

	state      State
	senderSet  bool
	from       string
	recipients []string
	body       bytes.Buffer
}

// NewSession 创建会话状态机。
// maxSize 只用于 EHLO 能力通告，正文收集阶段不做长度限制。
func NewSession(domain string, maxSize int64, deliverer Deliverer) *Session {
	return &Session{
		domain:    domain,
		maxSize:   maxSize,
		deliverer: deliverer,
	}
}

// Greeting 返回连接建立时发送的问候行。
func (s *Session) Greeting() string {
	return fmt.Sprintf("220 %s ESMTP Temporary Mail Server", s.domain)
}

// State 返回当前协议阶段。
func (s *Session) State() State {
	return s.state
}

// HandleLine 处理一行输入并返回要写回对端的应答行。
//
// line 需保留行尾符：命令阶段解析前会剥掉，正文阶段按原样累积。
// finished 为 true 表示应答写出后应关闭连接。
func (s *Session) HandleLine(line string) (replies []string, finished bool) {
	if s.state == StateCollecting {
		return s.handleBodyLine(line), false
	}
	return s.handleCommand(line)
}

// handleCommand 按动词前缀分发命令。
// 除 DATA 外没有硬性的顺序要求，MAIL/RCPT 在任何命令阶段都被接受。
func (s *Session) handleCommand(line string) ([]string, bool) {
	cmd := strings.TrimRight(line, "\r\n")
	upper := strings.ToUpper(cmd)

	switch {
	case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
		s.state = StateGreeted
		return []string{
			fmt.Sprintf("250-%s Hello", s.domain),
			fmt.Sprintf("250-SIZE %d", s.maxSize),
			"250-8BITMIME",
			"250 PIPELINING",
		}, false

	case strings.HasPrefix(upper, "MAIL"):
		addr, err := ExtractAddress(cmd)
		if err != nil {
			return []string{"501 Syntax error"}, false
		}
		// 空发件人合法，重复 MAIL 覆盖发件人但保留已接受的收件人
		s.from = addr
		s.senderSet = true
		if len(s.recipients) == 0 {
			s.state = StateSenderSet
		}
		return []string{"250 OK"}, false

	case strings.HasPrefix(upper, "RCPT"):
		addr, err := ExtractAddress(cmd)
		if err != nil {
			return []string{"501 Syntax error"}, false
		}
		if !strings.HasSuffix(addr, "@"+s.domain) {
			return []string{"550 Mailbox unavailable"}, false
		}
		s.recipients = append(s.recipients, addr)
		s.state = StateRecipientsSet
		return []string{"250 OK"}, false

	case strings.HasPrefix(upper, "DATA"):
		if !s.senderSet || len(s.recipients) == 0 {
			return []string{"503 Bad sequence of commands"}, false
		}
		s.state = StateCollecting
		s.body.Reset()
		return []string{"354 Start mail input; end with <CRLF>.<CRLF>"}, false

	case strings.HasPrefix(upper, "RSET"):
		s.resetEnvelope()
		s.state = StateGreeted
		return []string{"250 OK"}, false

	case strings.HasPrefix(upper, "NOOP"):
		return []string{"250 OK"}, false

	case strings.HasPrefix(upper, "QUIT"):
		s.state = StateClosed
		return []string{"221 Bye"}, true

	default:
		return []string{"502 Command not implemented"}, false
	}
}

// handleBodyLine 累积正文行，遇到单独的终止行触发投递。
// 普通正文行不产生应答。
func (s *Session) handleBodyLine(line string) []string {
	if line == ".\r\n" || line == ".\n" {
		return []string{s.finishData()}
	}
	s.body.WriteString(line)
	return nil
}

// finishData 把收齐的正文连同信封交给投递方，并复位事务状态。
// 无论投递成败，会话都回到问候后的初始阶段。
func (s *Session) finishData() string {
	raw := make([]byte, s.body.Len())
	copy(raw, s.body.Bytes())
	from := s.from
	recipients := s.recipients

	s.resetEnvelope()
	s.state = StateGreeted

	if err := s.deliverer.Deliver(from, recipients, raw); err != nil {
		return "451 Temporary failure"
	}
	return "250 OK: Message accepted"
}

// resetEnvelope 清空发件人、收件人和正文缓冲。
func (s *Session) resetEnvelope() {
	s.from = ""
	s.senderSet = false
	s.recipients = nil
	s.body.Reset()
}

// commandVerb 识别命令行的动词，未知动词归并为 OTHER，用作指标标签。
func commandVerb(line string) string {
	upper := strings.ToUpper(strings.TrimRight(line, "\r\n"))
	for _, verb := range []string{"EHLO", "HELO", "MAIL", "RCPT", "DATA", "RSET", "NOOP", "QUIT"} {
		if strings.HasPrefix(upper, verb) {
			return verb
		}
	}
	return "OTHER"
}
