package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/internal/domain"
	"dropmail/internal/mail"
	"dropmail/internal/monitoring"
	"dropmail/internal/storage"
)

// Notifier 在新邮件落库后接收投递事件，用于驱动实时推送。
type Notifier interface {
	NotifyNewMail(local string, message *domain.Message)
}

// DeliveryService 实现邮件接收后的入库流水线：解析原始字节流，
// 逐个收件人解析邮箱并写入邮件记录。解析失败会中止整个事务，
// 单个收件人的存储失败不会影响其他收件人。
type DeliveryService struct {
	store    storage.Store
	parser   mail.Parser
	domain   string
	notifier Notifier
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewDeliveryService 创建投递流水线服务。
func NewDeliveryService(store storage.Store, parser mail.Parser, serviceDomain string, logger *zap.Logger, metrics *monitoring.Metrics) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}

	return &DeliveryService{
		store:   store,
		parser:  parser,
		domain:  strings.ToLower(serviceDomain),
		logger:  logger,
		metrics: metrics,
	}
}

// SetNotifier 设置投递事件通知器（可选）。
func (s *DeliveryService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Deliver 处理一次完整的接收事务。
// from 可以为空（空发件人），recipients 是协议阶段已接受的收件人地址。
func (s *DeliveryService) Deliver(from string, recipients []string, raw []byte) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDeliveryDuration(time.Since(start))
	}()

	parsed, err := s.parser.Parse(raw)
	if err != nil {
		s.metrics.RecordParseFailure()
		s.logger.Warn("failed to parse incoming message",
			zap.String("from", from),
			zap.Int("size", len(raw)),
			zap.Error(err),
		)
		return fmt.Errorf("parse message: %w", err)
	}

	subject := parsed.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	bodyText := parsed.Text
	if bodyText == "" {
		bodyText = "(No text body)"
	}
	var bodyHTML *string
	if parsed.HTML != "" {
		html := parsed.HTML
		bodyHTML = &html
	}
	var fromAddr *string
	if from != "" {
		sender := from
		fromAddr = &sender
	}

	// 原始内容按文本落库，非法 UTF-8 序列替换后保留
	rawText := strings.ToValidUTF8(string(raw), "�")

	suffix := "@" + s.domain
	delivered := 0
	failed := 0
	for _, rcpt := range recipients {
		// RCPT 阶段已经过滤过域名，这里再核对一次后缀
		if !strings.HasSuffix(rcpt, suffix) {
			continue
		}

		local := domain.LocalPart(rcpt)
		mailbox, err := s.store.ResolveOrCreateMailbox(local)
		if err != nil {
			failed++
			s.logger.Error("failed to resolve mailbox",
				zap.String("local", local),
				zap.Error(err),
			)
			continue
		}

		message := &domain.Message{
			ID:         uuid.NewString(),
			MailboxID:  mailbox.ID,
			FromAddr:   fromAddr,
			ToAddr:     rcpt,
			Subject:    subject,
			BodyText:   bodyText,
			BodyHTML:   bodyHTML,
			Raw:        rawText,
			ReceivedAt: time.Now().UTC(),
		}

		if err := s.store.SaveMessage(message); err != nil {
			failed++
			s.logger.Error("failed to save message",
				zap.String("local", local),
				zap.String("message_id", message.ID),
				zap.Error(err),
			)
			continue
		}

		delivered++
		s.metrics.RecordMessageDelivered()

		if s.notifier != nil {
			s.notifier.NotifyNewMail(local, message)
		}
	}

	s.logger.Info("message delivered",
		zap.String("from", from),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", delivered),
		zap.Int("failed", failed),
	)

	if failed > 0 {
		return fmt.Errorf("delivery failed for %d of %d recipients", failed, len(recipients))
	}
	return nil
}
