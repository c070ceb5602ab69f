package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dropmail/internal/monitoring"
	"dropmail/internal/storage"
)

// RetentionService 周期清理到期邮箱与陈旧数据。
type RetentionService struct {
	store         storage.Store
	mailboxMaxAge time.Duration
	messageMaxAge time.Duration
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// NewRetentionService 创建清理服务。
// mailboxMaxAge / messageMaxAge 为 0 时对应的清理步骤被禁用。
func NewRetentionService(store storage.Store, mailboxMaxAge, messageMaxAge time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}

	return &RetentionService{
		store:         store,
		mailboxMaxAge: mailboxMaxAge,
		messageMaxAge: messageMaxAge,
		logger:        logger,
		metrics:       metrics,
	}
}

// Run 按固定间隔执行清理，直到 ctx 取消。
func (s *RetentionService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep 依次执行三类清理：到期邮箱、超龄邮箱、超龄邮件。
// 邮箱删除会级联清掉其中的邮件。
func (s *RetentionService) Sweep(ctx context.Context) error {
	expired, err := s.store.DeleteExpiredMailboxes()
	if err != nil {
		return fmt.Errorf("delete expired mailboxes: %w", err)
	}
	if expired > 0 {
		s.metrics.RecordMailboxesSwept(expired)
		s.logger.Info("expired mailboxes removed", zap.Int("count", expired))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.mailboxMaxAge > 0 {
		cutoff := time.Now().UTC().Add(-s.mailboxMaxAge)
		aged, err := s.store.DeleteMailboxesOlderThan(cutoff)
		if err != nil {
			return fmt.Errorf("delete aged mailboxes: %w", err)
		}
		if aged > 0 {
			s.metrics.RecordMailboxesSwept(aged)
			s.logger.Info("aged mailboxes removed",
				zap.Int("count", aged),
				zap.Time("cutoff", cutoff),
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.messageMaxAge > 0 {
		cutoff := time.Now().UTC().Add(-s.messageMaxAge)
		aged, err := s.store.DeleteMessagesOlderThan(cutoff)
		if err != nil {
			return fmt.Errorf("delete aged messages: %w", err)
		}
		if aged > 0 {
			s.metrics.RecordMessagesSwept(aged)
			s.logger.Info("aged messages removed",
				zap.Int("count", aged),
				zap.Time("cutoff", cutoff),
			)
		}
	}

	return nil
}
