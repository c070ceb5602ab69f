package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropmail/internal/domain"
	"dropmail/internal/storage"
	"dropmail/internal/storage/memory"
)

func seedMailbox(t *testing.T, store *memory.Store, local string, createdAt time.Time, expiresAt *time.Time) *domain.Mailbox {
	t.Helper()

	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Local:     local,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, store.CreateMailbox(mailbox))
	return mailbox
}

func seedMessage(t *testing.T, store *memory.Store, mailboxID string, receivedAt time.Time) *domain.Message {
	t.Helper()

	message := &domain.Message{
		ID:         uuid.NewString(),
		MailboxID:  mailboxID,
		ToAddr:     "x@dropmail.test",
		Subject:    "Hi",
		BodyText:   "Hello",
		ReceivedAt: receivedAt,
	}
	require.NoError(t, store.SaveMessage(message))
	return message
}

func TestRetentionService_Sweep(t *testing.T) {
	t.Run("清理到期与超龄数据", func(t *testing.T) {
		store := memory.NewStore()
		now := time.Now().UTC()

		pastExpiry := now.Add(-time.Hour)
		seedMailbox(t, store, "expired", now.Add(-2*time.Hour), &pastExpiry)
		seedMailbox(t, store, "ancient", now.Add(-10*24*time.Hour), nil)
		fresh := seedMailbox(t, store, "fresh", now, nil)

		old := seedMessage(t, store, fresh.ID, now.Add(-3*24*time.Hour))
		recent := seedMessage(t, store, fresh.ID, now)

		svc := NewRetentionService(store, 7*24*time.Hour, 48*time.Hour, nil, nil)

		err := svc.Sweep(context.Background())
		assert.NoError(t, err)

		_, err = store.GetMailboxByLocal("expired")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
		_, err = store.GetMailboxByLocal("ancient")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
		_, err = store.GetMailboxByLocal("fresh")
		assert.NoError(t, err)

		_, err = store.GetMessage("fresh", old.ID)
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
		_, err = store.GetMessage("fresh", recent.ID)
		assert.NoError(t, err)
	})

	t.Run("最大保留时间为零时只清理到期邮箱", func(t *testing.T) {
		store := memory.NewStore()
		now := time.Now().UTC()

		pastExpiry := now.Add(-time.Hour)
		seedMailbox(t, store, "expired", now.Add(-2*time.Hour), &pastExpiry)
		ancient := seedMailbox(t, store, "ancient", now.Add(-365*24*time.Hour), nil)
		seedMessage(t, store, ancient.ID, now.Add(-100*24*time.Hour))

		svc := NewRetentionService(store, 0, 0, nil, nil)

		err := svc.Sweep(context.Background())
		assert.NoError(t, err)

		_, err = store.GetMailboxByLocal("expired")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

		mailbox, err := store.GetMailboxByLocal("ancient")
		assert.NoError(t, err)

		messages, err := store.ListMessages(mailbox.Local)
		assert.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("没有可清理数据时安静返回", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(t, store, "keeper", time.Now().UTC(), nil)

		svc := NewRetentionService(store, time.Hour, time.Hour, nil, nil)

		err := svc.Sweep(context.Background())
		assert.NoError(t, err)

		_, err = store.GetMailboxByLocal("keeper")
		assert.NoError(t, err)
	})
}

func TestRetentionService_Run(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()

	pastExpiry := now.Add(-time.Hour)
	seedMailbox(t, store, "expired", now.Add(-2*time.Hour), &pastExpiry)

	svc := NewRetentionService(store, 0, 0, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx, 10*time.Millisecond)
	}()

	// 等待至少一轮清理执行
	assert.Eventually(t, func() bool {
		_, err := store.GetMailboxByLocal("expired")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
