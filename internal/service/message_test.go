package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropmail/internal/domain"
	"dropmail/internal/storage"
	"dropmail/internal/storage/memory"
)

func TestMessageService(t *testing.T) {
	store := memory.NewStore()
	service := NewMessageService(store)

	mailbox, err := store.ResolveOrCreateMailbox("bob")
	require.NoError(t, err)

	message := &domain.Message{
		ID:         uuid.NewString(),
		MailboxID:  mailbox.ID,
		ToAddr:     "bob@dropmail.test",
		Subject:    "Hi",
		BodyText:   "Hello",
		Raw:        "Subject: Hi\r\n\r\nHello\r\n",
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveMessage(message))

	t.Run("列出邮箱邮件成功", func(t *testing.T) {
		messages, err := service.List("bob")

		assert.NoError(t, err)
		assert.Len(t, messages, 1)
		assert.Equal(t, message.ID, messages[0].ID)
	})

	t.Run("本地部分先归一化再查询", func(t *testing.T) {
		messages, err := service.List("  BOB  ")

		assert.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("未知邮箱返回空列表", func(t *testing.T) {
		messages, err := service.List("nobody")

		assert.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("获取单封邮件成功", func(t *testing.T) {
		got, err := service.Get("bob", message.ID)

		assert.NoError(t, err)
		assert.Equal(t, "Hi", got.Subject)
		assert.Equal(t, "Hello", got.BodyText)
	})

	t.Run("获取不存在的邮件失败", func(t *testing.T) {
		got, err := service.Get("bob", uuid.NewString())

		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
		assert.Nil(t, got)
	})

	t.Run("跨邮箱取件失败", func(t *testing.T) {
		_, err := store.ResolveOrCreateMailbox("alice")
		require.NoError(t, err)

		got, err := service.Get("alice", message.ID)

		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
		assert.Nil(t, got)
	})
}
