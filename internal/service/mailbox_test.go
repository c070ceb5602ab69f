package service

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dropmail/internal/domain"
	"dropmail/internal/storage"
	"dropmail/internal/storage/memory"
)

func TestMailboxService_Create(t *testing.T) {
	store := memory.NewStore()
	service := NewMailboxService(store, "dropmail.test", 24*time.Hour, nil)

	t.Run("创建随机邮箱成功", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{})

		assert.NoError(t, err)
		assert.NotNil(t, mailbox)
		assert.NotEmpty(t, mailbox.ID)
		assert.Len(t, mailbox.Local, 12)
		assert.Equal(t, mailbox.Local+"@dropmail.test", mailbox.Address("dropmail.test"))
	})

	t.Run("创建自定义本地部分成功", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{Local: "  Custom.Name  "})

		assert.NoError(t, err)
		assert.NotNil(t, mailbox)
		assert.Equal(t, "custom.name", mailbox.Local) // 归一化为小写
	})

	t.Run("未指定TTL时使用默认值", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{Local: "defaultttl"})

		assert.NoError(t, err)
		assert.NotNil(t, mailbox.ExpiresAt)
		assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *mailbox.ExpiresAt, 5*time.Second)
	})

	t.Run("指定TTL设置到期时间", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{Local: "shortlived", TTLHours: 2})

		assert.NoError(t, err)
		assert.NotNil(t, mailbox.ExpiresAt)
		assert.WithinDuration(t, time.Now().UTC().Add(2*time.Hour), *mailbox.ExpiresAt, 5*time.Second)
	})

	t.Run("默认TTL为零时不设置到期时间", func(t *testing.T) {
		noTTLService := NewMailboxService(store, "dropmail.test", 0, nil)

		mailbox, err := noTTLService.Create(CreateMailboxInput{Local: "permanent"})

		assert.NoError(t, err)
		assert.Nil(t, mailbox.ExpiresAt)
	})

	t.Run("重复创建同名邮箱失败", func(t *testing.T) {
		_, err := service.Create(CreateMailboxInput{Local: "duplicate"})
		assert.NoError(t, err)

		mailbox, err := service.Create(CreateMailboxInput{Local: "duplicate"})

		assert.ErrorIs(t, err, storage.ErrMailboxExists)
		assert.Nil(t, mailbox)
	})

	t.Run("无效本地部分失败", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{Local: "bad..name"})

		assert.ErrorIs(t, err, domain.ErrInvalidLocalPart)
		assert.Nil(t, mailbox)
	})

	t.Run("过长本地部分失败", func(t *testing.T) {
		mailbox, err := service.Create(CreateMailboxInput{Local: strings.Repeat("a", 65)})

		assert.ErrorIs(t, err, domain.ErrLocalPartTooLong)
		assert.Nil(t, mailbox)
	})
}

func TestMailboxService_List(t *testing.T) {
	store := memory.NewStore()
	service := NewMailboxService(store, "dropmail.test", time.Hour, nil)

	_, err := service.Create(CreateMailboxInput{Local: "first"})
	assert.NoError(t, err)
	_, err = service.Create(CreateMailboxInput{Local: "second"})
	assert.NoError(t, err)

	t.Run("返回全部邮箱", func(t *testing.T) {
		mailboxes, err := service.List()

		assert.NoError(t, err)
		assert.Len(t, mailboxes, 2)

		locals := []string{mailboxes[0].Local, mailboxes[1].Local}
		assert.Contains(t, locals, "first")
		assert.Contains(t, locals, "second")
	})
}

func TestGenerateRandomLocal(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		local := generateRandomLocal()
		assert.Regexp(t, pattern, local)
		assert.False(t, seen[local], "generated duplicate local %q", local)
		seen[local] = true
	}
}
