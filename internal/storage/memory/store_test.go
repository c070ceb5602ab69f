package memory

import (
	"sync"
	"testing"
	"time"

	"dropmail/internal/domain"
	"dropmail/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ResolveOrCreateMailbox(t *testing.T) {
	store := NewStore()

	// First call creates the mailbox
	created, err := store.ResolveOrCreateMailbox("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Local)

	// Second call resolves to the same row
	resolved, err := store.ResolveOrCreateMailbox("alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)

	mailboxes, err := store.ListMailboxes()
	require.NoError(t, err)
	assert.Len(t, mailboxes, 1)
}

func TestMemoryStore_ResolveOrCreateMailboxConcurrent(t *testing.T) {
	store := NewStore()

	const workers = 32
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mb, err := store.ResolveOrCreateMailbox("shared")
			if err != nil {
				errs[n] = err
				return
			}
			ids[n] = mb.ID
		}(i)
	}
	wg.Wait()

	// Every caller must observe the same single mailbox row
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	mailboxes, err := store.ListMailboxes()
	require.NoError(t, err)
	assert.Len(t, mailboxes, 1)
}

func TestMemoryStore_CreateMailbox(t *testing.T) {
	store := NewStore()

	mailbox := &domain.Mailbox{
		ID:        "mb-1",
		Local:     "alice",
		CreatedAt: time.Now().UTC(),
	}
	err := store.CreateMailbox(mailbox)
	require.NoError(t, err)

	// Duplicate local is rejected
	err = store.CreateMailbox(&domain.Mailbox{ID: "mb-2", Local: "alice"})
	assert.ErrorIs(t, err, storage.ErrMailboxExists)

	// Test GetMailboxByLocal
	got, err := store.GetMailboxByLocal("alice")
	require.NoError(t, err)
	assert.Equal(t, "mb-1", got.ID)

	_, err = store.GetMailboxByLocal("nobody")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
}

func TestMemoryStore_MessageOperations(t *testing.T) {
	store := NewStore()

	mailbox, err := store.ResolveOrCreateMailbox("alice")
	require.NoError(t, err)

	// Unknown local lists empty without an error
	messages, err := store.ListMessages("nobody")
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Saving against a missing mailbox fails
	err = store.SaveMessage(&domain.Message{ID: "m-0", MailboxID: "no-such-mailbox"})
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

	from := "sender@example.com"
	older := &domain.Message{
		ID:         "m-1",
		MailboxID:  mailbox.ID,
		FromAddr:   &from,
		ToAddr:     "alice@dropmail.test",
		Subject:    "First",
		BodyText:   "hello",
		Raw:        "Subject: First\r\n\r\nhello\r\n",
		ReceivedAt: time.Now().UTC().Add(-time.Minute),
	}
	newer := &domain.Message{
		ID:         "m-2",
		MailboxID:  mailbox.ID,
		ToAddr:     "alice@dropmail.test",
		Subject:    "Second",
		BodyText:   "world",
		Raw:        "Subject: Second\r\n\r\nworld\r\n",
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveMessage(older))
	require.NoError(t, store.SaveMessage(newer))

	// Test ListMessages ordering, newest first
	messages, err = store.ListMessages("alice")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m-2", messages[0].ID)
	assert.Equal(t, "m-1", messages[1].ID)

	// Test GetMessage
	got, err := store.GetMessage("alice", "m-1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Subject)
	require.NotNil(t, got.FromAddr)
	assert.Equal(t, "sender@example.com", *got.FromAddr)
	assert.Nil(t, messages[0].FromAddr)

	_, err = store.GetMessage("alice", "no-such-message")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	_, err = store.GetMessage("nobody", "m-1")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestMemoryStore_RetentionDeletes(t *testing.T) {
	store := NewStore()

	// Expired mailbox
	expiresAt := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:        "mb-expired",
		Local:     "expired",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: &expiresAt,
	}))

	// Aged mailbox with a message
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:        "mb-old",
		Local:     "old",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID:         "m-old",
		MailboxID:  "mb-old",
		ToAddr:     "old@dropmail.test",
		ReceivedAt: time.Now().UTC().Add(-48 * time.Hour),
	}))

	// Fresh mailbox with one old and one new message
	require.NoError(t, store.CreateMailbox(&domain.Mailbox{
		ID:        "mb-fresh",
		Local:     "fresh",
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID:         "m-stale",
		MailboxID:  "mb-fresh",
		ToAddr:     "fresh@dropmail.test",
		ReceivedAt: time.Now().UTC().Add(-72 * time.Hour),
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID:         "m-new",
		MailboxID:  "mb-fresh",
		ToAddr:     "fresh@dropmail.test",
		ReceivedAt: time.Now().UTC(),
	}))

	// Test DeleteExpiredMailboxes
	count, err := store.DeleteExpiredMailboxes()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, err = store.GetMailboxByLocal("expired")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

	// Test DeleteMailboxesOlderThan, messages go with the mailbox
	count, err = store.DeleteMailboxesOlderThan(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	messages, err := store.ListMessages("old")
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Test DeleteMessagesOlderThan keeps recent mail
	count, err = store.DeleteMessagesOlderThan(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	messages, err = store.ListMessages("fresh")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m-new", messages[0].ID)
}
