package smtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/internal/monitoring"
)

func startTestServer(t *testing.T, deliverer Deliverer) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Domain:      "dropmail.test",
		IdleTimeout: 5 * time.Second,
	}, deliverer, zap.NewNop(), monitoring.NewNopMetrics())
	require.NoError(t, err)

	go srv.Serve(listener)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return listener.Addr().String()
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestServer(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(data))
	require.NoError(c.t, err)
}

func (c *testClient) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func TestServerEndToEndDelivery(t *testing.T) {
	deliverer := &fakeDeliverer{}
	addr := startTestServer(t, deliverer)
	client := dialTestServer(t, addr)

	assert.Equal(t, "220 dropmail.test ESMTP Temporary Mail Server", client.readLine())

	client.send("EHLO client.example")
	assert.Equal(t, "250-dropmail.test Hello", client.readLine())
	assert.Equal(t, "250-SIZE 10485760", client.readLine())
	assert.Equal(t, "250-8BITMIME", client.readLine())
	assert.Equal(t, "250 PIPELINING", client.readLine())

	client.send("MAIL FROM:<a@x>")
	assert.Equal(t, "250 OK", client.readLine())

	client.send("RCPT TO:<bob@dropmail.test>")
	assert.Equal(t, "250 OK", client.readLine())

	client.send("DATA")
	assert.Equal(t, "354 Start mail input; end with <CRLF>.<CRLF>", client.readLine())

	client.sendRaw("Subject: Hi\r\n\r\nHello\r\n.\r\n")
	assert.Equal(t, "250 OK: Message accepted", client.readLine())

	client.send("QUIT")
	assert.Equal(t, "221 Bye", client.readLine())

	deliveries := deliverer.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "a@x", deliveries[0].from)
	assert.Equal(t, []string{"bob@dropmail.test"}, deliveries[0].recipients)
	assert.Equal(t, "Subject: Hi\r\n\r\nHello\r\n", deliveries[0].raw)
}

func TestServerRejectsForeignDomain(t *testing.T) {
	deliverer := &fakeDeliverer{}
	addr := startTestServer(t, deliverer)
	client := dialTestServer(t, addr)

	client.readLine()
	client.send("EHLO c")
	for i := 0; i < 4; i++ {
		client.readLine()
	}

	client.send("MAIL FROM:<a@x>")
	assert.Equal(t, "250 OK", client.readLine())

	client.send("RCPT TO:<x@other.test>")
	assert.Equal(t, "550 Mailbox unavailable", client.readLine())

	client.send("DATA")
	assert.Equal(t, "503 Bad sequence of commands", client.readLine())

	assert.Empty(t, deliverer.Deliveries())
}

func TestServerPipelinedCommands(t *testing.T) {
	deliverer := &fakeDeliverer{}
	addr := startTestServer(t, deliverer)
	client := dialTestServer(t, addr)

	client.readLine()

	// 一次写入整个命令批，应答必须按序返回
	client.sendRaw("EHLO c\r\nMAIL FROM:<a@x>\r\nRCPT TO:<bob@dropmail.test>\r\nDATA\r\n")

	assert.Equal(t, "250-dropmail.test Hello", client.readLine())
	assert.Equal(t, "250-SIZE 10485760", client.readLine())
	assert.Equal(t, "250-8BITMIME", client.readLine())
	assert.Equal(t, "250 PIPELINING", client.readLine())
	assert.Equal(t, "250 OK", client.readLine())
	assert.Equal(t, "250 OK", client.readLine())
	assert.Equal(t, "354 Start mail input; end with <CRLF>.<CRLF>", client.readLine())

	client.sendRaw("Hello\r\n.\r\n")
	assert.Equal(t, "250 OK: Message accepted", client.readLine())
}

func TestServerDeliveryFailure(t *testing.T) {
	deliverer := &fakeDeliverer{err: errors.New("backend unavailable")}
	addr := startTestServer(t, deliverer)
	client := dialTestServer(t, addr)

	client.readLine()
	client.send("MAIL FROM:<a@x>")
	client.readLine()
	client.send("RCPT TO:<bob@dropmail.test>")
	client.readLine()
	client.send("DATA")
	client.readLine()

	client.sendRaw("Hello\r\n.\r\n")
	assert.Equal(t, "451 Temporary failure", client.readLine())
}

func TestServerConcurrentConnections(t *testing.T) {
	deliverer := &fakeDeliverer{}
	addr := startTestServer(t, deliverer)

	const clients = 8
	var wg sync.WaitGroup
	errCh := make(chan error, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errCh <- runTransaction(addr, fmt.Sprintf("user%d@dropmail.test", n))
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Len(t, deliverer.Deliveries(), clients)
}

// runTransaction 在一条独立连接上走完一次完整投递。
func runTransaction(addr, recipient string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)

	readLine := func() (string, error) {
		line, err := reader.ReadString('\n')
		return strings.TrimRight(line, "\r\n"), err
	}

	if _, err := readLine(); err != nil {
		return err
	}

	steps := []struct {
		send string
		want string
	}{
		{"MAIL FROM:<a@x>\r\n", "250 OK"},
		{"RCPT TO:<" + recipient + ">\r\n", "250 OK"},
		{"DATA\r\n", "354 Start mail input; end with <CRLF>.<CRLF>"},
		{"Hello\r\n.\r\n", "250 OK: Message accepted"},
		{"QUIT\r\n", "221 Bye"},
	}
	for _, step := range steps {
		if _, err := conn.Write([]byte(step.send)); err != nil {
			return err
		}
		got, err := readLine()
		if err != nil {
			return err
		}
		if got != step.want {
			return fmt.Errorf("sent %q: got reply %q, want %q", step.send, got, step.want)
		}
	}
	return nil
}

func TestServerShutdownStopsAccepting(t *testing.T) {
	deliverer := &fakeDeliverer{}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	srv, err := NewServer(ServerConfig{Domain: "dropmail.test"}, deliverer, zap.NewNop(), monitoring.NewNopMetrics())
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	// 确认服务器在关闭前可用
	client := dialTestServer(t, addr)
	assert.Equal(t, "220 dropmail.test ESMTP Temporary Mail Server", client.readLine())
	client.send("QUIT")
	client.readLine()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-serveErr:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("serve loop did not exit after shutdown")
	}

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err)
}

func TestServerRequiresDomain(t *testing.T) {
	_, err := NewServer(ServerConfig{}, &fakeDeliverer{}, zap.NewNop(), monitoring.NewNopMetrics())
	assert.Error(t, err)
}
