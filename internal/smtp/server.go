package smtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"dropmail/internal/monitoring"
)

// ErrServerClosed 在服务器被关闭后由 Serve 返回。
var ErrServerClosed = errors.New("smtp: server closed")

// ServerConfig SMTP 服务器配置
type ServerConfig struct {
	// Addr 监听地址
	Addr string
	// Domain 服务域名，决定问候语和收件域校验
	Domain string
	// MaxSize EHLO 通告的邮件大小上限，收集阶段不强制
	MaxSize int64
	// IdleTimeout 连接空闲读超时，0 表示不限制
	IdleTimeout time.Duration
}

// Server 只收不发的 SMTP 服务器，每条连接一个独立的会话状态机。
type Server struct {
	config    ServerConfig
	deliverer Deliverer
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	listener net.Listener

	// 活跃连接跟踪
	connMu      sync.Mutex
	connections map[net.Conn]struct{}

	// 关闭协调
	shutdownWg sync.WaitGroup
	closed     atomic.Bool
}

// NewServer 创建 SMTP 服务器。
func NewServer(config ServerConfig, deliverer Deliverer, logger *zap.Logger, metrics *monitoring.Metrics) (*Server, error) {
	if config.Domain == "" {
		return nil, errors.New("smtp: domain is required")
	}
	if deliverer == nil {
		return nil, errors.New("smtp: deliverer is required")
	}

	// 应用默认值
	if config.Addr == "" {
		config.Addr = ":2525"
	}
	if config.MaxSize == 0 {
		config.MaxSize = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}

	return &Server{
		config:      config,
		deliverer:   deliverer,
		logger:      logger,
		metrics:     metrics,
		connections: make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe 在配置的地址上监听并开始服务。
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("smtp: failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve 在给定监听器上接受连接，每条连接启动一个处理协程。
// 接受失败视为可恢复错误，记录后继续服务。
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener

	s.logger.Info("smtp server started",
		zap.String("addr", listener.Addr().String()),
		zap.String("domain", s.config.Domain),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}

		s.shutdownWg.Add(1)
		s.trackConn(conn)
		go s.handleConnection(conn)
	}
}

// Shutdown 优雅关闭：停止接受新连接，等待现有会话结束。
// ctx 到期后强制断开剩余连接。
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("smtp server stopped")
		return nil
	case <-ctx.Done():
		s.connMu.Lock()
		for conn := range s.connections {
			conn.Close()
		}
		s.connMu.Unlock()
		return ctx.Err()
	}
}

// ActiveConnections 返回当前打开的连接数。
func (s *Server) ActiveConnections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.connections)
}

func (s *Server) trackConn(conn net.Conn) {
	s.connMu.Lock()
	s.connections[conn] = struct{}{}
	s.connMu.Unlock()
	s.metrics.RecordSMTPConnection()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()
	s.metrics.CloseSMTPConnection()
}

// handleConnection 驱动一条连接上的完整会话。
// 任何 I/O 失败只终止本连接，不影响其他连接和监听循环。
func (s *Server) handleConnection(conn net.Conn) {
	defer s.shutdownWg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	logger := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	logger.Debug("connection accepted")

	session := NewSession(s.config.Domain, s.config.MaxSize, s.deliverer)

	if err := s.writeLines(conn, []string{session.Greeting()}); err != nil {
		logger.Debug("write greeting failed", zap.Error(err))
		return
	}
	s.metrics.RecordSMTPReply("220")

	reader := bufio.NewReader(conn)
	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		if session.State() != StateCollecting {
			s.metrics.RecordSMTPCommand(commandVerb(line))
		}

		replies, finished := session.HandleLine(line)
		if len(replies) > 0 {
			if err := s.writeLines(conn, replies); err != nil {
				logger.Debug("write reply failed", zap.Error(err))
				return
			}
			if last := replies[len(replies)-1]; len(last) >= 3 {
				s.metrics.RecordSMTPReply(last[:3])
			}
		}

		if finished {
			logger.Debug("session finished")
			return
		}
	}
}

// writeLines 把应答行批量写回对端，行尾统一补 CRLF。
func (s *Server) writeLines(conn net.Conn, lines []string) error {
	_, err := conn.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	return err
}
