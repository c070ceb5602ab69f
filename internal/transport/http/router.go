package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dropmail/internal/config"
	"dropmail/internal/domain"
	"dropmail/internal/health"
	"dropmail/internal/middleware"
	"dropmail/internal/monitoring"
	"dropmail/internal/service"
	"dropmail/internal/storage"
	"dropmail/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	WebSocketHub   *websocket.Hub  // WebSocket Hub（可选）
	Health         *health.Checker // 健康检查器（可选）
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// HTTP 指标采集
	if deps.Metrics != nil {
		router.Use(middleware.NewMonitoringMiddleware(deps.Metrics).HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	handler := &Handler{
		mailboxes: deps.MailboxService,
		messages:  deps.MessageService,
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint()))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Mailbox Routes ==========
		mailboxRoutes := v1.Group("/mailboxes")
		{
			mailboxRoutes.POST("", handler.createMailbox) // 创建邮箱
			mailboxRoutes.GET("", handler.listMailboxes)  // 邮箱列表

			// 邮件读取端点
			mailboxRoutes.GET("/:local/messages", handler.listMessages)          // 获取邮件列表
			mailboxRoutes.GET("/:local/messages/:messageId", handler.getMessage) // 获取单封邮件

			// ========== WebSocket Routes ==========
			if deps.WebSocketHub != nil {
				mailboxRoutes.GET("/:local/ws", websocket.HandleWebSocket(deps.WebSocketHub)) // 新邮件推送
			}
		}
	}

	return router
}

type createMailboxRequest struct {
	Local    string `json:"local"`
	TTLHours int    `json:"ttl_hours"`
}

type mailboxResponse struct {
	ID        string     `json:"id"`
	Local     string     `json:"local"`
	Address   string     `json:"address"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type mailboxListResponse struct {
	Items []mailboxResponse `json:"items"`
	Count int               `json:"count"`
}

type messageSummaryResponse struct {
	ID         string    `json:"id"`
	From       *string   `json:"from,omitempty"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type messageListResponse struct {
	Items []messageSummaryResponse `json:"items"`
	Count int                      `json:"count"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	MailboxID  string    `json:"mailboxId"`
	From       *string   `json:"from,omitempty"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	BodyText   string    `json:"bodyText"`
	BodyHTML   *string   `json:"bodyHtml,omitempty"`
	Raw        string    `json:"raw"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// createMailbox 创建邮箱，本地部分缺省时随机生成。
func (h *Handler) createMailbox(c *gin.Context) {
	var req createMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.mailboxes.Create(service.CreateMailboxInput{
		Local:    req.Local,
		TTLHours: req.TTLHours,
	})
	if err != nil {
		switch err {
		case domain.ErrInvalidLocalPart, domain.ErrLocalPartTooLong:
			BadRequest(c, GetErrorMessage(err))
		case storage.ErrMailboxExists:
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	Created(c, h.toMailboxResponse(mailbox))
}

// listMailboxes 返回当前所有邮箱的快照列表。
func (h *Handler) listMailboxes(c *gin.Context) {
	mailboxes, err := h.mailboxes.List()
	if err != nil {
		InternalError(c, MsgMailboxListFailed)
		return
	}

	items := make([]mailboxResponse, 0, len(mailboxes))
	for i := range mailboxes {
		items = append(items, h.toMailboxResponse(&mailboxes[i]))
	}

	Success(c, mailboxListResponse{
		Items: items,
		Count: len(items),
	})
}

// listMessages 返回某个邮箱的邮件摘要列表，不含正文。
// 邮箱不存在同样返回空列表，避免暴露邮箱是否被占用。
func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.messages.List(c.Param("local"))
	if err != nil {
		InternalError(c, MsgMessageListFailed)
		return
	}

	items := make([]messageSummaryResponse, 0, len(messages))
	for i := range messages {
		items = append(items, toMessageSummaryResponse(&messages[i]))
	}

	Success(c, messageListResponse{
		Items: items,
		Count: len(items),
	})
}

// getMessage 返回单封邮件的完整内容，包含正文和原始报文。
func (h *Handler) getMessage(c *gin.Context) {
	message, err := h.messages.Get(c.Param("local"), c.Param("messageId"))
	if err != nil {
		switch err {
		case storage.ErrMessageNotFound:
			NotFound(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMessageGetFailed)
		}
		return
	}

	Success(c, toMessageResponse(message))
}

func (h *Handler) toMailboxResponse(m *domain.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:        m.ID,
		Local:     m.Local,
		Address:   m.Address(h.mailboxes.Domain()),
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func toMessageSummaryResponse(m *domain.Message) messageSummaryResponse {
	return messageSummaryResponse{
		ID:         m.ID,
		From:       m.FromAddr,
		To:         m.ToAddr,
		Subject:    m.Subject,
		ReceivedAt: m.ReceivedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		MailboxID:  m.MailboxID,
		From:       m.FromAddr,
		To:         m.ToAddr,
		Subject:    m.Subject,
		BodyText:   m.BodyText,
		BodyHTML:   m.BodyHTML,
		Raw:        m.Raw,
		ReceivedAt: m.ReceivedAt,
	}
}
