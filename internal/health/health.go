package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"dropmail/internal/storage"
)

// goroutine 数量超过该阈值时判定为泄漏
const goroutineThreshold = 1000

// Pinger 缓存层连通性检查接口。
type Pinger interface {
	Ping() error
}

// Checker 健康检查器，区分存活与就绪两类探针。
type Checker struct {
	handler healthcheck.Handler
}

// NewChecker 创建健康检查器。cache 为 nil 时跳过缓存检查。
func NewChecker(store storage.Store, cache Pinger) *Checker {
	h := healthcheck.NewHandler()

	// 存活检查：进程本身是否还健康
	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(goroutineThreshold))

	// 就绪检查：依赖不可用时摘除流量
	h.AddReadinessCheck("storage", func() error {
		return store.Health()
	})

	if cache != nil {
		h.AddReadinessCheck("redis", func() error {
			return cache.Ping()
		})
	}

	return &Checker{handler: h}
}

// LiveEndpoint 返回存活检查处理函数。
func (c *Checker) LiveEndpoint() http.HandlerFunc {
	return c.handler.LiveEndpoint
}

// ReadyEndpoint 返回就绪检查处理函数。
func (c *Checker) ReadyEndpoint() http.HandlerFunc {
	return c.handler.ReadyEndpoint
}
