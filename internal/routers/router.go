package routers

import (
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/middleware"
	"github.com/haierkeys/sticky-note-canvas-service/internal/routers/api_router"
	"github.com/haierkeys/sticky-note-canvas-service/internal/routers/websocket_router"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/limiter"

	"github.com/gin-gonic/gin"
	"github.com/lxzan/gws"
)

// 需要限流的写接口
var limitedPaths = []string{"/api/note", "/api/note/text", "/api/note/position", "/api/note/front"}

func newMethodLimiter(rate int) limiter.Face {
	l := limiter.NewMethodLimiter()
	if rate <= 0 {
		return l
	}
	for _, path := range limitedPaths {
		l.AddBuckets(limiter.BucketRule{
			Key:          path,
			FillInterval: time.Second,
			Capacity:     int64(rate),
			Quantum:      int64(rate),
		})
	}
	return l
}

// NewRouter 创建 HTTP 路由和画布 WebSocket 服务
func NewRouter(appContainer *app.App) (*gin.Engine, *pkgapp.WebsocketServer) {

	// 获取配置
	cfg := appContainer.Config()

	wss := pkgapp.NewWebsocketServer(pkgapp.WebsocketServerConfig{
		GWSOption: gws.ServerOption{
			CheckUtf8Enabled:   true,
			Recovery:           gws.Recovery,                         // 开启异常恢复
			PermessageDeflate:  gws.PermessageDeflate{Enabled: true}, // 开启压缩
			ReadMaxPayloadSize: cfg.Websocket.ReadMaxPayloadSize,
		},
		PingInterval: cfg.GetPingInterval(),
		PingWait:     cfg.GetPingWait(),
		Logger:       appContainer.Logger(),
		Validator:    appContainer.Validator,
	})

	// 拖拽和变更广播
	websocket_router.NewCanvasWSHandler(appContainer, wss).Register()

	appContainer.Metrics.WatchGauge("websocket_clients", "Connected websocket clients.", func() float64 {
		return float64(wss.ClientCount())
	})

	r := gin.New()

	api := r.Group("/api")
	{
		api.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
		api.Use(middleware.Trace(cfg.Tracer.Enabled, cfg.Tracer.Header)) // Trace ID 中间件
		api.Use(middleware.RateLimiter(newMethodLimiter(cfg.Server.RateLimit)))
		api.Use(middleware.ContextTimeout(cfg.GetContextTimeout()))
		api.Use(middleware.Cors())
		api.Use(middleware.Lang(appContainer.Validator))
		api.Use(middleware.AccessLog(appContainer.Logger()))
		api.Use(middleware.RecoveryWithLogger(appContainer.Logger()))

		noteHandler := api_router.NewNoteHandler(appContainer, wss)
		canvasHandler := api_router.NewCanvasHandler(appContainer, wss)
		versionHandler := api_router.NewVersionHandler(appContainer)

		api.GET("/canvas/ws", wss.Run())
		api.GET("/canvas/status", canvasHandler.Status)
		api.GET("/version", versionHandler.ServerVersion)

		api.GET("/notes", noteHandler.List)
		api.GET("/note", noteHandler.Get)
		api.POST("/note", noteHandler.Create)
		api.PUT("/note/text", noteHandler.UpdateText)
		api.PUT("/note/position", noteHandler.UpdatePosition)
		api.PUT("/note/front", noteHandler.BringToFront)
		api.DELETE("/note", noteHandler.Delete)
	}

	r.Use(middleware.Cors())
	r.NoRoute(middleware.NoFound())

	return r, wss
}
