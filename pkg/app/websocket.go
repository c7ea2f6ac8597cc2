package app

import (
	"strings"
	"sync"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	pkgvalidator "github.com/haierkeys/sticky-note-canvas-service/pkg/validator"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lxzan/gws"
	"go.uber.org/zap"
)

const (
	WebSocketServerPingInterval = 25 * time.Second
	WebSocketServerPingWait     = 40 * time.Second
)

// WebSocketMessage 客户端消息，线上格式为 "Action|{json}"
type WebSocketMessage struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// ParseMessage 拆分 "Action|{json}" 帧
func ParseMessage(raw string) (WebSocketMessage, bool) {
	index := strings.Index(raw, "|")
	if index <= 0 {
		return WebSocketMessage{}, false
	}
	return WebSocketMessage{Type: raw[:index], Data: []byte(raw[index+1:])}, true
}

// EncodeFrame 编码服务端帧，action 为空时只输出 JSON
func EncodeFrame(action string, content any) ([]byte, error) {
	body, err := sonic.Marshal(content)
	if err != nil {
		return nil, err
	}
	if action == "" {
		return body, nil
	}
	frame := make([]byte, 0, len(action)+1+len(body))
	frame = append(frame, action...)
	frame = append(frame, '|')
	return append(frame, body...), nil
}

type ResResult struct {
	Code    int         `json:"code"`
	Status  bool        `json:"status"`
	Msg     string      `json:"msg"`
	Data    interface{} `json:"data"`
	Details string      `json:"details,omitempty"`
}

func resultOf(c *code.Code) ResResult {
	r := ResResult{
		Code:   c.Code(),
		Status: c.Status(),
		Msg:    c.Msg(),
		Data:   c.Data(),
	}
	if c.HaveDetails() {
		r.Details = strings.Join(c.Details(), ",")
	}
	return r
}

type WebsocketServerConfig struct {
	GWSOption    gws.ServerOption
	PingInterval time.Duration
	PingWait     time.Duration
	Logger       *zap.Logger
	Validator    *pkgvalidator.CustomValidator
}

// WebsocketClient 每个 WebSocket 连接及其相关状态
type WebsocketClient struct {
	ID     string
	conn   *gws.Conn
	done   chan struct{}
	once   sync.Once
	Ctx    *gin.Context
	server *WebsocketServer
	trans  ut.Translator
}

// BindAndValid 基于全局验证器的 WebSocket 参数绑定和验证
func (c *WebsocketClient) BindAndValid(data []byte, obj any) (bool, ValidErrors) {
	var errs ValidErrors

	if err := sonic.Unmarshal(data, obj); err != nil {
		errs = append(errs, &ValidError{Key: "body", Message: "Invalid message format"})
		return false, errs
	}

	v := c.server.config.Validator
	if v == nil {
		return true, nil
	}
	if err := v.ValidateStruct(obj); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				msg := e.Error()
				if c.trans != nil {
					msg = e.Translate(c.trans)
				}
				errs = append(errs, &ValidError{Key: e.Field(), Message: msg})
			}
		} else {
			errs = append(errs, &ValidError{Key: "body", Message: err.Error()})
		}
		return false, errs
	}
	return true, nil
}

// PingLoop 定期发送 Ping 消息
func (c *WebsocketClient) PingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WritePing(nil); err != nil {
				c.server.logger.Debug("websocket ping failed", zap.String("client", c.ID), zap.Error(err))
				return
			}
		}
	}
}

// ToResponse 回复当前客户端
func (c *WebsocketClient) ToResponse(codeObj *code.Code, action string) {
	payload, err := EncodeFrame(action, resultOf(codeObj))
	if err != nil {
		c.server.logger.Error("websocket encode failed", zap.String("action", action), zap.Error(err))
		return
	}
	c.conn.WriteMessage(gws.OpcodeText, payload)
}

// BroadcastResponse 广播给所有客户端，isExcludeSelf 为 true 时跳过当前客户端
func (c *WebsocketClient) BroadcastResponse(codeObj *code.Code, isExcludeSelf bool, action string) {
	var exclude *gws.Conn
	if isExcludeSelf {
		exclude = c.conn
	}
	c.server.broadcast(action, codeObj, exclude)
}

func (c *WebsocketClient) close() {
	c.once.Do(func() { close(c.done) })
}

// ------------------------------------> WebsocketServer

type ConnStorage = map[*gws.Conn]*WebsocketClient

type WebsocketServer struct {
	gws.BuiltinEventHandler

	handlers map[string]func(*WebsocketClient, *WebSocketMessage)
	onClose  []func(*WebsocketClient)
	clients  ConnStorage
	mu       sync.RWMutex
	up       *gws.Upgrader
	config   *WebsocketServerConfig
	logger   *zap.Logger
}

func NewWebsocketServer(c WebsocketServerConfig) *WebsocketServer {
	if c.PingInterval == 0 {
		c.PingInterval = WebSocketServerPingInterval
	}
	if c.PingWait == 0 {
		c.PingWait = WebSocketServerPingWait
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	w := &WebsocketServer{
		handlers: make(map[string]func(*WebsocketClient, *WebSocketMessage)),
		clients:  make(ConnStorage),
		config:   &c,
		logger:   c.Logger,
	}
	w.up = gws.NewUpgrader(w, &w.config.GWSOption)
	return w
}

// Run 返回升级 WebSocket 的 gin 处理函数
func (w *WebsocketServer) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		socket, err := w.up.Upgrade(c.Writer, c.Request)
		if err != nil {
			w.logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &WebsocketClient{
			ID:     uuid.NewString(),
			conn:   socket,
			done:   make(chan struct{}),
			Ctx:    c.Copy(),
			server: w,
		}
		if w.config.Validator != nil {
			lang := c.Query("lang")
			if lang == "" {
				lang = c.GetHeader("lang")
			}
			client.trans = w.config.Validator.Translator(lang)
		}
		w.addClient(client)

		go client.PingLoop(w.config.PingInterval)
		go socket.ReadLoop()
	}
}

// Use 注册消息处理函数
func (w *WebsocketServer) Use(action string, handler func(*WebsocketClient, *WebSocketMessage)) {
	w.handlers[action] = handler
}

// OnClientClose 注册客户端断开后的回调，需在 Run 之前调用
func (w *WebsocketServer) OnClientClose(fn func(*WebsocketClient)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClose = append(w.onClose, fn)
}

// Broadcast 向所有客户端广播
func (w *WebsocketServer) Broadcast(action string, codeObj *code.Code) {
	w.broadcast(action, codeObj, nil)
}

func (w *WebsocketServer) broadcast(action string, codeObj *code.Code, exclude *gws.Conn) {
	payload, err := EncodeFrame(action, resultOf(codeObj))
	if err != nil {
		w.logger.Error("websocket encode failed", zap.String("action", action), zap.Error(err))
		return
	}

	b := gws.NewBroadcaster(gws.OpcodeText, payload)
	defer b.Close()

	w.mu.RLock()
	defer w.mu.RUnlock()
	for conn := range w.clients {
		if conn == exclude {
			continue
		}
		_ = b.Broadcast(conn)
	}
}

// ClientCount 当前连接数
func (w *WebsocketServer) ClientCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

func (w *WebsocketServer) getClient(conn *gws.Conn) *WebsocketClient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.clients[conn]
}

func (w *WebsocketServer) addClient(c *WebsocketClient) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[c.conn] = c
}

func (w *WebsocketServer) removeClient(conn *gws.Conn) *WebsocketClient {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.clients[conn]
	delete(w.clients, conn)
	return c
}

func (w *WebsocketServer) OnOpen(conn *gws.Conn) {
	_ = conn.SetDeadline(time.Now().Add(w.config.PingWait))
	w.logger.Info("websocket client connected", zap.Int("count", w.ClientCount()))
}

func (w *WebsocketServer) OnClose(conn *gws.Conn, err error) {
	if c := w.removeClient(conn); c != nil {
		c.close()
		w.mu.RLock()
		hooks := w.onClose
		w.mu.RUnlock()
		for _, fn := range hooks {
			fn(c)
		}
		w.logger.Info("websocket client left",
			zap.String("client", c.ID),
			zap.Int("count", w.ClientCount()),
			zap.NamedError("reason", err))
	}
}

func (w *WebsocketServer) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(w.config.PingWait))
	_ = socket.WritePong(nil)
}

func (w *WebsocketServer) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(w.config.PingWait))
}

func (w *WebsocketServer) OnMessage(conn *gws.Conn, message *gws.Message) {
	defer message.Close()
	_ = conn.SetDeadline(time.Now().Add(w.config.PingWait))

	if message.Opcode != gws.OpcodeText {
		return
	}
	raw := message.Data.String()
	if raw == "close" {
		conn.WriteClose(1000, []byte("ClientClose"))
		return
	}

	c := w.getClient(conn)
	if c == nil {
		return
	}

	msg, ok := ParseMessage(raw)
	if !ok {
		w.logger.Warn("websocket illegal message", zap.String("client", c.ID))
		c.ToResponse(code.ErrorWSMessageFormat, "")
		return
	}

	handler, exists := w.handlers[msg.Type]
	if !exists {
		w.logger.Warn("websocket unknown message type", zap.String("client", c.ID), zap.String("type", msg.Type))
		c.ToResponse(code.ErrorWSUnknownAction, msg.Type)
		return
	}
	handler(c, &msg)
}
