package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-drafts/server/internal/config"
	"chat-drafts/server/internal/hub"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/recordstore"
	"chat-drafts/server/internal/service"
)

type Server struct {
	config   *config.Config
	svc      *service.Service
	hub      *hub.Hub
	gatherer prometheus.Gatherer
	logger   *log.Logger
	origins  map[string]bool

	// WebSocket upgrader
	upgrader websocket.Upgrader
}

// NewServer 创建 HTTP 服务。gatherer 为 nil 时使用 prometheus.DefaultGatherer。
func NewServer(cfg *config.Config, svc *service.Service, h *hub.Hub, gatherer prometheus.Gatherer, logger *log.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		config:   cfg,
		svc:      svc,
		hub:      h,
		gatherer: gatherer,
		logger:   logger,
		origins:  make(map[string]bool, len(cfg.Server.AllowedOrigins)),
	}
	for _, o := range cfg.Server.AllowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// 命令行客户端不带 Origin；浏览器只允许配置里的来源
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin)
		},
	}
	return s
}

func (s *Server) Routes() http.Handler {
	// Gin 统一承载中间件与路由，便于扩展日志/鉴权/限流等能力。
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), s.corsMiddleware())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	api.GET("/drafts", s.handleListDrafts)
	api.PUT("/drafts", s.handleSaveDraft)
	api.DELETE("/drafts", s.handleDeleteDraft)
	api.GET("/reminders", s.handleListReminders)
	api.POST("/reminders", s.handleCreateReminder)
	api.PUT("/reminders", s.handleUpdateReminder)
	api.DELETE("/reminders", s.handleDeleteReminder)
	api.GET("/users", s.handleUsers)
	api.GET("/messages/search", s.handleSearchMessages)
	api.GET("/attachments", s.handleAttachments)
	api.GET("/events", s.handleEvents)
	api.GET("/hub/stats", s.handleHubStats)
	return engine
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": s.hub.ConnectionCount()})
}

// handleListDrafts 按 updated_at 倒序分页返回某个用户的草稿。
func (s *Server) handleListDrafts(c *gin.Context) {
	opts, ok := s.cursorQuery(c)
	if !ok {
		return
	}
	page, err := s.svc.QueryDrafts(c.Request.Context(), opts)
	if err != nil {
		s.writeError(c, "list drafts", err)
		return
	}
	c.JSON(http.StatusOK, nonNilPage(page))
}

// handleSaveDraft 创建或覆盖草稿。
func (s *Server) handleSaveDraft(c *gin.Context) {
	var req service.DraftInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := s.svc.SaveDraft(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, "save draft", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleDeleteDraft(c *gin.Context) {
	userID, channelCID := c.Query("user_id"), c.Query("channel_cid")
	if userID == "" || channelCID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and channel_cid required"})
		return
	}
	if err := s.svc.DeleteDraft(c.Request.Context(), userID, channelCID, c.Query("parent_id")); err != nil {
		s.writeError(c, "delete draft", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListReminders(c *gin.Context) {
	opts, ok := s.cursorQuery(c)
	if !ok {
		return
	}
	page, err := s.svc.QueryReminders(c.Request.Context(), opts)
	if err != nil {
		s.writeError(c, "list reminders", err)
		return
	}
	c.JSON(http.StatusOK, nonNilPage(page))
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	var req service.ReminderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := s.svc.CreateReminder(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, "create reminder", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleUpdateReminder(c *gin.Context) {
	var req service.ReminderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := s.svc.UpdateReminder(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, "update reminder", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleDeleteReminder(c *gin.Context) {
	userID, messageID := c.Query("user_id"), c.Query("message_id")
	if userID == "" || messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and message_id required"})
		return
	}
	if err := s.svc.DeleteReminder(c.Request.Context(), userID, messageID); err != nil {
		s.writeError(c, "delete reminder", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUsers(c *gin.Context) {
	q, ok := s.offsetQuery(c)
	if !ok {
		return
	}
	users, err := s.svc.QueryUsers(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": nonNil(users)})
}

func (s *Server) handleSearchMessages(c *gin.Context) {
	q, ok := s.offsetQuery(c)
	if !ok {
		return
	}
	msgs, err := s.svc.SearchMessages(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, "search messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": nonNil(msgs)})
}

func (s *Server) handleAttachments(c *gin.Context) {
	q, ok := s.offsetQuery(c)
	if !ok {
		return
	}
	atts, err := s.svc.QueryAttachments(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, "list attachments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": nonNil(atts)})
}

// handleEvents 升级为 WebSocket 并把该用户的事件推送过去，直到连接关闭。
func (s *Server) handleEvents(c *gin.Context) {
	userID := c.Query("user_id")
	s.logger.Printf("[API] 📞 Event stream request: user=%s addr=%s", userID, c.Request.RemoteAddr)

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("[API] ❌ Failed to upgrade websocket: %v", err)
		return
	}
	s.hub.Serve(ws, userID)
}

func (s *Server) handleHubStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": s.hub.Stats()})
}

// cursorQuery 解析游标分页参数，limit 被限制在 paging.max_limit 以内。
func (s *Server) cursorQuery(c *gin.Context) (model.QueryOptions, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return model.QueryOptions{}, false
	}
	limit, ok := intParam(c, "limit")
	if !ok {
		return model.QueryOptions{}, false
	}
	if maxLimit := s.config.Paging.MaxLimit; limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	opts := model.QueryOptions{UserID: userID, Limit: limit, Next: c.Query("next")}
	if channel := c.Query("channel_cid"); channel != "" {
		opts.Filter = map[string]string{"channel_cid": channel}
	}
	return opts, true
}

func (s *Server) offsetQuery(c *gin.Context) (model.OffsetQuery, bool) {
	offset, ok := intParam(c, "offset")
	if !ok {
		return model.OffsetQuery{}, false
	}
	limit, ok := intParam(c, "limit")
	if !ok {
		return model.OffsetQuery{}, false
	}
	if limit <= 0 {
		limit = s.config.Paging.OffsetLimit
	}
	if offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must not be negative"})
		return model.OffsetQuery{}, false
	}
	return model.OffsetQuery{
		Offset:     offset,
		Limit:      limit,
		Query:      c.Query("q"),
		ChannelCID: c.Query("channel_cid"),
		Type:       c.Query("type"),
	}, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return v, true
}

// writeError 把领域错误映射为 HTTP 状态码；未知错误只记日志，返回给客户端的信息保持简洁。
func (s *Server) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, recordstore.ErrInvalidCursor), errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Printf("[API] ❌ %s failed: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

func nonNilPage[T any](p model.Page[T]) model.Page[T] {
	p.Items = nonNil(p.Items)
	return p
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) allowedOrigin(origin string) bool {
	return s.origins[origin]
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.allowedOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
