package api

import (
	"context"
	"net/http"
	"time"

	"github.com/annel0/realm-server/internal/auth"
	"github.com/annel0/realm-server/internal/config"
	"github.com/annel0/realm-server/internal/logging"
	"github.com/annel0/realm-server/internal/middleware"
	"github.com/annel0/realm-server/internal/realm"
	"github.com/annel0/realm-server/internal/vec"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer — админский REST API сервера: аутентификация, статистика,
// управление мирами (параметры кинематики, правка тайлов). Игровой
// трафик сюда не ходит, он живёт на своём транспорте.
type RestServer struct {
	router   *gin.Engine
	authn    *auth.Authenticator
	userRepo auth.UserRepository
	registry *realm.Registry
	port     string
	metrics  *ServerMetrics
	httpSrv  *http.Server
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port          string              // порт для запуска сервера, например :8088
	Authenticator *auth.Authenticator // выдаёт и проверяет токены
	UserRepo      auth.UserRepository // репозиторий пользователей
	Registry      *realm.Registry     // реестр запущенных миров
	PromRegistry  prometheus.Registerer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("rest_api"))

	promMw := middleware.NewPrometheusMiddleware("rest_api", cfg.PromRegistry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:   router,
		authn:    cfg.Authenticator,
		userRepo: cfg.UserRepo,
		registry: cfg.Registry,
		port:     cfg.Port,
		metrics:  NewServerMetrics(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", rs.handleLogin)
	}

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/server", rs.handleServerInfo)
		protected.GET("/realms", rs.handleListRealms)
		protected.GET("/realms/:id", rs.handleRealmInfo)
		protected.GET("/realms/:id/sessions", rs.handleRealmSessions)

		// Административные эндпоинты (только для админов)
		admin := protected.Group("/admin")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/register", rs.handleAdminRegister)
			admin.PUT("/realms/:id/physics", rs.handleSetPhysics)
			admin.POST("/realms/:id/tiles", rs.handleSetTile)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Message   string `json:"message"`
	UserID    uint64 `json:"user_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

// RegisterRequest представляет запрос на регистрацию
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	user, token, expiresAt, err := rs.authn.Login(req.Username, req.Password)
	if err == auth.ErrUserNotFound {
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		Message:   "Успешная авторизация",
		UserID:    user.ID,
		IsAdmin:   user.IsAdmin,
	})
}

// handleAdminRegister обрабатывает регистрацию нового пользователя (только для админов)
func (rs *RestServer) handleAdminRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	// Валидация входных данных
	if len(req.Username) < 3 || len(req.Username) > 30 {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Имя пользователя должно быть от 3 до 30 символов",
		})
		return
	}

	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Пароль должен быть минимум 6 символов",
		})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка обработки пароля",
		})
		return
	}

	user, err := rs.userRepo.CreateUser(req.Username, passwordHash, req.IsAdmin)
	if err == auth.ErrUserExists {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: "Пользователь уже существует",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка создания пользователя",
		})
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Пользователь успешно создан",
		Data: map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
	})
}

// handleListRealms возвращает срезы состояния всех запущенных миров
func (rs *RestServer) handleListRealms(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	infos := make([]realm.Info, 0)
	for _, id := range rs.registry.IDs() {
		r := rs.registry.Get(id)
		if r == nil {
			continue
		}
		info, err := r.Snapshot(ctx)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, GenericResponse{
				Success: false,
				Message: "Мир " + id + " не отвечает",
			})
			return
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список миров",
		Data:    infos,
	})
}

// handleRealmInfo возвращает срез состояния одного мира
func (rs *RestServer) handleRealmInfo(c *gin.Context) {
	r := rs.registry.Get(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Мир не найден",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info, err := r.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, GenericResponse{
			Success: false,
			Message: "Мир не отвечает",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние мира",
		Data:    info,
	})
}

// handleRealmSessions возвращает список сессий мира
func (rs *RestServer) handleRealmSessions(c *gin.Context) {
	r := rs.registry.Get(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Мир не найден",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sessions, err := r.SessionList(ctx)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, GenericResponse{
			Success: false,
			Message: "Мир не отвечает",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сессии мира",
		Data:    sessions,
	})
}

// handleSetPhysics заменяет параметры кинематики мира.
// Тело — та же схема, что секция physics в конфиге; нулевые поля
// означают значения по умолчанию. Все клиенты мира получат resync.
func (rs *RestServer) handleSetPhysics(c *gin.Context) {
	r := rs.registry.Get(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Мир не найден",
		})
		return
	}

	var req config.PhysicsConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	params := req.Params()
	if err := rs.postAndWait(c, r, func() { r.SetParams(params) }); err != nil {
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Параметры кинематики обновлены",
	})
}

// TileRequest — правка одного тайла мира
type TileRequest struct {
	X    int   `json:"x"`
	Y    int   `json:"y"`
	Kind uint8 `json:"kind"`
}

// handleSetTile правит тайл мира. Изменённый чанк разойдётся
// клиентам обычным chunk-sync и уедет в персистентность.
func (rs *RestServer) handleSetTile(c *gin.Context) {
	r := rs.registry.Get(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Мир не найден",
		})
		return
	}

	var req TileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}
	if req.Kind > uint8(realm.TileHazard) {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неизвестный тип тайла",
		})
		return
	}

	err := rs.postAndWait(c, r, func() {
		r.World().SetTile(vec.Vec2{X: req.X, Y: req.Y}, realm.TileKind(req.Kind))
	})
	if err != nil {
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Тайл обновлён",
	})
}

// postAndWait исполняет fn в горутине тика мира и ждёт завершения.
// При таймауте сам пишет ответ и возвращает ошибку.
func (rs *RestServer) postAndWait(c *gin.Context, r *realm.Realm, fn func()) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go r.Post(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.JSON(http.StatusGatewayTimeout, GenericResponse{
			Success: false,
			Message: "Мир не отвечает",
		})
		return ctx.Err()
	}
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()
	systemCPU, _ := rs.metrics.GetSystemCPUUsage()

	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   memoryMB,
		"cpu_percent": cpuPercent,
		"system_cpu":  systemCPU,
		"server_time": time.Now().Unix(),
		"realms":      rs.registry.IDs(),
	}

	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	info := map[string]interface{}{
		"name":        "Realm Server",
		"status":      "running",
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   memoryMB,
		"cpu_percent": cpuPercent,
		"realms":      len(rs.registry.IDs()),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// handleHealth — health check без аутентификации
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Router отдаёт внутренний роутер (для httptest)
func (rs *RestServer) Router() http.Handler {
	return rs.router
}

// Start запускает HTTP-сервер в отдельной горутине
func (rs *RestServer) Start() {
	rs.httpSrv = &http.Server{
		Addr:    rs.port,
		Handler: rs.router,
	}

	go func() {
		logging.Info("REST API запущен на %s", rs.port)
		if err := rs.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("REST API: %v", err)
		}
	}()
}

// Stop останавливает HTTP-сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpSrv == nil {
		return nil
	}
	return rs.httpSrv.Shutdown(ctx)
}
