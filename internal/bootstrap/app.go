package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"party-game/internal/domain"
	httpHandler "party-game/internal/handler/http"
	wsHandler "party-game/internal/handler/websocket"
	"party-game/internal/hub"
	gormpersistence "party-game/internal/infra/persistence/gorm"
	"party-game/internal/infra/persistence/memory"
	"party-game/internal/infra/setup"
	redisstate "party-game/internal/infra/state/redis"
	"party-game/internal/middleware"
	"party-game/internal/repository"
	"party-game/internal/service"
	"party-game/internal/worker"
)

const sweepSchedule = "@every 10m"

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	StoreDriver     string // mysql | postgres | memory
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string // memory 模式下可以为空
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string // Redis Key 前缀
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string // development / production
	AllowedOrigin   string
	CatalogFile     string
	RateLimitMax    int
	RateLimitWindow time.Duration
	JoinLimitMax    int           // 每个用户在窗口内尝试邀请码的次数，防止枚举
	JoinLimitWindow time.Duration
	RotationDelay   time.Duration
	StoreTimeout    time.Duration
	LockTimeout     time.Duration
	IdleRoomTTL     time.Duration
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		StoreDriver:   os.Getenv("STORE_DRIVER"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		AllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		CatalogFile:   os.Getenv("CATALOG_FILE"),
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0
	cfg.JWTExpiryHours = envInt("JWT_EXPIRY_HOURS", 24)
	cfg.RateLimitMax = envInt("RATE_LIMIT_MAX", 100)
	cfg.RateLimitWindow = envDuration("RATE_LIMIT_WINDOW", time.Second)
	cfg.JoinLimitMax = envInt("JOIN_RATE_LIMIT_MAX", 20)
	cfg.JoinLimitWindow = envDuration("JOIN_RATE_LIMIT_WINDOW", time.Minute)
	cfg.RotationDelay = envDuration("ROTATION_DELAY", 20*time.Second)
	cfg.StoreTimeout = envDuration("STORE_TIMEOUT", 3*time.Second)
	cfg.LockTimeout = envDuration("LOCK_TIMEOUT", 5*time.Second)
	cfg.IdleRoomTTL = envDuration("IDLE_ROOM_TTL", 2*time.Hour)

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "mysql"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pg:"
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "http://localhost:3000" // 开发默认
	}

	switch cfg.StoreDriver {
	case "mysql", "postgres":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("environment variable REDIS_ADDR must be set when STORE_DRIVER=%s", cfg.StoreDriver)
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %d", key, v, def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %s", key, v, def)
		return def
	}
	return d
}

// stores 聚合按驱动选出的存储实现
type stores struct {
	rooms   repository.RoomRepository
	users   repository.UserRepository
	games   repository.GameRepository
	friends repository.FriendshipRepository
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB      // memory 模式下为 nil
	RedisClient *redis.Client // 未配置 REDIS_ADDR 时为 nil
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	roomService *service.RoomService
	sweepStop   chan struct{}
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 服务层使用包级 logrus，与 App logger 保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)

	// 3. 初始化基础设施和 Repositories
	log.WithField("driver", cfg.StoreDriver).Info("Initializing storage...")
	games, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	db, repos, err := openStores(cfg, games)
	if err != nil {
		return nil, err
	}
	log.Info("Storage initialized")

	var redisClient *redis.Client
	var stateRepo repository.StateRepository
	if cfg.RedisAddr != "" {
		redisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		stateRepo = redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
		log.Info("Redis client initialized")
	} else {
		log.Warn("REDIS_ADDR not set: rate limiting, event publication and the asynq worker are disabled")
	}

	// 4. 初始化 Services。Hub 依赖 Services，Services 通过 relay 在 Hub 创建后拿到它
	log.Info("Initializing services...")
	authService, err := service.NewAuthService(repos.users, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	relay := &service.NotifierRelay{}
	access := service.NewRoomAccess(repos.rooms, repos.games, relay, service.Options{
		RotationDelay: cfg.RotationDelay,
		StoreTimeout:  cfg.StoreTimeout,
		LockTimeout:   cfg.LockTimeout,
	})
	roomService := service.NewRoomService(access)
	turnService := service.NewTurnService(access)
	votingService := service.NewVotingService(access, turnService)
	catalogService := service.NewCatalogService(repos.games)
	friendshipService := service.NewFriendshipService(repos.friends)
	log.Info("Services initialized")

	// 5. 初始化 Hub
	hubInstance := hub.NewHub(roomService, turnService, votingService, stateRepo)
	relay.Set(hubInstance)
	log.Info("Hub initialized")

	// 6. 初始化 Handlers
	roomHandler := httpHandler.NewRoomHandler(roomService, turnService, votingService)
	gameHandler := httpHandler.NewGameHandler(catalogService)
	friendHandler := httpHandler.NewFriendHandler(friendshipService)
	profileHandler := httpHandler.NewProfileHandler()
	socketHandler := wsHandler.NewWebSocketHandler(hubInstance, cfg.AllowedOrigin)

	// 7. 初始化 Worker Server (需要 Redis)
	var workerServer *worker.WorkerServer
	if cfg.RedisAddr != "" {
		redisClientOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		workerServer = worker.NewWorkerServer(redisClientOpt, roomService, cfg.IdleRoomTTL, log)
		log.Info("Worker server initialized")
	}

	// 8. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if stateRepo != nil {
		router.Use(middleware.RateLimit(stateRepo, "global", cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	// 邀请码相关接口在认证后按用户限流；没有 Redis 时不限流
	var joinLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if stateRepo != nil {
		joinLimit = middleware.RateLimit(stateRepo, "join", cfg.JoinLimitMax, cfg.JoinLimitWindow)
	}

	authMiddleware := middleware.Auth(authService)
	api := router.Group("/api", authMiddleware)
	{
		api.GET("/me", profileHandler.Me)
		api.GET("/me/rooms", roomHandler.ListMyRooms)

		api.GET("/games", gameHandler.ListGames)
		api.GET("/games/:id", gameHandler.GetGame)

		api.POST("/rooms", roomHandler.CreateRoom)
		api.POST("/rooms/join", joinLimit, roomHandler.JoinRoom)
		api.GET("/rooms/validate/:code", joinLimit, roomHandler.ValidateCode)
		api.GET("/rooms/:id", roomHandler.GetRoom)
		api.DELETE("/rooms/:id", roomHandler.DeleteRoom)
		api.POST("/rooms/:id/leave", roomHandler.LeaveRoom)
		api.POST("/rooms/:id/start", roomHandler.StartRoom)
		api.POST("/rooms/:id/turn", roomHandler.SetPlayerTurn)
		api.POST("/rooms/:id/votes", roomHandler.SubmitVote)
		api.POST("/rooms/:id/answers", roomHandler.SubmitAnswer)

		api.GET("/friends", friendHandler.ListFriends)
		api.POST("/friends/requests", friendHandler.SendRequest)
		api.POST("/friends/:userId/accept", friendHandler.Accept)
		api.POST("/friends/:userId/block", friendHandler.Block)
	}
	router.GET("/ws", authMiddleware, socketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 9. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		HttpServer:  httpServer,
		roomService: roomService,
		sweepStop:   make(chan struct{}),
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// loadCatalog 读取 CATALOG_FILE，未配置时使用内置题库
func loadCatalog(cfg *Config) ([]domain.Game, error) {
	if cfg.CatalogFile == "" {
		return setup.DefaultGames(), nil
	}
	games, err := setup.LoadCatalogFile(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return games, nil
}

// openStores 按 STORE_DRIVER 打开数据库（或使用内存实现）并写入题库
func openStores(cfg *Config, games []domain.Game) (*gorm.DB, *stores, error) {
	if cfg.StoreDriver == "memory" {
		return nil, &stores{
			rooms:   memory.NewRoomRepository(),
			users:   memory.NewUserRepository(),
			games:   memory.NewGameRepository(games...),
			friends: memory.NewFriendshipRepository(),
		}, nil
	}

	db, err := setup.InitDB(setup.DBOptions{
		Driver:   cfg.StoreDriver,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	if err := setup.SeedGames(db, games); err != nil {
		return nil, nil, fmt.Errorf("failed to seed games: %w", err)
	}
	return db, &stores{
		rooms:   gormpersistence.NewGormRoomRepository(db),
		users:   gormpersistence.NewGormUserRepository(db),
		games:   gormpersistence.NewGormGameRepository(db),
		friends: gormpersistence.NewGormFriendshipRepository(db),
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		if err := a.AsynqServer.RegisterPeriodicTasks(sweepSchedule); err != nil {
			a.Log.Errorf("Could not register periodic room sweep: %v", err)
		}
	} else {
		go a.runLocalSweep()
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// runLocalSweep 在没有 Redis 时用本地定时器清理空闲房间
func (a *App) runLocalSweep() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := a.roomService.SweepIdleRooms(ctx, a.Config.IdleRoomTTL)
			cancel()
			if err != nil {
				a.Log.WithError(err).Warn("Local room sweep failed")
			} else if n > 0 {
				a.Log.WithField("terminated", n).Info("Local room sweep finished")
			}
		case <-a.sweepStop:
			return
		}
	}
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收新的 HTTP 请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭所有 WebSocket 连接
	a.Hub.Stop()

	// 3. 停止后台清理
	close(a.sweepStop)
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	// 5. 关闭数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path, // 不记录 query，?token= 里可能带着身份令牌
		})
		if userID, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", userID)
		}

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
