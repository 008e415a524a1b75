package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/crypto/bcrypt"

	"github.com/sbilibin2017/gw-items-api/internal/docs"
	"github.com/sbilibin2017/gw-items-api/internal/handlers"
	"github.com/sbilibin2017/gw-items-api/internal/jwt"
	"github.com/sbilibin2017/gw-items-api/internal/logger"
	"github.com/sbilibin2017/gw-items-api/internal/middlewares"
	"github.com/sbilibin2017/gw-items-api/internal/migrations"
	"github.com/sbilibin2017/gw-items-api/internal/password"
	"github.com/sbilibin2017/gw-items-api/internal/repositories"
	"github.com/sbilibin2017/gw-items-api/internal/services"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// config holds everything read from the environment.
type config struct {
	appHost, appPort string
	logLevel         string
	apiPrefix        string
	corsOrigins      []string

	pgHost, pgUser, pgPassword, pgDB string
	pgPort                           int
	pgMaxOpenConns, pgMaxIdleConns   int

	redisHost         string
	redisPort         int
	redisDB           int
	redisPassword     string
	redisPoolSize     int
	redisMinIdleConns int

	kafkaBrokers []string
	kafkaTopic   string

	jwtSecretKey  string
	jwtExpMinutes int

	bcryptCost      int
	hashConcurrency int
}

// @title gw-items-api API
// @version 0.1.0
// @description Authentication and owner-scoped item management
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns the
// application, database, Redis, Kafka, logging, and JWT configuration.
func parseConfig(path string) (cfg config, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}
	getInt := func(key string, defaultValue int) (int, error) {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return v, nil
	}

	// Application config
	cfg.appHost = getEnv("APP_HOST", "localhost")
	cfg.appPort = getEnv("APP_PORT", "8080")
	cfg.logLevel = getEnv("APP_LOG_LEVEL", "info")
	cfg.apiPrefix = strings.TrimSuffix(getEnv("API_PREFIX", "/api/v1"), "/")
	cfg.corsOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	// PostgreSQL config
	cfg.pgHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.pgUser = getEnv("POSTGRES_USER", "user")
	cfg.pgPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.pgDB = getEnv("POSTGRES_DB", "database")
	if cfg.pgPort, err = getInt("POSTGRES_PORT", 5432); err != nil {
		return
	}
	if cfg.pgMaxOpenConns, err = getInt("POSTGRES_MAX_OPEN_CONNS", 16); err != nil {
		return
	}
	if cfg.pgMaxIdleConns, err = getInt("POSTGRES_MAX_IDLE_CONNS", 8); err != nil {
		return
	}

	// Redis config, empty host disables token revocation
	cfg.redisHost = getEnv("REDIS_HOST", "")
	if cfg.redisPort, err = getInt("REDIS_PORT", 6379); err != nil {
		return
	}
	if cfg.redisDB, err = getInt("REDIS_DB", 0); err != nil {
		return
	}
	cfg.redisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.redisPoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return
	}
	if cfg.redisMinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return
	}

	// Kafka config, no brokers disables item events
	cfg.kafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.kafkaTopic = getEnv("KAFKA_TOPIC", "item-events")

	// JWT config
	cfg.jwtSecretKey = getEnv("JWT_SECRET_KEY", "YOUR_SECRET_KEY_HERE_CHANGE_IN_PRODUCTION")
	if cfg.jwtExpMinutes, err = getInt("JWT_EXP_MINUTES", 30); err != nil {
		return
	}

	// Password hashing config
	if cfg.bcryptCost, err = getInt("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return
	}
	if cfg.hashConcurrency, err = getInt("HASH_CONCURRENCY", runtime.NumCPU()); err != nil {
		return
	}

	return
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// app is the wired dependency graph served by newRouter.
type app struct {
	db          *sqlx.DB
	tokens      *jwt.JWT
	authService *services.AuthService
	itemService *services.ItemService
}

// newApp builds repositories and services on top of the given connections.
// rdb and kafkaWriter may be nil.
func newApp(cfg config, db *sqlx.DB, rdb *redis.Client, kafkaWriter services.KafkaWriter) (*app, error) {
	hasher, err := password.New(
		password.WithCost(cfg.bcryptCost),
		password.WithConcurrency(cfg.hashConcurrency),
	)
	if err != nil {
		return nil, err
	}

	tokens := jwt.New(
		jwt.WithSecretKey(cfg.jwtSecretKey),
		jwt.WithExpiration(time.Duration(cfg.jwtExpMinutes)*time.Minute),
	)

	// Initialize repositories
	userReadRepo := repositories.NewUserReadRepository(db, middlewares.GetTxFromContext)
	userWriteRepo := repositories.NewUserWriteRepository(db, middlewares.GetTxFromContext)
	itemReadRepo := repositories.NewItemReadRepository(db, middlewares.GetTxFromContext)
	itemWriteRepo := repositories.NewItemWriteRepository(db, middlewares.GetTxFromContext)

	// Initialize services
	var authOpts []services.AuthServiceOpt
	if rdb != nil {
		authOpts = append(authOpts, services.WithDenylist(repositories.NewTokenDenylistRepository(rdb)))
	}
	authService := services.NewAuthService(userReadRepo, userWriteRepo, hasher, tokens, authOpts...)
	itemService := services.NewItemService(itemReadRepo, itemWriteRepo, kafkaWriter)

	return &app{
		db:          db,
		tokens:      tokens,
		authService: authService,
		itemService: itemService,
	}, nil
}

// newRouter mounts every route. Protected routes resolve the caller before
// the per-request transaction is opened.
func newRouter(cfg config, a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.LoggingMiddleware(logger.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(time.Now)
	r.Get("/", handlers.NewRootHandler())
	r.Get("/health", healthHandler)

	r.Route(cfg.apiPrefix, func(r chi.Router) {
		r.Get("/health", healthHandler)

		// Public routes. Registration is a single insert guarded by unique
		// constraints, so it runs without a transaction held across hashing.
		r.Post("/auth/register", handlers.NewRegisterHandler(a.authService))
		r.Post("/auth/token", handlers.NewTokenHandler(a.authService))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middlewares.AuthMiddleware(a.tokens, a.authService))

			r.Get("/auth/me", handlers.NewMeHandler())
			r.Post("/auth/logout", handlers.NewLogoutHandler(a.authService))

			r.Group(func(r chi.Router) {
				r.Use(middlewares.TxMiddleware(a.db))

				createItem := handlers.NewCreateItemHandler(a.itemService)
				listItems := handlers.NewListItemsHandler(a.itemService)
				r.Post("/items", createItem)
				r.Post("/items/", createItem)
				r.Get("/items", listItems)
				r.Get("/items/", listItems)
				r.Get("/items/my-items", handlers.NewListMyItemsHandler(a.itemService))
				r.Get("/items/{id}", handlers.NewGetItemHandler(a.itemService))
				r.Put("/items/{id}", handlers.NewUpdateItemHandler(a.itemService))
				r.Delete("/items/{id}", handlers.NewDeleteItemHandler(a.itemService))
			})
		})
	})

	docs.SwaggerInfo.Host = fmt.Sprintf("%s:%s", cfg.appHost, cfg.appPort)
	docs.SwaggerInfo.BasePath = cfg.apiPrefix
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	return r
}

// run initializes the logger, database, Redis, Kafka writer, and HTTP server.
// It sets up routes, applies middleware, and handles graceful shutdown.
func run(ctx context.Context, cfg config) error {
	// Initialize logger
	if err := logger.Initialize(cfg.logLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.logLevel)

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.pgUser, cfg.pgPassword, cfg.pgHost, cfg.pgPort, cfg.pgDB)
	logger.Log.Infow("Connecting to PostgreSQL", "host", cfg.pgHost, "port", cfg.pgPort, "db", cfg.pgDB)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.pgMaxOpenConns)
	db.SetMaxIdleConns(cfg.pgMaxIdleConns)

	if err := migrations.Up(ctx, db.DB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Connect to Redis
	var rdb *redis.Client
	if cfg.redisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.redisHost, cfg.redisPort),
			Password:     cfg.redisPassword,
			DB:           cfg.redisDB,
			PoolSize:     cfg.redisPoolSize,
			MinIdleConns: cfg.redisMinIdleConns,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer rdb.Close()
	} else {
		logger.Log.Warn("REDIS_HOST not set, token revocation disabled")
	}

	// Kafka writer for item events
	var kafkaWriter services.KafkaWriter
	if len(cfg.kafkaBrokers) > 0 {
		kw := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.kafkaBrokers...),
			Topic:                  cfg.kafkaTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
		defer kw.Close()
		kafkaWriter = kw
	}

	a, err := newApp(cfg, db, rdb, kafkaWriter)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.appHost, cfg.appPort),
		Handler:           newRouter(cfg, a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}
