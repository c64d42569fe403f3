package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/productmanager/cmd/productmanager/cli"
	"github.com/odyssey-erp/productmanager/internal/app"
	"github.com/odyssey-erp/productmanager/internal/auth"
	"github.com/odyssey-erp/productmanager/internal/observability"
	"github.com/odyssey-erp/productmanager/internal/platform/cache"
	"github.com/odyssey-erp/productmanager/internal/platform/db"
	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/products"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
	"github.com/odyssey-erp/productmanager/internal/users"
	"github.com/odyssey-erp/productmanager/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	redisOpts, err := cache.ParseOptions(cfg.RedisURL, cache.Options{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpt())
		code := jobsCLI.Command(ctx, os.Args[2:], os.Stdout, os.Stderr)
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		os.Exit(code)
	}

	if err := run(ctx, cfg, logger, redisOpts); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisOpts cache.Options) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		Schema:           cfg.PGSchema,
		StatementTimeout: cfg.PGStatementTimeout,
		MaxConns:         cfg.PGMaxConns,
		ApplicationName:  "productmanager-api",
		ConnectAttempts:  cfg.PGConnectAttempts,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	checks := map[string]app.Pinger{"postgres": pool}

	var sessionStore shared.SessionStore
	var notifier rbac.Notifier
	var inspector jobs.QueueInspector
	switch cfg.SessionStore {
	case "memory":
		logger.Warn("using in-process session store; sessions are lost on restart")
		memStore := shared.NewMemorySessionStore()
		go memStore.Janitor(ctx, time.Minute, cfg.SessionRetention, time.Now)
		sessionStore = memStore
	default:
		redisClient, err := cache.New(ctx, redisOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		checks["redis"] = cache.RedisPinger{Client: redisClient}
		sessionStore = shared.NewRedisSessionStore(redisClient, cfg.SessionRetention)

		asynqInspector := asynq.NewInspector(redisOpts.AsynqOpt())
		defer func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		inspector = asynqInspector

		if cfg.NotifyRoleChanges {
			client := jobs.NewClient(redisOpts.AsynqOpt())
			defer func() {
				if err := client.Close(); err != nil {
					logger.Warn("jobs client close", slog.Any("error", err))
				}
			}()
			notifier = client
		}
	}

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionTracker(sessionStore, shared.SessionOptions{
		CookieName: cfg.SessionCookie,
		Inactivity: cfg.SessionInactivity,
		Warning:    cfg.SessionWarning,
		Secure:     cfg.IsProduction(),
		OnExpire: func(sess shared.Session) {
			metrics.RecordSessionExpired()
			logger.Info("session expired", slog.String("session_id", sess.ID), slog.Int64("identity_id", sess.IdentityID))
		},
	})

	tokens, err := token.NewManager(token.Config{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	errs := httpx.ErrorResponder{Logger: logger, Development: cfg.IsDevelopment()}

	rbacRepo := rbac.NewRepository(pool)
	resolver := rbac.NewResolver(rbacRepo)
	gate := rbac.NewGate(rbac.GateConfig{
		Tokens:     tokens,
		Sessions:   sessions,
		Resolver:   resolver,
		RoleSource: rbac.RoleSource(cfg.RBACRoleSource),
		Logger:     logger,
		Errors:     errs,
		Metrics:    metrics,
	})
	rbacService := rbac.NewService(rbacRepo, notifier, logger, rbac.ServiceConfig{SuperAdminRole: cfg.SuperAdminRole})

	authService := auth.NewService(rbacRepo, tokens, sessions, hasher, logger)
	usersService := users.NewService(users.NewRepository(pool), hasher, sessions, resolver, logger)
	productsService := products.NewService(products.NewRepository(pool), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     auth.NewHandler(logger, authService, sessions, gate, errs, app.LoginLimiter(cfg)),
		UsersHandler:    users.NewHandler(logger, usersService, gate, errs, cfg.SuperAdminRole),
		RolesHandler:    rbac.NewHandler(logger, rbacService, gate, errs, cfg.SuperAdminRole),
		ProductsHandler: products.NewHandler(logger, productsService, gate, errs),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
		Checks:          checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("role_source", cfg.RBACRoleSource))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
